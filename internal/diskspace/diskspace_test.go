package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckAvailableSpace(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
		size int64
	}{
		{"markdown file", filepath.Join(dir, "result.md"), 1024},
		{"export dir not created yet", filepath.Join(dir, "exports", "t1", "0.jpg"), 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := CheckAvailableSpace(tt.path, tt.size, 1.15); err != nil {
				t.Fatalf("CheckAvailableSpace(%q) = %v", tt.path, err)
			}
			if GetAvailableSpace(tt.path) == 0 {
				t.Errorf("GetAvailableSpace(%q) = 0", tt.path)
			}
		})
	}
}

func TestCheckAvailableSpaceTooLarge(t *testing.T) {
	// 1 EiB does not fit on any test machine.
	err := CheckAvailableSpace(filepath.Join(t.TempDir(), "huge.pdf"), 1<<60, 1.15)
	if err == nil {
		t.Skip("filesystem reports more than 1 EiB free")
	}
	var spaceErr *InsufficientSpaceError
	if !errors.As(err, &spaceErr) {
		t.Fatalf("err = %T, want *InsufficientSpaceError", err)
	}
	if spaceErr.RequiredBytes <= 1<<60 {
		t.Errorf("RequiredBytes = %d, want the safety margin applied", spaceErr.RequiredBytes)
	}
}

func TestIsInsufficientSpaceError(t *testing.T) {
	spaceErr := &InsufficientSpaceError{Path: "/exports/result.md", RequiredBytes: 1000, AvailableBytes: 500}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct", spaceErr, true},
		{"wrapped", fmt.Errorf("save result.md: %w", spaceErr), true},
		{"other", errors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		if got := IsInsufficientSpaceError(tt.err); got != tt.want {
			t.Errorf("%s: IsInsufficientSpaceError = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestInsufficientSpaceErrorMessage(t *testing.T) {
	msg := (&InsufficientSpaceError{
		Path:           "/exports/scan.pdf",
		RequiredBytes:  100 << 20,
		AvailableBytes: 50 << 20,
	}).Error()

	for _, want := range []string{"/exports/scan.pdf", "100.00", "50.00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
