package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ocrdesk/ocrdesk/internal/cloud"
)

func TestSave(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ocr-results")
	s, err := NewSaver(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	got, err := s.Save(ctx, "images/0.jpg", []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got != filepath.Join(root, "images", "0.jpg") {
		t.Errorf("Save() path = %s", got)
	}
	data, err := os.ReadFile(got)
	if err != nil || string(data) != "jpeg" {
		t.Errorf("file content = %q, %v", data, err)
	}

	// Overwrite replaces the content
	if _, err := s.Save(ctx, "images/0.jpg", []byte("new"), ""); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(got)
	if string(data) != "new" {
		t.Errorf("overwritten content = %q", data)
	}

	entries, _ := os.ReadDir(filepath.Join(root, "images"))
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestSaveRejectsEscapingKeys(t *testing.T) {
	s, err := NewSaver(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(context.Background(), "../outside.md", []byte("x"), ""); !errors.Is(err, cloud.ErrInvalidKey) {
		t.Errorf("Save() error = %v, want ErrInvalidKey", err)
	}
}

func TestSaveHonoursCanceledContext(t *testing.T) {
	s, err := NewSaver(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Save(ctx, "result.md", []byte("x"), ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
}

func TestNewSaverRejectsEmpty(t *testing.T) {
	if _, err := NewSaver(""); !errors.Is(err, cloud.ErrEmptyDestination) {
		t.Errorf("NewSaver(\"\") error = %v", err)
	}
}
