package providers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ocrdesk/ocrdesk/internal/cloud"
	"github.com/ocrdesk/ocrdesk/internal/cloud/providers/azure"
	"github.com/ocrdesk/ocrdesk/internal/cloud/providers/local"
)

func TestNewSaver(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "out")

	s, err := NewSaver(ctx, dir, nil)
	if err != nil {
		t.Fatalf("NewSaver(local) error = %v", err)
	}
	if _, ok := s.(*local.Saver); !ok {
		t.Errorf("expected *local.Saver, got %T", s)
	}

	t.Setenv(EnvAzureSASToken, "sig=abc")
	s, err = NewSaver(ctx, "azblob://acct/container", nil)
	if err != nil {
		t.Fatalf("NewSaver(azblob) error = %v", err)
	}
	if _, ok := s.(*azure.Saver); !ok {
		t.Errorf("expected *azure.Saver, got %T", s)
	}

	if _, err := NewSaver(ctx, "ftp://host/dir", nil); !errors.Is(err, cloud.ErrInvalidDestination) {
		t.Errorf("NewSaver(ftp) error = %v, want ErrInvalidDestination", err)
	}
	if _, err := NewSaver(ctx, "", nil); !errors.Is(err, cloud.ErrEmptyDestination) {
		t.Errorf("NewSaver(\"\") error = %v, want ErrEmptyDestination", err)
	}
}
