// Package local saves exported result files into a directory on disk.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ocrdesk/ocrdesk/internal/cloud"
	"github.com/ocrdesk/ocrdesk/internal/constants"
	"github.com/ocrdesk/ocrdesk/internal/diskspace"
)

// Saver writes files below Root.
type Saver struct {
	Root string
}

// NewSaver creates a saver rooted at dir. The directory is created lazily.
func NewSaver(dir string) (*Saver, error) {
	if dir == "" {
		return nil, cloud.ErrEmptyDestination
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return &Saver{Root: abs}, nil
}

// Location returns the root directory.
func (s *Saver) Location() string {
	return s.Root
}

// Save writes data to Root/key through a temporary file and rename, so a
// partially written file never replaces a good one.
func (s *Saver) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cloud.CleanKey(key)
	if err != nil {
		return "", err
	}

	target := filepath.Join(s.Root, filepath.FromSlash(clean))
	if err := diskspace.CheckAvailableSpace(target, int64(len(data)), constants.DiskSpaceSafetyMargin); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", clean, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".ocrdesk-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close %s: %w", clean, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to set permissions on %s: %w", clean, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move %s into place: %w", clean, err)
	}

	return target, nil
}

var _ cloud.Saver = (*Saver)(nil)
