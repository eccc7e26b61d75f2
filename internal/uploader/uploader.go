// Package uploader holds the single local file chosen for parsing and its
// preview. It never talks to the backend; the controller callback owns that.
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ocrdesk/ocrdesk/internal/blob"
	"github.com/ocrdesk/ocrdesk/internal/constants"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// ErrUnsupportedType is returned for files outside the picker filter
var ErrUnsupportedType = errors.New("unsupported file type (accepted: .pdf, .png, .jpg, .jpeg)")

// File is the raw selection forwarded to the controller
type File struct {
	Name string
	Data []byte
}

// ChangeFunc receives the new selection, or nil when the file was removed
type ChangeFunc func(ctx context.Context, f *File)

// Preview describes the locally shown copy of the selected file
type Preview struct {
	Ref         blob.Ref `json:"ref"`
	Name        string   `json:"name"`
	Size        int64    `json:"size"`
	ContentType string   `json:"contentType"`
	Pages       int      `json:"pages,omitempty"`
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
}

// Uploader tracks at most one selected file
type Uploader struct {
	store    *blob.Store
	onChange ChangeFunc

	mu      sync.Mutex
	preview *Preview
}

// New creates an uploader that publishes previews into store
func New(store *blob.Store, onChange ChangeFunc) *Uploader {
	return &Uploader{store: store, onChange: onChange}
}

// Accepts reports whether name passes the file picker filter
func Accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, ok := range constants.AcceptedUploadExtensions {
		if ext == ok {
			return true
		}
	}
	return false
}

// SelectPath reads a local file and selects it
func (u *Uploader) SelectPath(ctx context.Context, path string) (*Preview, error) {
	if !Accepts(path) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedType)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return u.Select(ctx, filepath.Base(path), data)
}

// Select replaces the current selection, builds a preview and forwards the
// file to the change callback.
func (u *Uploader) Select(ctx context.Context, name string, data []byte) (*Preview, error) {
	if !Accepts(name) {
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedType)
	}

	p := describe(name, data)
	p.Ref = u.store.Create(data, p.ContentType)

	u.mu.Lock()
	old := u.preview
	u.preview = p
	u.mu.Unlock()

	if old != nil {
		u.store.Revoke(old.Ref)
	}

	if u.onChange != nil {
		u.onChange(ctx, &File{Name: name, Data: data})
	}
	return p, nil
}

// Remove drops the selection and tells the callback there is no file
func (u *Uploader) Remove(ctx context.Context) {
	u.mu.Lock()
	old := u.preview
	u.preview = nil
	u.mu.Unlock()

	if old != nil {
		u.store.Revoke(old.Ref)
	}
	if u.onChange != nil {
		u.onChange(ctx, nil)
	}
}

// Preview returns a copy of the current preview, or nil
func (u *Uploader) Preview() *Preview {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.preview == nil {
		return nil
	}
	p := *u.preview
	return &p
}

func describe(name string, data []byte) *Preview {
	p := &Preview{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: models.ContentType(name),
	}

	switch models.ClassifyFile(name) {
	case models.KindPDF:
		p.Pages = pdfPages(data)
	case models.KindImage:
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			p.Width, p.Height = cfg.Width, cfg.Height
		}
	}
	return p
}

// pdfPages returns the page count of a PDF, or 0 when pdfcpu cannot read it.
// pdfcpu panics on some truncated bodies; a broken file is still uploaded and
// left for the backend to reject.
func pdfPages(data []byte) (pages int) {
	defer func() {
		if r := recover(); r != nil {
			pages = 0
		}
	}()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0
	}
	return n
}
