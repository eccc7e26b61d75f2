// Package blob keeps transient in-memory file contents addressable by an
// opaque reference, the local stand-in for browser object URLs. References
// are served by the UI server under /blob/{id} and must be revoked once the
// content is no longer shown.
package blob

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ocrdesk/ocrdesk/internal/metrics"
)

// Prefix is prepended to every reference
const Prefix = "blob:"

// ErrBlobNotFound is returned for unknown or revoked references
var ErrBlobNotFound = errors.New("blob not found")

// Ref is an opaque reference to stored content
type Ref string

// ID returns the reference without its prefix, as used in /blob/{id}
func (r Ref) ID() string {
	return strings.TrimPrefix(string(r), Prefix)
}

// Blob is one stored entry
type Blob struct {
	Data        []byte
	ContentType string
}

// Store holds blobs until they are revoked
type Store struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{blobs: make(map[string]Blob)}
}

// Create stores data and returns a new reference
func (s *Store) Create(data []byte, contentType string) Ref {
	id := uuid.NewString()

	s.mu.Lock()
	s.blobs[id] = Blob{Data: data, ContentType: contentType}
	n := len(s.blobs)
	s.mu.Unlock()

	metrics.SetBlobsLive(n)
	return Ref(Prefix + id)
}

// Get returns the blob for ref or its bare id
func (s *Store) Get(ref Ref) (Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[ref.ID()]
	if !ok {
		return Blob{}, ErrBlobNotFound
	}
	return b, nil
}

// Revoke drops ref. Revoking an unknown reference is a no-op.
func (s *Store) Revoke(ref Ref) {
	if ref == "" {
		return
	}
	s.mu.Lock()
	delete(s.blobs, ref.ID())
	n := len(s.blobs)
	s.mu.Unlock()

	metrics.SetBlobsLive(n)
}

// Len returns the number of live references
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// IsRef reports whether s looks like a blob reference
func IsRef(s string) bool {
	return strings.HasPrefix(s, Prefix)
}
