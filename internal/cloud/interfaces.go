// Package cloud defines where exported result files go. A destination is a
// local directory, an S3 bucket prefix or an Azure Blob container prefix;
// every kind is written through the same Saver interface.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Scheme identifies the destination backend.
type Scheme string

const (
	SchemeLocal Scheme = "local"
	SchemeS3    Scheme = "s3"
	SchemeAzure Scheme = "azblob"
)

var (
	// ErrEmptyDestination is returned for a blank destination string.
	ErrEmptyDestination = errors.New("export destination is empty")
	// ErrInvalidDestination is returned when a URL-style destination is malformed.
	ErrInvalidDestination = errors.New("invalid export destination")
	// ErrInvalidKey is returned for keys that are empty or escape the destination root.
	ErrInvalidKey = errors.New("invalid object key")
)

// Saver writes one result file under a destination.
type Saver interface {
	// Save stores data under key (slash-separated, relative to the
	// destination) and returns where it ended up.
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Location describes the destination for logs and notifications.
	Location() string
}

// Destination is a parsed export target.
//
//	./ocr-results                        -> local, Path "./ocr-results"
//	s3://bucket/some/prefix              -> s3, Container "bucket", Prefix "some/prefix"
//	azblob://account/container/prefix    -> azblob, Account "account", Container "container"
type Destination struct {
	Scheme    Scheme
	Path      string
	Account   string
	Container string
	Prefix    string
}

// ParseDestination parses a destination string from config or a flag.
func ParseDestination(s string) (Destination, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Destination{}, ErrEmptyDestination
	}

	switch {
	case strings.HasPrefix(s, "s3://"):
		parts := splitNonEmpty(strings.TrimPrefix(s, "s3://"))
		if len(parts) == 0 {
			return Destination{}, fmt.Errorf("%w: %s has no bucket", ErrInvalidDestination, s)
		}
		return Destination{
			Scheme:    SchemeS3,
			Container: parts[0],
			Prefix:    strings.Join(parts[1:], "/"),
		}, nil

	case strings.HasPrefix(s, "azblob://"):
		parts := splitNonEmpty(strings.TrimPrefix(s, "azblob://"))
		if len(parts) < 2 {
			return Destination{}, fmt.Errorf("%w: %s needs account and container", ErrInvalidDestination, s)
		}
		return Destination{
			Scheme:    SchemeAzure,
			Account:   parts[0],
			Container: parts[1],
			Prefix:    strings.Join(parts[2:], "/"),
		}, nil

	case strings.HasPrefix(s, "file://"):
		return Destination{Scheme: SchemeLocal, Path: strings.TrimPrefix(s, "file://")}, nil

	case strings.Contains(s, "://"):
		return Destination{}, fmt.Errorf("%w: unsupported scheme in %s", ErrInvalidDestination, s)
	}

	return Destination{Scheme: SchemeLocal, Path: s}, nil
}

// String renders the destination back to its canonical form.
func (d Destination) String() string {
	switch d.Scheme {
	case SchemeS3:
		return "s3://" + joinKey(d.Container, d.Prefix)
	case SchemeAzure:
		return "azblob://" + joinKey(d.Account, d.Container, d.Prefix)
	default:
		return d.Path
	}
}

// ObjectKey prefixes key with the destination prefix after validating it.
func (d Destination) ObjectKey(key string) (string, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return joinKey(d.Prefix, clean), nil
}

// CleanKey normalises a relative key and rejects ones that are empty or
// climb out of the destination with "..".
func CleanKey(key string) (string, error) {
	parts := splitNonEmpty(strings.ReplaceAll(key, "\\", "/"))
	out := parts[:0]
	for _, p := range parts {
		switch p {
		case ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return strings.Join(out, "/"), nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "/") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinKey(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
