package s3

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ocrdesk/ocrdesk/internal/cloud"
)

type recordedRequest struct {
	method      string
	path        string
	contentType string
}

func newFakeS3(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqs = append(reqs, recordedRequest{r.Method, r.URL.Path, r.Header.Get("Content-Type")})
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestSavePutsObjectUnderPrefix(t *testing.T) {
	srv, requests := newFakeS3(t)
	dest, err := cloud.ParseDestination("s3://bucket/ocr/t1")
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewSaver(context.Background(), dest, Options{
		Region:     "us-east-1",
		Endpoint:   srv.URL,
		AccessKey:  "AKIDEXAMPLE",
		SecretKey:  "secret",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewSaver() error = %v", err)
	}

	loc, err := s.Save(context.Background(), "images/0.jpg", []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if loc != "s3://bucket/ocr/t1/images/0.jpg" {
		t.Errorf("location = %s", loc)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}
	if got[0].method != http.MethodPut || got[0].path != "/bucket/ocr/t1/images/0.jpg" {
		t.Errorf("request = %+v", got[0])
	}
	if got[0].contentType != "image/jpeg" {
		t.Errorf("content type = %q", got[0].contentType)
	}
	if s.Location() != "s3://bucket/ocr/t1" {
		t.Errorf("Location() = %s", s.Location())
	}
}

func TestSaveRejectsBadKey(t *testing.T) {
	srv, requests := newFakeS3(t)
	dest, _ := cloud.ParseDestination("s3://bucket")
	s, err := NewSaver(context.Background(), dest, Options{
		Region: "us-east-1", Endpoint: srv.URL, AccessKey: "a", SecretKey: "b",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Save(context.Background(), "../x", []byte("x"), ""); !errors.Is(err, cloud.ErrInvalidKey) {
		t.Errorf("Save() error = %v, want ErrInvalidKey", err)
	}
	if len(requests()) != 0 {
		t.Error("no request should reach the server")
	}
}

func TestNewSaverRejectsOtherSchemes(t *testing.T) {
	dest, _ := cloud.ParseDestination("./out")
	if _, err := NewSaver(context.Background(), dest, Options{}); !errors.Is(err, cloud.ErrInvalidDestination) {
		t.Errorf("NewSaver() error = %v, want ErrInvalidDestination", err)
	}
}
