package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ocrdesk/ocrdesk/internal/api/apitest"
	"github.com/ocrdesk/ocrdesk/internal/config"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.NewConfig()
	cfg.BaseURL = baseURL
	c, err := NewClient(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClientRejectsEmptyBaseURL(t *testing.T) {
	cfg := config.NewConfig()
	cfg.BaseURL = "  "

	_, err := NewClient(cfg, logging.NewTestLogger())
	if !errors.Is(err, ErrEmptyBaseURL) {
		t.Fatalf("NewClient() error = %v, want ErrEmptyBaseURL", err)
	}
}

func TestBaseURLTrimsSlash(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:8002/")
	if c.BaseURL() != "http://127.0.0.1:8002" {
		t.Errorf("BaseURL() = %s", c.BaseURL())
	}
}

func TestJobLifecycle(t *testing.T) {
	backend := apitest.NewBackend()
	defer backend.Close()
	c := newTestClient(t, backend.URL())
	ctx := context.Background()

	up, err := c.Upload(ctx, "scan.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if up.FilePath != "/data/uploads/scan.pdf" {
		t.Errorf("FilePath = %s", up.FilePath)
	}
	if string(backend.LastUpload()) != "%PDF-1.4" {
		t.Errorf("backend received %q", backend.LastUpload())
	}

	st, err := c.Start(ctx, up.FilePath, "<image>\nFree OCR.")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if st.TaskID != "t1" || backend.LastPrompt() != "<image>\nFree OCR." {
		t.Errorf("Start() = %+v, prompt %q", st, backend.LastPrompt())
	}

	var finished bool
	for i := 0; i < 3; i++ {
		p, err := c.Progress(ctx, st.TaskID)
		if err != nil {
			t.Fatalf("Progress() error = %v", err)
		}
		finished = p.Finished()
		if i < 2 && finished {
			t.Fatalf("poll %d finished early", i)
		}
	}
	if !finished {
		t.Fatal("third poll should report finished")
	}

	res, err := c.Result(ctx, st.TaskID)
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if res.ResultDir != "/data/results/t1" {
		t.Errorf("ResultDir = %s", res.ResultDir)
	}
}

func TestContractViolations(t *testing.T) {
	backend := apitest.NewBackend()
	defer backend.Close()
	c := newTestClient(t, backend.URL())
	ctx := context.Background()

	backend.SetUploadStatus("error")
	if _, err := c.Upload(ctx, "a.png", strings.NewReader("x")); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("Upload() error = %v, want ErrUnexpectedResponse", err)
	}

	backend.SetStartStatus("error")
	if _, err := c.Start(ctx, "/u/a.png", "p"); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("Start() error = %v, want ErrUnexpectedResponse", err)
	}

	backend.SetResultStatus("running")
	if _, err := c.Result(ctx, "t1"); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("Result() error = %v, want ErrUnexpectedResponse", err)
	}

	backend.SetFolderStatus("error")
	if _, err := c.Folder(ctx, "/nope"); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("Folder() error = %v, want ErrUnexpectedResponse", err)
	}

	if _, err := c.FileText(ctx, "/missing.md"); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("FileText() error = %v, want ErrUnexpectedResponse", err)
	}
}

func TestStatusError(t *testing.T) {
	backend := apitest.NewBackend()
	defer backend.Close()
	backend.SetProgressFailures(1)
	c := newTestClient(t, backend.URL())

	_, err := c.Progress(context.Background(), "t1")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Progress() error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusInternalServerError || se.Endpoint != EndpointProgress {
		t.Errorf("unexpected status error %+v", se)
	}
	if !strings.Contains(se.Error(), "status 500") {
		t.Errorf("Error() = %s", se.Error())
	}
	if backend.Progresses() != 1 {
		t.Errorf("expected no retries with RetryMax 0, got %d calls", backend.Progresses())
	}
}

func TestIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Folder(context.Background(), "/x")
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
}

func TestDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Progress(context.Background(), "t1")
	if err == nil || !strings.Contains(err.Error(), "failed to decode progress response") {
		t.Errorf("Progress() error = %v", err)
	}
}

func TestFolderAndFiles(t *testing.T) {
	backend := apitest.NewBackend()
	defer backend.Close()
	backend.SetFolder(
		models.FolderEntry{Name: "images", Type: "folder", Path: "/data/results/t1/images", Children: []models.FolderEntry{
			{Name: "0.jpg", Type: "file", Path: "/data/results/t1/images/0.jpg"},
		}},
		models.FolderEntry{Name: "page.md", Type: "file", Path: "/data/results/t1/page.md"},
	)
	backend.AddFile("/data/results/t1/page.md", apitest.File{Content: []byte("# hi")})
	backend.AddFile("/data/results/t1/images/0.jpg", apitest.File{Content: []byte{0xff, 0xd8}, Binary: true})
	backend.AddFile("/data/results/t1/layout.pdf", apitest.File{Content: []byte("%PDF")})
	c := newTestClient(t, backend.URL())
	ctx := context.Background()

	folder, err := c.Folder(ctx, "/data/results/t1")
	if err != nil {
		t.Fatalf("Folder() error = %v", err)
	}
	if folder.Path != "/data/results/t1" || len(folder.Children) != 2 {
		t.Errorf("Folder() = %+v", folder)
	}

	text, err := c.FileText(ctx, "/data/results/t1/page.md")
	if err != nil || text != "# hi" {
		t.Errorf("FileText() = %q, %v", text, err)
	}

	data, ct, err := c.FileBytes(ctx, "/data/results/t1/images/0.jpg")
	if err != nil {
		t.Fatalf("FileBytes() error = %v", err)
	}
	if len(data) != 2 || ct != "image/jpeg" {
		t.Errorf("FileBytes() = %v, %s", data, ct)
	}

	// JSON-wrapped content is unwrapped for byte fetches too
	data, ct, err = c.FileBytes(ctx, "/data/results/t1/layout.pdf")
	if err != nil {
		t.Fatalf("FileBytes(pdf) error = %v", err)
	}
	if string(data) != "%PDF" || ct != "application/pdf" {
		t.Errorf("FileBytes(pdf) = %q, %s", data, ct)
	}
}

func TestContextCanceled(t *testing.T) {
	backend := apitest.NewBackend()
	defer backend.Close()
	c := newTestClient(t, backend.URL())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Progress(ctx, "t1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Progress() error = %v, want context.Canceled", err)
	}
}
