// Package apitest provides an in-process fake OCR backend for tests.
package apitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ocrdesk/ocrdesk/internal/models"
)

// File is one result file served by the fake backend.
type File struct {
	Content []byte
	// Binary files are served raw; everything else as {"content": ...}
	Binary bool
}

// Backend is a scriptable fake of the OCR service. The setters are safe to
// call while requests are in flight.
type Backend struct {
	Server *httptest.Server

	mu            sync.Mutex
	uploadStatus  string
	startStatus   string
	taskID        string
	progressSteps []string // state returned per progress call; last one repeats
	progressFails int      // first N progress calls answer 500
	resultStatus  string
	resultDir     string
	folder        []models.FolderEntry
	folderStatus  string
	files         map[string]File
	fileFails     map[string]bool

	uploads     atomic.Int64
	starts      atomic.Int64
	progresses  atomic.Int64
	results     atomic.Int64
	folders     atomic.Int64
	fileFetches atomic.Int64

	lastPrompt atomic.Value
	lastUpload atomic.Value
}

// NewBackend starts a fake backend that succeeds everywhere. The job
// finishes on the third progress call with result dir /data/results/t1.
func NewBackend() *Backend {
	b := &Backend{
		uploadStatus:  "success",
		startStatus:   "running",
		taskID:        "t1",
		progressSteps: []string{"running", "running", "finished"},
		resultStatus:  "success",
		resultDir:     "/data/results/t1",
		folderStatus:  "success",
		files:         map[string]File{},
		fileFails:     map[string]bool{},
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.handle))
	return b
}

// Close shuts the server down
func (b *Backend) Close() { b.Server.Close() }

// URL returns the base URL of the fake
func (b *Backend) URL() string { return b.Server.URL }

// SetUploadStatus sets the status field returned by /api/upload
func (b *Backend) SetUploadStatus(s string) { b.mu.Lock(); b.uploadStatus = s; b.mu.Unlock() }

// SetStartStatus sets the status field returned by /api/start
func (b *Backend) SetStartStatus(s string) { b.mu.Lock(); b.startStatus = s; b.mu.Unlock() }

// SetTaskID sets the task id returned by /api/start
func (b *Backend) SetTaskID(id string) { b.mu.Lock(); b.taskID = id; b.mu.Unlock() }

// SetProgressSteps sets the sequence of states returned by /api/progress
func (b *Backend) SetProgressSteps(steps ...string) {
	b.mu.Lock()
	b.progressSteps = steps
	b.mu.Unlock()
}

// SetProgressFailures makes the first n progress calls answer 500
func (b *Backend) SetProgressFailures(n int) { b.mu.Lock(); b.progressFails = n; b.mu.Unlock() }

// SetResultStatus sets the status field returned by /api/result
func (b *Backend) SetResultStatus(s string) { b.mu.Lock(); b.resultStatus = s; b.mu.Unlock() }

// SetResultDir sets the result dir returned by /api/result
func (b *Backend) SetResultDir(dir string) { b.mu.Lock(); b.resultDir = dir; b.mu.Unlock() }

// SetFolderStatus sets the status field returned by /api/folder
func (b *Backend) SetFolderStatus(s string) { b.mu.Lock(); b.folderStatus = s; b.mu.Unlock() }

// SetFolder sets the listing returned by /api/folder
func (b *Backend) SetFolder(entries ...models.FolderEntry) {
	b.mu.Lock()
	b.folder = entries
	b.mu.Unlock()
}

// AddFile registers a file served by /api/file/content
func (b *Backend) AddFile(path string, f File) {
	b.mu.Lock()
	b.files[path] = f
	b.mu.Unlock()
}

// FailFile makes /api/file/content answer 500 for path
func (b *Backend) FailFile(path string) {
	b.mu.Lock()
	b.fileFails[path] = true
	b.mu.Unlock()
}

// Uploads returns the number of upload calls
func (b *Backend) Uploads() int64 { return b.uploads.Load() }

// Starts returns the number of start calls
func (b *Backend) Starts() int64 { return b.starts.Load() }

// Progresses returns the number of progress calls
func (b *Backend) Progresses() int64 { return b.progresses.Load() }

// Results returns the number of result calls
func (b *Backend) Results() int64 { return b.results.Load() }

// Folders returns the number of folder calls
func (b *Backend) Folders() int64 { return b.folders.Load() }

// FileFetches returns the number of file content calls
func (b *Backend) FileFetches() int64 { return b.fileFetches.Load() }

// Total returns the number of calls across all endpoints
func (b *Backend) Total() int64 {
	return b.Uploads() + b.Starts() + b.Progresses() + b.Results() + b.Folders() + b.FileFetches()
}

// LastPrompt returns the prompt of the most recent start call
func (b *Backend) LastPrompt() string {
	v, _ := b.lastPrompt.Load().(string)
	return v
}

// LastUpload returns the bytes of the most recent upload
func (b *Backend) LastUpload() []byte {
	v, _ := b.lastUpload.Load().([]byte)
	return v
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (b *Backend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/upload":
		b.uploads.Add(1)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		f.Close()
		b.lastUpload.Store(data)
		if b.uploadStatus != "success" {
			writeJSON(w, map[string]string{"status": b.uploadStatus, "message": "upload rejected"})
			return
		}
		writeJSON(w, map[string]string{
			"status":    "success",
			"file_path": "/data/uploads/" + hdr.Filename,
			"file_type": "pdf",
		})

	case r.Method == http.MethodPost && r.URL.Path == "/api/start":
		b.starts.Add(1)
		var req models.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.lastPrompt.Store(req.Prompt)
		if b.startStatus != "running" {
			writeJSON(w, map[string]string{"status": b.startStatus, "message": "file missing"})
			return
		}
		writeJSON(w, map[string]string{"status": "running", "task_id": b.taskID})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/progress/"):
		n := b.progresses.Add(1)
		if int(n) <= b.progressFails {
			http.Error(w, "backend hiccup", http.StatusInternalServerError)
			return
		}
		idx := int(n) - b.progressFails - 1
		if idx >= len(b.progressSteps) {
			idx = len(b.progressSteps) - 1
		}
		state := "running"
		if idx >= 0 {
			state = b.progressSteps[idx]
		}
		writeJSON(w, map[string]interface{}{
			"status":   "success",
			"task_id":  strings.TrimPrefix(r.URL.Path, "/api/progress/"),
			"state":    state,
			"progress": 50,
		})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/result/"):
		b.results.Add(1)
		if b.resultStatus != "success" {
			writeJSON(w, map[string]string{"status": b.resultStatus, "message": "result missing"})
			return
		}
		writeJSON(w, map[string]interface{}{
			"status":     "success",
			"task_id":    strings.TrimPrefix(r.URL.Path, "/api/result/"),
			"state":      "finished",
			"result_dir": b.resultDir,
			"files":      []string{},
		})

	case r.Method == http.MethodGet && r.URL.Path == "/api/folder":
		b.folders.Add(1)
		if b.folderStatus != "success" {
			writeJSON(w, map[string]string{"status": b.folderStatus, "message": "bad path"})
			return
		}
		writeJSON(w, models.FolderResponse{
			Status:   "success",
			Path:     r.URL.Query().Get("path"),
			Children: b.folder,
		})

	case r.Method == http.MethodGet && r.URL.Path == "/api/file/content":
		b.fileFetches.Add(1)
		p := r.URL.Query().Get("path")
		if b.fileFails[p] {
			http.Error(w, "read error", http.StatusInternalServerError)
			return
		}
		f, ok := b.files[p]
		if !ok {
			writeJSON(w, map[string]string{"status": "error", "message": "not found"})
			return
		}
		if f.Binary {
			w.Header().Set("Content-Type", models.ContentType(p))
			_, _ = w.Write(f.Content)
			return
		}
		writeJSON(w, map[string]string{"content": string(f.Content)})

	default:
		http.NotFound(w, r)
	}
}
