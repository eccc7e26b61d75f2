package models

import (
	"errors"
	"fmt"
)

// ErrUnexpectedResponse marks a backend payload that decoded but broke the
// success contract of its endpoint.
var ErrUnexpectedResponse = errors.New("unexpected response from backend")

const (
	statusSuccess = "success"
	statusRunning = "running"
	stateFinished = "finished"
)

func contractError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnexpectedResponse, fmt.Sprintf(format, args...))
}

// UploadResponse is returned by POST /api/upload
type UploadResponse struct {
	Status   string `json:"status"`
	FilePath string `json:"file_path"`
	FileType string `json:"file_type,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Validate enforces status == "success" and a non-empty storage path
func (r *UploadResponse) Validate() error {
	if r.Status != statusSuccess {
		return contractError("upload status %q: %s", r.Status, r.Message)
	}
	if r.FilePath == "" {
		return contractError("upload returned no file_path")
	}
	return nil
}

// StartRequest is the body of POST /api/start
type StartRequest struct {
	FilePath string `json:"file_path"`
	Prompt   string `json:"prompt"`
}

// StartResponse is returned by POST /api/start
type StartResponse struct {
	Status  string `json:"status"`
	TaskID  string `json:"task_id"`
	Message string `json:"message,omitempty"`
}

// Validate enforces status == "running" and a task id
func (r *StartResponse) Validate() error {
	if r.Status != statusRunning {
		return contractError("start status %q: %s", r.Status, r.Message)
	}
	if r.TaskID == "" {
		return contractError("start returned no task_id")
	}
	return nil
}

// ProgressResponse is returned by GET /api/progress/{task_id}.
// State mirrors the backend task status ("running", "finished", "error").
type ProgressResponse struct {
	Status   string  `json:"status"`
	TaskID   string  `json:"task_id"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

// Validate enforces status == "success"; the state itself is not checked
func (r *ProgressResponse) Validate() error {
	if r.Status != statusSuccess {
		return contractError("progress status %q: %s", r.Status, r.Message)
	}
	return nil
}

// Finished reports whether polling should stop
func (r *ProgressResponse) Finished() bool {
	return r.Status == statusSuccess && r.State == stateFinished
}

// ResultResponse is returned by GET /api/result/{task_id}
type ResultResponse struct {
	Status    string   `json:"status"`
	TaskID    string   `json:"task_id"`
	State     string   `json:"state"`
	ResultDir string   `json:"result_dir"`
	Files     []string `json:"files,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Validate enforces status == "success", state == "finished" and a result dir
func (r *ResultResponse) Validate() error {
	if r.Status != statusSuccess || r.State != stateFinished {
		return contractError("result status %q state %q: %s", r.Status, r.State, r.Message)
	}
	if r.ResultDir == "" {
		return contractError("result returned no result_dir")
	}
	return nil
}

// FolderEntry is one node of the recursive folder listing
type FolderEntry struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Path     string        `json:"path"`
	Children []FolderEntry `json:"children,omitempty"`
}

// FolderResponse is returned by GET /api/folder
type FolderResponse struct {
	Status   string        `json:"status"`
	Path     string        `json:"path"`
	Children []FolderEntry `json:"children"`
	Message  string        `json:"message,omitempty"`
}

// Validate enforces status == "success" and well-formed entry types
func (r *FolderResponse) Validate() error {
	if r.Status != statusSuccess {
		return contractError("folder status %q: %s", r.Status, r.Message)
	}
	return validateEntries(r.Children)
}

func validateEntries(entries []FolderEntry) error {
	for _, e := range entries {
		switch e.Type {
		case string(NodeFolder):
			if err := validateEntries(e.Children); err != nil {
				return err
			}
		case string(NodeFile):
		default:
			return contractError("entry %q has type %q", e.Name, e.Type)
		}
		if e.Name == "" {
			return contractError("entry with empty name")
		}
	}
	return nil
}

// FileContentResponse is the JSON form of GET /api/file/content
type FileContentResponse struct {
	Content *string `json:"content"`
	Status  string  `json:"status,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Validate requires the content field to be present
func (r *FileContentResponse) Validate() error {
	if r.Content == nil {
		return contractError("file content missing (status %q: %s)", r.Status, r.Message)
	}
	return nil
}
