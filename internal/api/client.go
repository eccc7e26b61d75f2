package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ocrdesk/ocrdesk/internal/config"
	"github.com/ocrdesk/ocrdesk/internal/http"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/metrics"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// Endpoint names used in errors, logs and metric labels
const (
	EndpointUpload   = "upload"
	EndpointStart    = "start"
	EndpointProgress = "progress"
	EndpointResult   = "result"
	EndpointFolder   = "folder"
	EndpointFile     = "file content"
)

// maxErrorBody caps how much of a failed response body ends up in an error
const maxErrorBody = 512

// retryLogger implements the retryablehttp.LeveledLogger interface on top of
// the application logger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg("[retry] " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("[retry] " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg("[retry] " + msg)
}

// Client talks to the OCR backend
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	logger     *logging.Logger
}

// NewClient creates a new backend client
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrEmptyBaseURL
	}
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}

	httpClient, err := http.CreateClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	// Polling is the only retry policy by default; RetryMax opts into more
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{logger: logger}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:     logger,
	}, nil
}

// BaseURL returns the backend base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest performs an HTTP request against the backend and records metrics.
// The caller owns the response body.
func (c *Client) doRequest(ctx context.Context, endpoint, method, path string, body io.Reader, contentType string) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, */*")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(endpoint, http.ErrorTypeName(http.ClassifyError(err)), time.Since(start))
		c.logger.Debug().Err(err).Str("endpoint", endpoint).Str("method", method).Str("path", path).Msg("backend call failed")
		return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		metrics.RecordBackendRequest(endpoint, http.ErrorTypeName(http.ClassifyError(statusErr)), time.Since(start))
		return nil, statusErr
	}

	metrics.RecordBackendRequest(endpoint, "success", time.Since(start))
	return resp, nil
}

// getJSON issues a request and decodes + validates the JSON response into v
func (c *Client) getJSON(ctx context.Context, endpoint, method, path string, body io.Reader, contentType string, v interface{ Validate() error }) error {
	resp, err := c.doRequest(ctx, endpoint, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	return nil
}

// Upload sends one file to the backend and returns its storage path
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*models.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var out models.UploadResponse
	if err := c.getJSON(ctx, EndpointUpload, nethttp.MethodPost, "/api/upload", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("file", name).Str("path", out.FilePath).Msg("uploaded")
	return &out, nil
}

// Start launches an OCR job for an uploaded file
func (c *Client) Start(ctx context.Context, filePath, prompt string) (*models.StartResponse, error) {
	body, err := json.Marshal(models.StartRequest{FilePath: filePath, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var out models.StartResponse
	if err := c.getJSON(ctx, EndpointStart, nethttp.MethodPost, "/api/start", bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Progress fetches the state of a running job
func (c *Client) Progress(ctx context.Context, taskID string) (*models.ProgressResponse, error) {
	var out models.ProgressResponse
	if err := c.getJSON(ctx, EndpointProgress, nethttp.MethodGet, "/api/progress/"+url.PathEscape(taskID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Result fetches the result location of a finished job
func (c *Client) Result(ctx context.Context, taskID string) (*models.ResultResponse, error) {
	var out models.ResultResponse
	if err := c.getJSON(ctx, EndpointResult, nethttp.MethodGet, "/api/result/"+url.PathEscape(taskID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Folder fetches the recursive listing of a result directory
func (c *Client) Folder(ctx context.Context, dir string) (*models.FolderResponse, error) {
	var out models.FolderResponse
	if err := c.getJSON(ctx, EndpointFolder, nethttp.MethodGet, "/api/folder?path="+url.QueryEscape(dir), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FileText fetches the JSON-wrapped text content of a result file
func (c *Client) FileText(ctx context.Context, path string) (string, error) {
	var out models.FileContentResponse
	if err := c.getJSON(ctx, EndpointFile, nethttp.MethodGet, "/api/file/content?path="+url.QueryEscape(path), nil, "", &out); err != nil {
		return "", err
	}
	return *out.Content, nil
}

// FileBytes fetches the raw bytes of a result file. The backend answers
// binary types with the file itself and everything else with {content};
// both forms are accepted.
func (c *Client) FileBytes(ctx context.Context, path string) ([]byte, string, error) {
	resp, err := c.doRequest(ctx, EndpointFile, nethttp.MethodGet, "/api/file/content?path="+url.QueryEscape(path), nil, "")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s response: %w", EndpointFile, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, _ := mime.ParseMediaType(contentType); mediaType == "application/json" {
		var wrapped models.FileContentResponse
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, "", fmt.Errorf("failed to decode %s response: %w", EndpointFile, err)
		}
		if err := wrapped.Validate(); err != nil {
			return nil, "", fmt.Errorf("%s: %w", EndpointFile, err)
		}
		return []byte(*wrapped.Content), models.ContentType(path), nil
	}

	if contentType == "" {
		contentType = models.ContentType(path)
	}
	return data, contentType, nil
}
