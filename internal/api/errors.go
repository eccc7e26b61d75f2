package api

import (
	"errors"
	"fmt"

	"github.com/ocrdesk/ocrdesk/internal/models"
)

// ErrUnexpectedResponse is returned (wrapped with the endpoint) when a payload
// decodes but breaks its endpoint's success contract.
var ErrUnexpectedResponse = models.ErrUnexpectedResponse

// ErrEmptyBaseURL is returned by NewClient when no backend is configured.
var ErrEmptyBaseURL = errors.New("backend base URL is empty")

// StatusError is returned for any non-2xx backend response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s failed: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == 404
}
