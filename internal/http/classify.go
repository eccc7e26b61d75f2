package http

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorType represents different classes of backend call failures
type ErrorType int

const (
	// ErrorTypeSuccess indicates the call succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCanceled indicates the caller's context ended first
	ErrorTypeCanceled
	// ErrorTypeNetwork indicates network/connection issues (timeouts, connection refused, etc.)
	ErrorTypeNetwork
	// ErrorTypeServer indicates a 5xx or throttling response
	ErrorTypeServer
	// ErrorTypeClient indicates a 4xx response or a payload that broke the contract
	ErrorTypeClient
)

// ClassifyError buckets an error from a backend call. The result is used as
// the outcome label on request metrics and in log lines.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTypeCanceled
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	if strings.Contains(errStr, "status 5") ||
		strings.Contains(errStr, "status 429") ||
		strings.Contains(errStr, "service unavailable") {
		return ErrorTypeServer
	}

	return ErrorTypeClient
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCanceled:
		return "canceled"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeServer:
		return "server"
	case ErrorTypeClient:
		return "client"
	default:
		return "unknown"
	}
}
