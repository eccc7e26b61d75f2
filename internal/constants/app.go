package constants

import (
	"time"
)

// Backend defaults
const (
	// DefaultBaseURL - backend address used when nothing is configured
	DefaultBaseURL = "http://127.0.0.1:8002"

	// DefaultPrompt - prompt pre-filled in the prompt box
	DefaultPrompt = "<image>\n<|grounding|>Convert the document to markdown."

	// ResultsMarker - path segment the backend serves result files under
	ResultsMarker = "results/"
)

// Job polling
const (
	// PollInterval - fixed interval between job progress requests (2 seconds)
	// No backoff and no retry cutoff: a failed tick is simply followed by the next one.
	PollInterval = 2 * time.Second

	// PollRequestTimeout - per-tick request timeout, keeps a hung request from
	// swallowing several ticks
	PollRequestTimeout = 10 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000

	// EventBridgeProgressInterval - minimum spacing between forwarded progress
	// events for the same key (10 updates/sec)
	EventBridgeProgressInterval = 100 * time.Millisecond
)

// UI server
const (
	// DefaultListenAddr - address the browser UI binds to
	DefaultListenAddr = "127.0.0.1:8080"

	// UIShutdownTimeout - grace period for the UI server on Ctrl+C
	UIShutdownTimeout = 5 * time.Second

	// MaxUploadBytes - body limit for the local file picker endpoint (200 MB)
	MaxUploadBytes = 200 * 1024 * 1024
)

// Disk space safety margin
const (
	// DiskSpaceSafetyMargin - multiplier applied to the estimated download size
	DiskSpaceSafetyMargin = 1.15
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPClientTimeout - overall timeout for a single backend call (5 minutes)
	// Uploads of large PDFs are the slowest call the client makes.
	HTTPClientTimeout = 5 * time.Minute
)

// Accepted upload extensions (file picker filter)
var AcceptedUploadExtensions = []string{".pdf", ".png", ".jpg", ".jpeg"}
