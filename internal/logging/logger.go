// Package logging provides structured logging for both CLI and UI modes.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ocrdesk/ocrdesk/internal/config"
	"github.com/ocrdesk/ocrdesk/internal/events"
)

// EnvDebug enables debug logging when set to a non-empty value.
const EnvDebug = "OCRDESK_DEBUG"

// Logger wraps zerolog with mode-specific behavior.
type Logger struct {
	zlog     zerolog.Logger
	mode     string // "cli" or "ui"
	eventBus *events.EventBus // receives Warn+ entries, may be nil
	output   io.Writer

	mu   sync.Mutex
	file *lumberjack.Logger
}

// NewLogger creates a new logger for the specified mode.
func NewLogger(mode string, eventBus *events.EventBus) *Logger {
	// stdout carries command output (markdown, file bytes, paths), so
	// logs go to stderr in both modes
	var out io.Writer = os.Stderr

	l := &Logger{
		mode:     mode,
		eventBus: eventBus,
	}
	l.rebuild(out)
	return l
}

// NewDefaultCLILogger creates a default CLI logger.
func NewDefaultCLILogger() *Logger {
	return NewLogger("cli", nil)
}

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() *Logger {
	l := &Logger{mode: "test"}
	l.zlog = zerolog.New(io.Discard)
	l.output = io.Discard
	return l
}

func (l *Logger) rebuild(w io.Writer) {
	l.output = w
	console := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
	writers := []io.Writer{console}
	if l.file != nil {
		writers = append(writers, l.file)
	}
	if l.eventBus != nil {
		writers = append(writers, busWriter{bus: l.eventBus, stage: l.mode})
	}
	var sink io.Writer = console
	if len(writers) > 1 {
		sink = zerolog.MultiLevelWriter(writers...)
	}
	l.zlog = zerolog.New(sink).With().Timestamp().Logger()
}

// EnableFileLogging tees log output into a rotating file under the log directory.
// Calling it again is a no-op.
func (l *Logger) EnableFileLogging() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Filename, nil
	}

	logDir := config.LogDirectory()
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	l.file = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "ocrdesk.log"),
		MaxSize:    10, // MB per file
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	l.rebuild(l.output)
	return l.file.Filename, nil
}

// Close flushes and closes the rotating file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.rebuild(l.output)
	return err
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger with additional context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// SetOutput changes the output writer for the logger.
// Used to route logs above mpb progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rebuild(w)
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Debugf logs a debug message with printf-style formatting.
// This is only shown when debug/verbose mode is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ConfigureLevel picks debug when verbose is set or OCRDESK_DEBUG is present.
func ConfigureLevel(verbose bool) {
	if verbose || os.Getenv(EnvDebug) != "" {
		SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	SetGlobalLevel(zerolog.InfoLevel)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
