package logging

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/events"
)

// busWriter forwards Warn and above onto the event bus as LogEvents so the
// browser can show them. Lower levels are dropped.
type busWriter struct {
	bus   *events.EventBus
	stage string
}

func (w busWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (w busWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	var busLevel events.Level
	switch {
	case level == zerolog.WarnLevel:
		busLevel = events.WarnLevel
	case level >= zerolog.ErrorLevel && level <= zerolog.PanicLevel:
		busLevel = events.ErrorLevel
	default:
		return len(p), nil
	}

	var entry struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Stage   string `json:"stage"`
	}
	if err := json.Unmarshal(p, &entry); err != nil {
		return len(p), nil
	}
	stage := entry.Stage
	if stage == "" {
		stage = w.stage
	}
	var err error
	if entry.Error != "" {
		err = errors.New(entry.Error)
	}
	w.bus.PublishLog(busLevel, entry.Message, stage, err)
	return len(p), nil
}
