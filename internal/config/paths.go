package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// LogDirectory returns the directory the UI's rotating log file lives in.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\ocrdesk\logs
//   - Unix: ~/.config/ocrdesk/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "ocrdesk-logs")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "ocrdesk", "logs")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "ocrdesk-logs")
		}
		return filepath.Join(homeDir, ".config", "ocrdesk", "logs")
	}
	return filepath.Join(configDir, "ocrdesk", "logs")
}

// EnsureLogDirectory creates the log directory with owner-only permissions.
func EnsureLogDirectory() error {
	return os.MkdirAll(LogDirectory(), 0700)
}
