// Package config provides configuration management for ocrdesk.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/ocrdesk/ocrdesk/internal/constants"
)

// EnvBaseURL overrides the configured backend base URL.
const EnvBaseURL = "OCRDESK_BASE_URL"

// Config is the full ocrdesk configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\ocrdesk\config
//   - Unix: ~/.config/ocrdesk/config
//
// INI format:
//
//	[backend]
//	base_url = http://127.0.0.1:8002
//	proxy_mode = no-proxy
//	retry_max = 0
//
//	[ui]
//	listen = 127.0.0.1:8080
//	file_logging = true
//
//	[export]
//	destination = ./ocr-results
//	files_per_second = 0
//
//	[notifications]
//	enabled = true
type Config struct {
	// Backend connection settings
	BaseURL string

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy

	// RetryMax is the retryablehttp retry budget per backend call.
	// Default 0: polling is the only retry mechanism.
	RetryMax int

	UI            UIConfig
	Export        ExportConfig
	Notifications NotificationConfig
}

// UIConfig contains settings for the browser UI server.
type UIConfig struct {
	Listen      string
	FileLogging bool
}

// ExportConfig contains the download-all destination.
type ExportConfig struct {
	// Destination is a local directory, s3://bucket/prefix or
	// azblob://account/container/prefix.
	Destination string
	// FilesPerSecond paces file fetches during download-all. 0 is unlimited.
	FilesPerSecond float64
}

// NotificationConfig contains settings for desktop notifications.
type NotificationConfig struct {
	// Enabled indicates whether desktop notifications are shown.
	// Default: true
	Enabled bool
}

// Validation errors
var (
	ErrMissingBaseURL     = errors.New("base_url is required")
	ErrInvalidBaseURL     = errors.New("base_url must be an absolute http(s) URL")
	ErrInvalidProxyMode   = errors.New("proxy_mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost   = errors.New("proxy_host is required for basic and ntlm proxy modes")
	ErrInvalidRetryMax    = errors.New("retry_max must be between 0 and 10")
	ErrMissingListen      = errors.New("listen address is required")
	ErrMissingDestination = errors.New("export destination is required")
	ErrInvalidFileRate    = errors.New("files_per_second must not be negative")
)

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		configDir = filepath.Join(userProfile, ".config", "ocrdesk")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "ocrdesk")
	}

	return filepath.Join(configDir, "config"), nil
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		BaseURL:   constants.DefaultBaseURL,
		ProxyMode: "no-proxy",
		RetryMax:  0,
		UI: UIConfig{
			Listen:      constants.DefaultListenAddr,
			FileLogging: true,
		},
		Export: ExportConfig{
			Destination: "./ocr-results",
		},
		Notifications: NotificationConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
// The OCRDESK_BASE_URL environment variable is applied on top of the file.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			path = ""
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			iniFile, err := ini.Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
			cfg.apply(iniFile)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	if env := strings.TrimSpace(os.Getenv(EnvBaseURL)); env != "" {
		cfg.BaseURL = env
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return cfg, nil
}

func (c *Config) apply(iniFile *ini.File) {
	backend := iniFile.Section("backend")
	c.BaseURL = backend.Key("base_url").MustString(c.BaseURL)
	c.ProxyMode = backend.Key("proxy_mode").MustString(c.ProxyMode)
	c.ProxyHost = backend.Key("proxy_host").String()
	c.ProxyPort = backend.Key("proxy_port").MustInt(0)
	c.ProxyUser = backend.Key("proxy_user").String()
	c.ProxyPassword = backend.Key("proxy_password").String()
	c.NoProxy = backend.Key("no_proxy").String()
	c.RetryMax = backend.Key("retry_max").MustInt(c.RetryMax)

	ui := iniFile.Section("ui")
	c.UI.Listen = ui.Key("listen").MustString(c.UI.Listen)
	c.UI.FileLogging = ui.Key("file_logging").MustBool(c.UI.FileLogging)

	export := iniFile.Section("export")
	c.Export.Destination = export.Key("destination").MustString(c.Export.Destination)
	c.Export.FilesPerSecond = export.Key("files_per_second").MustFloat64(c.Export.FilesPerSecond)

	notify := iniFile.Section("notifications")
	c.Notifications.Enabled = notify.Key("enabled").MustBool(c.Notifications.Enabled)
}

// SetBaseURL applies a command-line override. Empty values are ignored.
func (c *Config) SetBaseURL(baseURL string) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return
	}
	c.BaseURL = strings.TrimSuffix(baseURL, "/")
}

// Save writes the configuration to an INI file.
// Creates parent directories if they don't exist.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	backend, err := iniFile.NewSection("backend")
	if err != nil {
		return fmt.Errorf("failed to create backend section: %w", err)
	}
	backend.Key("base_url").SetValue(cfg.BaseURL)
	backend.Key("proxy_mode").SetValue(cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		backend.Key("proxy_host").SetValue(cfg.ProxyHost)
		backend.Key("proxy_port").SetValue(fmt.Sprintf("%d", cfg.ProxyPort))
	}
	if cfg.ProxyUser != "" {
		backend.Key("proxy_user").SetValue(cfg.ProxyUser)
	}
	if cfg.NoProxy != "" {
		backend.Key("no_proxy").SetValue(cfg.NoProxy)
	}
	backend.Key("retry_max").SetValue(fmt.Sprintf("%d", cfg.RetryMax))

	ui, err := iniFile.NewSection("ui")
	if err != nil {
		return fmt.Errorf("failed to create ui section: %w", err)
	}
	ui.Key("listen").SetValue(cfg.UI.Listen)
	ui.Key("file_logging").SetValue(fmt.Sprintf("%t", cfg.UI.FileLogging))

	export, err := iniFile.NewSection("export")
	if err != nil {
		return fmt.Errorf("failed to create export section: %w", err)
	}
	export.Key("destination").SetValue(cfg.Export.Destination)
	if cfg.Export.FilesPerSecond > 0 {
		export.Key("files_per_second").SetValue(strconv.FormatFloat(cfg.Export.FilesPerSecond, 'f', -1, 64))
	}

	notify, err := iniFile.NewSection("notifications")
	if err != nil {
		return fmt.Errorf("failed to create notifications section: %w", err)
	}
	notify.Key("enabled").SetValue(fmt.Sprintf("%t", cfg.Notifications.Enabled))

	// Proxy password is never written; write to a temp file and rename.
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}

	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if c.ProxyHost == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	if c.RetryMax < 0 || c.RetryMax > 10 {
		return ErrInvalidRetryMax
	}
	if c.UI.Listen == "" {
		return ErrMissingListen
	}
	if c.Export.Destination == "" {
		return ErrMissingDestination
	}
	if c.Export.FilesPerSecond < 0 {
		return ErrInvalidFileRate
	}
	return nil
}
