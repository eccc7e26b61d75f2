package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ocrdesk/ocrdesk/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ocrdesk configuration",
		Long: `Configuration management commands for ocrdesk.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var (
		force    bool
		defaults bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for ocrdesk.

Press Enter to keep the value in brackets. Use --defaults to write the
default configuration without prompting and --force to overwrite an
existing file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg := config.NewConfig()
			if !defaults {
				promptConfig(cmd.InOrStdin(), out, cfg)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")

			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write the defaults without prompting")
	return cmd
}

// promptConfig asks for each setting, keeping the current value on empty input.
func promptConfig(in io.Reader, out io.Writer, cfg *config.Config) {
	reader := bufio.NewReader(in)
	ask := func(label, current string) string {
		fmt.Fprintf(out, "%s [%s]: ", label, current)
		input, _ := reader.ReadString('\n')
		if input = strings.TrimSpace(input); input != "" {
			return input
		}
		return current
	}
	askBool := func(label string, current bool) bool {
		def := "y/N"
		if current {
			def = "Y/n"
		}
		switch strings.ToLower(ask(label, def)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		return current
	}

	fmt.Fprintln(out, "ocrdesk Configuration Setup")
	fmt.Fprintln(out, "===========================")
	fmt.Fprintln(out)

	cfg.BaseURL = strings.TrimSuffix(ask("OCR service URL", cfg.BaseURL), "/")
	cfg.UI.Listen = ask("UI listen address", cfg.UI.Listen)
	cfg.Export.Destination = ask("Download destination", cfg.Export.Destination)
	cfg.Notifications.Enabled = askBool("Desktop notifications", cfg.Notifications.Enabled)

	fmt.Fprintln(out)
	if !askBool("Configure proxy?", false) {
		return
	}
	fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
	cfg.ProxyMode = ask("Proxy mode", "system")
	if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
		cfg.ProxyHost = ask("Proxy host", cfg.ProxyHost)
		if v, err := strconv.Atoi(ask("Proxy port", "8080")); err == nil && v > 0 {
			cfg.ProxyPort = v
		}
		if user := ask("Proxy user", ""); user != "" {
			cfg.ProxyUser = user
		}
	}
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the effective configuration.

Priority: --base-url > ` + config.EnvBaseURL + ` > config file > defaults`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.SetBaseURL(apiBaseURL)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Backend:")
			fmt.Fprintf(out, "  Base URL:   %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "  Retry Max:  %d\n", cfg.RetryMax)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Proxy:")
			fmt.Fprintf(out, "  Mode: %s\n", cfg.ProxyMode)
			if cfg.ProxyHost != "" {
				fmt.Fprintf(out, "  Host: %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
			}
			if cfg.ProxyUser != "" {
				fmt.Fprintf(out, "  User: %s\n", cfg.ProxyUser)
			}
			if cfg.ProxyPassword != "" {
				fmt.Fprintln(out, "  Password: <set>")
			}
			if cfg.NoProxy != "" {
				fmt.Fprintf(out, "  No Proxy: %s\n", cfg.NoProxy)
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "UI:")
			fmt.Fprintf(out, "  Listen:       %s\n", cfg.UI.Listen)
			fmt.Fprintf(out, "  File Logging: %t\n", cfg.UI.FileLogging)
			fmt.Fprintf(out, "  Destination:  %s\n", cfg.Export.Destination)
			if cfg.Export.FilesPerSecond > 0 {
				fmt.Fprintf(out, "  Files/sec:    %g\n", cfg.Export.FilesPerSecond)
			}
			fmt.Fprintf(out, "  Notifications: %t\n", cfg.Notifications.Enabled)
			fmt.Fprintln(out)

			fmt.Fprintf(out, "Configuration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "  (file does not exist - using defaults)")
			}
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, path)
			if info, err := os.Stat(path); err == nil {
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out, "Create a configuration file with: ocrdesk config init")
			}
			return nil
		},
	}
}
