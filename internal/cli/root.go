// Package cli provides the command-line interface for ocrdesk.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ocrdesk/ocrdesk/internal/api"
	"github.com/ocrdesk/ocrdesk/internal/config"
	inthttp "github.com/ocrdesk/ocrdesk/internal/http"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/version"
)

var (
	// Global flags
	cfgFile    string
	apiBaseURL string
	verbose    bool

	// Global logger
	logger *logging.Logger
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cfgFile, apiBaseURL, verbose = "", "", false

	rootCmd := &cobra.Command{
		Use:   "ocrdesk",
		Short: "ocrdesk - browser and command-line front end for an OCR service",
		Long: `ocrdesk ` + version.Version + ` - Built: ` + version.BuildTime + `
Upload a PDF or image to the OCR service, run it with a prompt, and browse,
preview or download the results.

Browser mode:
  ocrdesk ui              serve the web front end on 127.0.0.1:8080

Scripted use:
  ocrdesk parse scan.pdf --print
  ocrdesk download /data/results/<task> --out ./ocr-results`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			logging.ConfigureLevel(verbose)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "base-url", "", "OCR service base URL (overrides config and "+config.EnvBaseURL+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(newCompletionCmd(rootCmd))
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	AddCommands(rootCmd)
	return rootCmd
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newResultCmd())
	rootCmd.AddCommand(newTreeCmd())
	rootCmd.AddCommand(newCatCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newUICmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute runs the CLI.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Loop so repeated Ctrl+C does not kill the process mid-cleanup
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling operations...\n", sig)
				cancel()
			}
		}
	}()

	err := NewRootCmd().ExecuteContext(ctx)

	signal.Stop(sigChan)
	close(sigChan)
	return err
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// loadConfig reads the config file and applies the command-line overrides.
// Precedence: --base-url > OCRDESK_BASE_URL > file > default.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.SetBaseURL(apiBaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if inthttp.NeedsProxyPassword(cfg) {
		password, err := readPassword(os.Stdin, os.Stderr, fmt.Sprintf("Proxy password for %s@%s: ", cfg.ProxyUser, cfg.ProxyHost))
		if err != nil {
			return nil, err
		}
		cfg.ProxyPassword = password
	}
	return cfg, nil
}

func readPassword(in *os.File, prompt io.Writer, label string) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("proxy password required but stdin is not a terminal")
	}
	fmt.Fprint(prompt, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// newClient loads the configuration and creates the backend client.
func newClient() (*config.Config, *api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for ocrdesk.

QUICK TEST (current session only):
  source <(ocrdesk completion bash)
  source <(ocrdesk completion zsh)
  ocrdesk completion fish | source`,
	}

	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate fish completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "powershell",
		Short: "Generate PowerShell completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenPowerShellCompletion(cmd.OutOrStdout())
		},
	})
	return completionCmd
}
