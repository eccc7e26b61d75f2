package cli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ocrdesk/ocrdesk/internal/api"
	"github.com/ocrdesk/ocrdesk/internal/blob"
	"github.com/ocrdesk/ocrdesk/internal/cloud"
	"github.com/ocrdesk/ocrdesk/internal/cloud/providers"
	"github.com/ocrdesk/ocrdesk/internal/constants"
	"github.com/ocrdesk/ocrdesk/internal/core"
	"github.com/ocrdesk/ocrdesk/internal/events"
	inthttp "github.com/ocrdesk/ocrdesk/internal/http"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/notify"
	"github.com/ocrdesk/ocrdesk/internal/tree"
	"github.com/ocrdesk/ocrdesk/internal/viewer"
	"github.com/ocrdesk/ocrdesk/internal/webapp"
)

func newUICmd() *cobra.Command {
	var (
		listen string
		open   bool
	)

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Serve the browser front end",
		Long: `Serve the browser front end on ui.listen (default ` + constants.DefaultListenAddr + `).

The page uploads a file, starts parsing with the prompt, shows progress,
and browses, previews and downloads the result. Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.UI.Listen
			}

			bus := events.NewEventBus(constants.EventBusMaxBuffer)
			defer bus.Close()

			log := logging.NewLogger("ui", bus)
			logging.ConfigureLevel(verbose)
			if cfg.UI.FileLogging {
				if path, err := log.EnableFileLogging(); err != nil {
					log.Warn().Err(err).Msg("File logging disabled")
				} else {
					log.Debug().Str("path", path).Msg("Logging to file")
				}
			}
			defer log.Close()

			client, err := api.NewClient(cfg, log)
			if err != nil {
				return err
			}
			httpClient, err := inthttp.CreateClient(cfg)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())

			store := blob.NewStore()
			resultTree := tree.New(client, store, bus, log)
			resultTree.SetFetchLimiter(newFetchLimiter(cfg))
			srv := webapp.New(ctx, webapp.Dependencies{
				Controller:  core.NewController(ctx, client, bus, log, core.Options{}),
				Tree:        resultTree,
				Viewer:      viewer.New(),
				Store:       store,
				EventBus:    bus,
				Logger:      log,
				Destination: cfg.Export.Destination,
				NewSaver: func(ctx context.Context, destination string) (cloud.Saver, error) {
					return providers.NewSaver(ctx, destination, httpClient)
				},
			})

			notifier := notify.NewNotifier(&notify.Config{
				Enabled:             cfg.Notifications.Enabled,
				ShowJobFinished:     true,
				ShowDownloadSummary: true,
			}, log)
			g.Go(func() error {
				notifier.Watch(ctx, bus, nil)
				return nil
			})

			g.Go(func() error {
				return srv.Listen(listen)
			})
			g.Go(func() error {
				<-ctx.Done()
				log.Info().Msg("Shutting down UI server")
				return srv.Shutdown(constants.UIShutdownTimeout)
			})

			url := "http://" + browserHost(listen)
			fmt.Fprintf(cmd.OutOrStdout(), "ocrdesk UI at %s (backend %s)\n", url, client.BaseURL())
			if open {
				if err := openBrowser(url); err != nil {
					log.Warn().Err(err).Msg("Could not open browser")
				}
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default: ui.listen from the config)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the UI in the default browser")
	return cmd
}

// browserHost turns a listen address into something a browser can reach.
func browserHost(listen string) string {
	switch {
	case strings.HasPrefix(listen, ":"):
		return "127.0.0.1" + listen
	case strings.HasPrefix(listen, "0.0.0.0:"):
		return "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	default:
		return listen
	}
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
