package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ocrdesk/ocrdesk/internal/blob"
	"github.com/ocrdesk/ocrdesk/internal/cloud/providers"
	"github.com/ocrdesk/ocrdesk/internal/config"
	"github.com/ocrdesk/ocrdesk/internal/constants"
	"github.com/ocrdesk/ocrdesk/internal/events"
	inthttp "github.com/ocrdesk/ocrdesk/internal/http"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/progress"
	"github.com/ocrdesk/ocrdesk/internal/ratelimit"
	"github.com/ocrdesk/ocrdesk/internal/tree"
)

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree RESULT_DIR",
		Short: "List the files of a result directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := newClient()
			if err != nil {
				return err
			}
			t := tree.New(client, blob.NewStore(), nil, GetLogger())
			if err := t.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, t.ResultDir())
			printNodes(out, t.Nodes(), "")
			return nil
		},
	}
}

func printNodes(out io.Writer, nodes []*models.FileNode, indent string) {
	for i, n := range nodes {
		branch, next := "├── ", "│   "
		if i == len(nodes)-1 {
			branch, next = "└── ", "    "
		}
		name := n.Name
		if n.IsFolder() {
			name += "/"
		}
		fmt.Fprintf(out, "%s%s%s\n", indent, branch, name)
		if n.IsFolder() {
			printNodes(out, n.Children, indent+next)
		}
	}
}

func newCatCmd() *cobra.Command {
	var (
		resultDir string
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "cat PATH",
		Short: "Print a result file",
		Long: `Print a result file to stdout. Markdown is cleaned the same way the
browser shows it: grounding tags are removed, blank lines collapsed and
image links pointed at the OCR service. Use --raw for the stored text.
Images and PDFs are written as bytes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			p := args[0]
			if resultDir == "" {
				resultDir = path.Dir(p)
			}
			name := path.Base(p)
			kind := models.ClassifyFile(name)

			switch {
			case kind == models.KindImage || kind == models.KindPDF:
				data, _, err := client.FileBytes(ctx, p)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			case raw:
				text, err := client.FileText(ctx, p)
				if err != nil {
					return err
				}
				_, err = io.WriteString(out, text)
				return err
			}

			store := blob.NewStore()
			t := tree.New(client, store, nil, GetLogger())
			sel, err := t.Select(ctx, &models.FileNode{
				Name:      name,
				Type:      models.NodeFile,
				Kind:      kind,
				Path:      p,
				ResultDir: resultDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, strings.TrimRight(sel.Content, "\n"))
			return nil
		},
	}
	cmd.Flags().StringVar(&resultDir, "result-dir", "", "Result directory the file belongs to (default: its parent)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without cleaning")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "download RESULT_DIR",
		Short: "Save every file of a result directory",
		Long: `Save every file of a result directory to a local directory, an S3
bucket (s3://bucket/prefix) or an Azure container
(azblob://account/container/prefix). Files are saved flat by name; files
sharing a name get their folder appended.

Credentials for remote destinations come from the usual AWS and Azure
environment variables. ` + providers.EnvS3Endpoint + ` and ` + providers.EnvAzureEndpoint + ` point at
compatible endpoints.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := newClient()
			if err != nil {
				return err
			}
			if dest == "" {
				dest = cfg.Export.Destination
			}
			bus := events.NewEventBus(constants.EventBusDefaultBuffer)
			defer bus.Close()

			t := tree.New(client, blob.NewStore(), bus, GetLogger())
			if err := t.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			report, err := downloadTree(cmd.Context(), cfg, t, dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d of %d files to %s\n", report.Saved, report.Total, dest)
			if report.Failed > 0 {
				return fmt.Errorf("%d files could not be saved", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "out", "o", "", "Destination (default: export.destination from the config)")
	return cmd
}

// downloadTree saves every file of t to dest with progress output.
func downloadTree(ctx context.Context, cfg *config.Config, t *tree.Tree, dest string) (*tree.DownloadReport, error) {
	httpClient, err := inthttp.CreateClient(cfg)
	if err != nil {
		return nil, err
	}
	saver, err := providers.NewSaver(ctx, dest, httpClient)
	if err != nil {
		return nil, err
	}

	t.SetFetchLimiter(newFetchLimiter(cfg))
	ui := progress.NewDownloadUI(len(t.Downloadable()))
	report, err := t.DownloadAll(ctx, saver, func(index, total int, f tree.SavedFile) {
		var ferr error
		if f.Error != "" {
			ferr = fmt.Errorf("%s", f.Error)
		}
		ui.FileDone(index, f.Source, f.Location, ferr)
	})
	ui.Wait()
	return report, err
}

// newFetchLimiter paces download-all at export.files_per_second with a
// one-second burst.
func newFetchLimiter(cfg *config.Config) *ratelimit.RateLimiter {
	rate := cfg.Export.FilesPerSecond
	return ratelimit.NewRateLimiter(rate, math.Max(1, rate))
}
