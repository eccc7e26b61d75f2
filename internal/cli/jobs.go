package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ocrdesk/ocrdesk/internal/api"
	"github.com/ocrdesk/ocrdesk/internal/blob"
	"github.com/ocrdesk/ocrdesk/internal/config"
	"github.com/ocrdesk/ocrdesk/internal/constants"
	"github.com/ocrdesk/ocrdesk/internal/core"
	"github.com/ocrdesk/ocrdesk/internal/events"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/notify"
	"github.com/ocrdesk/ocrdesk/internal/progress"
	"github.com/ocrdesk/ocrdesk/internal/tree"
	"github.com/ocrdesk/ocrdesk/internal/uploader"
)

// uploadFile sends a local file to the backend with a progress bar.
func uploadFile(ctx context.Context, path string, send func(ctx context.Context, name string, r io.Reader) (string, error)) (string, error) {
	if !uploader.Accepts(path) {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), uploader.ErrUnsupportedType)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	reporter := progress.NewCLIProgress()
	reporter.Start(info.Size(), "Uploading "+filepath.Base(path))
	r := progress.NewProgressReader(f, info.Size(), reporter)

	storedPath, err := send(ctx, filepath.Base(path), r)
	if err != nil {
		reporter.Error(err)
		return "", err
	}
	reporter.Finish()
	return storedPath, nil
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a PDF or image and print its storage path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := newClient()
			if err != nil {
				return err
			}
			storedPath, err := uploadFile(cmd.Context(), args[0], func(ctx context.Context, name string, r io.Reader) (string, error) {
				resp, err := client.Upload(ctx, name, r)
				if err != nil {
					return "", err
				}
				return resp.FilePath, nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), storedPath)
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "start PATH",
		Short: "Start OCR on an uploaded file and print the task ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := newClient()
			if err != nil {
				return err
			}
			resp, err := client.Start(cmd.Context(), args[0], prompt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.TaskID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", constants.DefaultPrompt, "Prompt sent with the file")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Show the state and progress of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := newClient()
			if err != nil {
				return err
			}
			resp, err := client.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%.0f%%\n", resp.TaskID, resp.State, resp.Progress)
			return nil
		},
	}
}

func newResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result TASK_ID",
		Short: "Print the result directory of a finished task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := newClient()
			if err != nil {
				return err
			}
			resp, err := client.Result(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.ResultDir)
			for _, f := range resp.Files {
				fmt.Fprintf(out, "  %s\n", f)
			}
			return nil
		},
	}
}

type parseOptions struct {
	prompt       string
	out          string
	print        bool
	pollInterval time.Duration
}

func newParseCmd() *cobra.Command {
	opts := parseOptions{}

	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Upload a file, run OCR and wait for the result",
		Long: `Upload a PDF or image, start OCR with the prompt and poll until the job
finishes. The result directory is printed on completion.

  --print  writes the cleaned markdown of the result to stdout
  --out    saves every result file to a local directory, s3://bucket/prefix
           or azblob://account/container/prefix`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := newClient()
			if err != nil {
				return err
			}
			return runParse(cmd, cfg, client, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", constants.DefaultPrompt, "Prompt sent with the file")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Download the results to this destination")
	cmd.Flags().BoolVar(&opts.print, "print", false, "Print the cleaned markdown result")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", constants.PollInterval, "Interval between progress requests")
	_ = cmd.Flags().MarkHidden("poll-interval")
	return cmd
}

func runParse(cmd *cobra.Command, cfg *config.Config, client *api.Client, file string, opts parseOptions) error {
	ctx := cmd.Context()
	log := GetLogger()
	out := cmd.OutOrStdout()

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	defer bus.Close()

	if cfg.Notifications.Enabled {
		notifier := notify.NewNotifier(&notify.Config{Enabled: true, ShowJobFinished: true, ShowDownloadSummary: true}, log)
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go notifier.Watch(watchCtx, bus, nil)
	}

	store := blob.NewStore()
	if preview, err := uploader.New(store, nil).SelectPath(ctx, file); err != nil {
		return err
	} else if preview.Pages > 0 {
		log.Info().Str("file", preview.Name).Int("pages", preview.Pages).Msg("Selected PDF")
	}

	ctrl := core.NewController(ctx, client, bus, log, core.Options{PollInterval: opts.pollInterval, Prompt: opts.prompt})
	defer ctrl.Reset()

	if _, err := uploadFile(ctx, file, ctrl.SubmitUpload); err != nil {
		return err
	}

	progressCh := bus.Subscribe(events.EventProgress)
	if err := ctrl.StartParse(ctx); err != nil {
		return err
	}
	taskID := ctrl.State().Job.TaskID

	ui := progress.NewParseUI(taskID)
	stop := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-progressCh:
				if !ok {
					return
				}
				if pe, isProgress := ev.(*events.ProgressEvent); isProgress && pe.Stage == "poll" && pe.Key == taskID {
					ui.Update(pe.Progress)
				}
			}
		}
	}()

	job, err := ctrl.Wait(ctx)
	close(stop)
	<-watchDone
	bus.Unsubscribe(events.EventProgress, progressCh)
	if err != nil {
		ui.Done("", err)
		ui.Wait()
		return err
	}
	ui.Update(100)
	ui.Done(job.ResultDir, nil)
	ui.Wait()

	fmt.Fprintln(out, job.ResultDir)

	if !opts.print && opts.out == "" {
		return nil
	}

	t := tree.New(client, store, bus, log)
	if err := t.Load(ctx, job.ResultDir); err != nil {
		return err
	}

	if opts.print {
		if err := printMarkdown(ctx, t, out); err != nil {
			return err
		}
	}
	if opts.out != "" {
		if _, err := downloadTree(ctx, cfg, t, opts.out); err != nil {
			return err
		}
	}
	return nil
}

// printMarkdown writes the cleaned content of every markdown file in the
// tree to out.
func printMarkdown(ctx context.Context, t *tree.Tree, out io.Writer) error {
	printed := 0
	for _, node := range t.Flatten() {
		if node.Kind != models.KindMarkdown {
			continue
		}
		sel, err := t.Select(ctx, node)
		if err != nil {
			return err
		}
		if sel == nil {
			continue
		}
		fmt.Fprintln(out, sel.Content)
		printed++
	}
	if printed == 0 {
		return errors.New("the result contains no markdown file")
	}
	return nil
}
