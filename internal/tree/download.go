package tree

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ocrdesk/ocrdesk/internal/cloud"
	"github.com/ocrdesk/ocrdesk/internal/events"
	"github.com/ocrdesk/ocrdesk/internal/metrics"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/util/paths"
)

// DownloadReport summarises a DownloadAll run.
type DownloadReport struct {
	Total    int           `json:"total"`
	Saved    int           `json:"saved"`
	Failed   int           `json:"failed"`
	Renamed  int           `json:"renamed"`
	Files    []SavedFile   `json:"files"`
	Duration time.Duration `json:"duration"`
}

// SavedFile is the outcome for one file.
type SavedFile struct {
	Source   string `json:"source"`
	Key      string `json:"key"`
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
}

// FileProgressFunc is called after each file with its 1-based index.
type FileProgressFunc func(index, total int, file SavedFile)

// DownloadAll saves every file of the tree through saver, one at a time.
// A failed file is logged and skipped. Files sharing a name are renamed
// with their folder as a suffix. A single summary notification is
// published at the end.
func (t *Tree) DownloadAll(ctx context.Context, saver cloud.Saver, onFile FileProgressFunc) (*DownloadReport, error) {
	start := time.Now()
	files := t.Downloadable()
	plan := planDownloads(files)
	plan, renamed := paths.ResolveCollisions(plan)

	t.mu.Lock()
	limiter := t.fetchLimit
	t.mu.Unlock()

	report := &DownloadReport{Total: len(plan), Renamed: renamed}
	if renamed > 0 {
		t.logger.Info().Int("renamed", renamed).Msg("Renamed files with duplicate names")
	}

	for i, f := range plan {
		if err := limiter.Wait(ctx); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		result := SavedFile{Source: f.Source, Key: f.SaveKey}
		size, loc, err := t.downloadOne(ctx, saver, f, files[i].Kind)
		metrics.RecordDownload(size, err == nil)
		if err != nil {
			report.Failed++
			result.Error = err.Error()
			t.logger.Error().Err(err).Str("path", f.Source).Msg("Failed to download file")
		} else {
			report.Saved++
			result.Location = loc
			t.logger.Debug().Str("path", f.Source).Str("location", loc).Msg("File saved")
		}
		report.Files = append(report.Files, result)

		t.eventBus.PublishProgress(f.Source, "download", float64(i+1)/float64(len(plan)), f.SaveKey)
		if onFile != nil {
			onFile(i+1, len(plan), result)
		}
	}

	report.Duration = time.Since(start)
	t.eventBus.Publish(&events.CompleteEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventComplete, Time: time.Now()},
		Total:     report.Total,
		Saved:     report.Saved,
		Failed:    report.Failed,
		Duration:  report.Duration,
	})

	level := events.SuccessLevel
	if report.Failed > 0 {
		level = events.WarnLevel
	}
	t.eventBus.Notify(level, fmt.Sprintf("Downloaded %d files", report.Saved),
		fmt.Sprintf("%d of %d saved to %s", report.Saved, report.Total, saver.Location()))
	return report, nil
}

// Downloadable returns the file leaves that carry a backend path. Entries
// listed without one cannot be fetched and are left out of DownloadAll.
func (t *Tree) Downloadable() []*models.FileNode {
	files := t.Flatten()
	out := files[:0]
	for _, n := range files {
		if n.Path != "" {
			out = append(out, n)
		}
	}
	return out
}

// downloadOne fetches one file and hands it to saver. Images and PDFs are
// fetched as bytes, everything else as text content.
func (t *Tree) downloadOne(ctx context.Context, saver cloud.Saver, f paths.FileForDownload, kind models.FileKind) (int64, string, error) {
	var (
		data        []byte
		contentType = models.ContentType(f.Name)
	)

	switch kind {
	case models.KindImage, models.KindPDF:
		b, ct, err := t.client.FileBytes(ctx, f.Source)
		if err != nil {
			return 0, "", err
		}
		data = b
		if ct != "" {
			contentType = ct
		}
	default:
		text, err := t.client.FileText(ctx, f.Source)
		if err != nil {
			return 0, "", err
		}
		data = []byte(text)
	}

	loc, err := saver.Save(ctx, f.SaveKey, data, contentType)
	if err != nil {
		return int64(len(data)), "", err
	}
	return int64(len(data)), loc, nil
}

// planDownloads names each file by its own name and tags it with the folder
// it came from for collision resolution.
func planDownloads(files []*models.FileNode) []paths.FileForDownload {
	plan := make([]paths.FileForDownload, 0, len(files))
	for _, n := range files {
		rel := strings.TrimPrefix(strings.TrimPrefix(n.Path, n.ResultDir), "/")
		plan = append(plan, paths.FileForDownload{
			Source:  n.Path,
			Name:    n.Name,
			SaveKey: n.Name,
			Tag:     paths.TagFromRelative(rel),
		})
	}
	return plan
}
