package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

func newProgress(out *os.File) (*mpb.Progress, bool) {
	isTerminal := term.IsTerminal(int(out.Fd()))
	if !isTerminal {
		return mpb.New(mpb.WithOutput(io.Discard)), false
	}
	enableANSI(out)
	return mpb.New(
		mpb.WithOutput(out),
		mpb.WithRefreshRate(300*time.Millisecond),
		mpb.WithWidth(80),
	), true
}

func barStyle() mpb.BarFillerBuilder {
	return mpb.BarStyle().
		Lbound("[").
		Filler("█").
		Tip("█").
		Padding("░").
		Rbound("]")
}

// ParseUI shows the progress of one OCR job. In a terminal it draws a
// single bar; otherwise it prints a line whenever the percentage changes.
type ParseUI struct {
	progress   *mpb.Progress
	bar        *mpb.Bar
	out        io.Writer
	isTerminal bool
	taskID     string
	last       int64
	startTime  time.Time
}

// NewParseUI creates the job progress display on stderr.
func NewParseUI(taskID string) *ParseUI {
	p, isTerminal := newProgress(os.Stderr)
	return newParseUI(p, os.Stderr, isTerminal, taskID)
}

func newParseUI(p *mpb.Progress, out io.Writer, isTerminal bool, taskID string) *ParseUI {
	u := &ParseUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		taskID:     taskID,
		last:       -1,
		startTime:  time.Now(),
	}
	if isTerminal {
		u.bar = p.New(100, barStyle(),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("Parsing %s", shortID(taskID)), decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	}
	return u
}

// Update moves the bar to pct (0-100).
func (u *ParseUI) Update(pct float64) {
	cur := int64(pct)
	if cur < 0 {
		cur = 0
	}
	if cur > 100 {
		cur = 100
	}
	if cur == u.last {
		return
	}
	u.last = cur
	if u.bar != nil {
		u.bar.SetCurrent(cur)
		return
	}
	fmt.Fprintf(u.out, "Parsing %s: %d%%\n", u.taskID, cur)
}

// Done completes the bar and prints the outcome.
func (u *ParseUI) Done(resultDir string, err error) {
	elapsed := time.Since(u.startTime).Round(time.Second)
	var msg string
	if err == nil {
		if u.bar != nil {
			u.bar.SetTotal(100, true)
		}
		msg = fmt.Sprintf("✓ %s finished in %s → %s\n", u.taskID, elapsed, resultDir)
	} else {
		if u.bar != nil {
			u.bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s: %v\n", u.taskID, err)
	}
	u.write(msg)
}

func (u *ParseUI) write(msg string) {
	if u.isTerminal {
		_, _ = u.progress.Write([]byte(msg))
		return
	}
	fmt.Fprint(u.out, msg)
}

// Wait blocks until the bar has been rendered for the last time.
func (u *ParseUI) Wait() {
	u.progress.Wait()
}

// DownloadUI counts files saved by a download-all run.
type DownloadUI struct {
	progress   *mpb.Progress
	bar        *mpb.Bar
	out        io.Writer
	isTerminal bool
	totalFiles int
	failed     int32
}

// NewDownloadUI creates the download display for totalFiles files.
func NewDownloadUI(totalFiles int) *DownloadUI {
	p, isTerminal := newProgress(os.Stderr)
	return newDownloadUI(p, os.Stderr, isTerminal, totalFiles)
}

func newDownloadUI(p *mpb.Progress, out io.Writer, isTerminal bool, totalFiles int) *DownloadUI {
	u := &DownloadUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
	if isTerminal {
		u.bar = p.New(int64(totalFiles), barStyle(),
			mpb.PrependDecorators(
				decor.Name("Downloading", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d/%d", decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.Any(func(decor.Statistics) string {
					if n := atomic.LoadInt32(&u.failed); n > 0 {
						return fmt.Sprintf("%d failed", n)
					}
					return ""
				}, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	}
	return u
}

// FileDone records one file. index is 1-based.
func (u *DownloadUI) FileDone(index int, source, location string, err error) {
	var msg string
	if err == nil {
		msg = fmt.Sprintf("✓ [%d/%d] %s → %s\n", index, u.totalFiles, truncatePath(source, 2), location)
	} else {
		atomic.AddInt32(&u.failed, 1)
		msg = fmt.Sprintf("✗ [%d/%d] %s: %v\n", index, u.totalFiles, truncatePath(source, 2), err)
	}
	if u.bar != nil {
		u.bar.Increment()
		_, _ = u.progress.Write([]byte(msg))
		return
	}
	fmt.Fprint(u.out, msg)
}

// Failed returns the number of files that could not be saved.
func (u *DownloadUI) Failed() int {
	return int(atomic.LoadInt32(&u.failed))
}

// Wait blocks until all bars complete. Bars of an interrupted run are
// aborted so Wait does not hang.
func (u *DownloadUI) Wait() {
	if u.bar != nil && !u.bar.Completed() {
		u.bar.Abort(true)
	}
	u.progress.Wait()
}

// IsTerminal reports whether bars are drawn.
func (u *DownloadUI) IsTerminal() bool {
	return u.isTerminal
}

// truncatePath keeps the last n components of p.
func truncatePath(p string, n int) string {
	p = filepath.ToSlash(p)
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) <= n {
		return p
	}
	return ".../" + strings.Join(parts[len(parts)-n:], "/")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
