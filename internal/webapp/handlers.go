package webapp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ocrdesk/ocrdesk/internal/blob"
	"github.com/ocrdesk/ocrdesk/internal/constants"
	"github.com/ocrdesk/ocrdesk/internal/core"
	"github.com/ocrdesk/ocrdesk/internal/metrics"
	"github.com/ocrdesk/ocrdesk/internal/tree"
	"github.com/ocrdesk/ocrdesk/internal/uploader"
	"github.com/ocrdesk/ocrdesk/internal/version"
	"github.com/ocrdesk/ocrdesk/internal/viewer"
)

const sseKeepAlive = 15 * time.Second

func (s *Server) handleIndex(c *fiber.Ctx) error {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(page)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "version": version.Version})
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	if s.eventBus.IsClosed() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "event stream closed")
	}
	sub := s.eventBus.SubscribeAll()

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	bridge := NewBridge(constants.EventBridgeProgressInterval)
	ctx := s.ctx
	metrics.SSEConnected()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer metrics.SSEDisconnected()
		defer s.eventBus.UnsubscribeAll(sub)

		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		keepAlive := time.NewTicker(sseKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				fmt.Fprint(w, ": ping\n\n")
			case ev, ok := <-sub:
				if !ok {
					return
				}
				frame, forward := bridge.Translate(ev)
				if !forward {
					continue
				}
				if _, err := frame.WriteTo(w); err != nil {
					return
				}
				metrics.RecordSSEEvent(frame.Event)
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

func (s *Server) handleBlob(c *fiber.Ctx) error {
	b, err := s.store.Get(blob.Ref(c.Params("id")))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if b.ContentType != "" {
		c.Set(fiber.HeaderContentType, b.ContentType)
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
	return c.Send(b.Data)
}

type stateResponse struct {
	core.State
	Preview   *uploader.Preview `json:"preview,omitempty"`
	ResultDir string            `json:"resultDir"`
}

func (s *Server) state() stateResponse {
	metrics.SetBlobsLive(s.store.Len())
	return stateResponse{
		State:     s.ctrl.State(),
		Preview:   s.uploader.Preview(),
		ResultDir: s.tree.ResultDir(),
	}
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.state())
}

func (s *Server) handleSelectFile(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing file field")
	}
	if !uploader.Accepts(fh.Filename) {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, uploader.ErrUnsupportedType.Error())
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if _, err := s.uploader.Select(s.ctx, fh.Filename, data); err != nil {
		if errors.Is(err, uploader.ErrUnsupportedType) {
			return fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
		}
		return err
	}
	s.syncTree(s.ctx)
	return c.JSON(s.state())
}

func (s *Server) handleRemoveFile(c *fiber.Ctx) error {
	s.uploader.Remove(s.ctx)
	s.syncTree(s.ctx)
	return c.JSON(s.state())
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleSetPrompt(c *fiber.Ctx) error {
	var req promptRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	s.ctrl.SetPrompt(req.Prompt)
	return c.JSON(s.state())
}

func (s *Server) handleParse(c *fiber.Ctx) error {
	err := s.ctrl.StartParse(s.ctx)
	s.syncTree(s.ctx)
	switch {
	case err == nil:
		return c.Status(fiber.StatusAccepted).JSON(s.state())
	case errors.Is(err, core.ErrNoFileUploaded):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrSuperseded):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
}

type treeResponse struct {
	ResultDir string     `json:"resultDir"`
	Rows      []tree.Row `json:"rows"`
}

func (s *Server) treeResponse() treeResponse {
	rows := s.tree.Rows()
	if rows == nil {
		rows = []tree.Row{}
	}
	return treeResponse{ResultDir: s.tree.ResultDir(), Rows: rows}
}

// handleTree retries a listing that failed earlier before answering.
func (s *Server) handleTree(c *fiber.Ctx) error {
	s.syncTree(s.ctx)
	return c.JSON(s.treeResponse())
}

type toggleRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleToggle(c *fiber.Ctx) error {
	var req toggleRequest
	if err := c.BodyParser(&req); err != nil || req.Key == "" {
		return fiber.NewError(fiber.StatusBadRequest, "key is required")
	}
	s.tree.Toggle(req.Key)
	return c.JSON(s.treeResponse())
}

type selectRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleSelect(c *fiber.Ctx) error {
	var req selectRequest
	if err := c.BodyParser(&req); err != nil || req.Path == "" {
		return fiber.NewError(fiber.StatusBadRequest, "path is required")
	}
	node := s.tree.Find(req.Path)
	if node == nil {
		return fiber.NewError(fiber.StatusNotFound, "no such file in the result tree")
	}

	sel, err := s.tree.Select(s.ctx, node)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	if sel != nil {
		s.ctrl.SelectFile(sel)
	}
	return s.renderView(c)
}

type downloadRequest struct {
	Destination string `json:"destination"`
}

func (s *Server) handleDownload(c *fiber.Ctx) error {
	var req downloadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
	}
	dest := req.Destination
	if dest == "" {
		dest = s.destination
	}
	if s.tree.ResultDir() == "" {
		return fiber.NewError(fiber.StatusConflict, "no result to download")
	}
	if s.newSaver == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "downloads are not configured")
	}

	if !s.downloading.TryLock() {
		return fiber.NewError(fiber.StatusConflict, "a download is already running")
	}
	defer s.downloading.Unlock()

	saver, err := s.newSaver(s.ctx, dest)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	report, err := s.tree.DownloadAll(s.ctx, saver, nil)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func (s *Server) handleView(c *fiber.Ctx) error {
	return s.renderView(c)
}

func (s *Server) renderView(c *fiber.Ctx) error {
	view, err := s.viewer.Render(s.tree.Selected())
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) handleExpand(c *fiber.Ctx) error {
	expanded := s.viewer.ToggleExpanded()
	if s.ctrl.State().PreviewExpanded != expanded {
		s.ctrl.TogglePreviewExpanded()
	}
	return c.JSON(fiber.Map{"expanded": expanded})
}

func (s *Server) handleOverlay(c *fiber.Ctx) error {
	view, err := s.viewer.Render(s.tree.Selected())
	if err != nil {
		return err
	}
	if view.Kind != viewer.KindImage {
		return fiber.NewError(fiber.StatusConflict, "the selected file is not an image")
	}
	return c.JSON(fiber.Map{"overlay": s.viewer.ToggleImageOverlay()})
}
