// Package webapp serves the browser front end: a single page, a JSON API
// driving one controller, and an SSE stream of bus events.
package webapp

import (
	"context"
	"embed"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ocrdesk/ocrdesk/internal/blob"
	"github.com/ocrdesk/ocrdesk/internal/cloud"
	"github.com/ocrdesk/ocrdesk/internal/constants"
	"github.com/ocrdesk/ocrdesk/internal/core"
	"github.com/ocrdesk/ocrdesk/internal/events"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/metrics"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/tree"
	"github.com/ocrdesk/ocrdesk/internal/uploader"
	"github.com/ocrdesk/ocrdesk/internal/viewer"
)

//go:embed static/index.html
var static embed.FS

// SaverFunc opens the export destination for a download-all run.
type SaverFunc func(ctx context.Context, destination string) (cloud.Saver, error)

// Dependencies are the components one UI session drives.
type Dependencies struct {
	Controller *core.Controller
	Tree       *tree.Tree
	Viewer     *viewer.Viewer
	Store      *blob.Store
	EventBus   *events.EventBus
	Logger     *logging.Logger

	// Destination is the default download-all target.
	Destination string
	NewSaver    SaverFunc
}

// Server is the browser UI server.
type Server struct {
	ctx      context.Context
	app      *fiber.App
	ctrl     *core.Controller
	uploader *uploader.Uploader
	tree     *tree.Tree
	viewer   *viewer.Viewer
	store    *blob.Store
	eventBus *events.EventBus
	logger   *logging.Logger

	destination string
	newSaver    SaverFunc

	syncMu      sync.Mutex
	downloading sync.Mutex
	wg          sync.WaitGroup
}

// New builds the server. ctx bounds the SSE streams and the background
// tree loader.
func New(ctx context.Context, d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = logging.NewTestLogger()
	}
	if d.Viewer == nil {
		d.Viewer = viewer.New()
	}
	s := &Server{
		ctx:         ctx,
		ctrl:        d.Controller,
		tree:        d.Tree,
		viewer:      d.Viewer,
		store:       d.Store,
		eventBus:    d.EventBus,
		logger:      d.Logger,
		destination: d.Destination,
		newSaver:    d.NewSaver,
	}
	s.uploader = uploader.New(d.Store, s.ctrl.FileChanged)

	s.app = fiber.New(fiber.Config{
		AppName:               "ocrdesk",
		BodyLimit:             constants.MaxUploadBytes,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger)
	s.registerRoutes()

	s.wg.Add(1)
	go s.watchJobs()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/", s.handleIndex)
	s.app.Get("/events", s.handleEvents)
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	s.app.Get("/blob/:id", s.handleBlob)

	api := s.app.Group("/api/ui")
	api.Get("/state", s.handleState)
	api.Post("/file", s.handleSelectFile)
	api.Delete("/file", s.handleRemoveFile)
	api.Put("/prompt", s.handleSetPrompt)
	api.Post("/parse", s.handleParse)

	api.Get("/tree", s.handleTree)
	api.Post("/tree/toggle", s.handleToggle)
	api.Post("/tree/select", s.handleSelect)
	api.Post("/tree/download", s.handleDownload)

	api.Get("/view", s.handleView)
	api.Post("/view/expand", s.handleExpand)
	api.Post("/view/overlay", s.handleOverlay)
}

// App exposes the fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("UI server listening")
	return s.app.Listen(addr)
}

// Shutdown stops the server and waits for the background loader.
func (s *Server) Shutdown(timeout time.Duration) error {
	err := s.app.ShutdownWithTimeout(timeout)
	s.wg.Wait()
	return err
}

// watchJobs loads the result tree whenever a job finishes.
func (s *Server) watchJobs() {
	defer s.wg.Done()

	ch := s.eventBus.Subscribe(events.EventStateChange)
	defer s.eventBus.Unsubscribe(events.EventStateChange, ch)

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if sc, isSC := ev.(*events.StateChangeEvent); isSC && sc.NewState == string(models.JobFinished) {
				s.syncTree(s.ctx)
			}
		}
	}
}

// syncTree makes the tree follow the controller's result directory. A
// change of directory drops the current selection.
func (s *Server) syncTree(ctx context.Context) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	dir := s.ctrl.State().Job.ResultDir
	if dir == s.tree.ResultDir() {
		return
	}
	s.tree.ClearSelection()
	s.ctrl.SelectFile(nil)
	if err := s.tree.Load(ctx, dir); err != nil {
		s.logger.Debug().Err(err).Str("result_dir", dir).Msg("tree not loaded")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}
	return c.Status(code).JSON(errorResponse{Error: err.Error()})
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if c.Path() != "/events" {
		s.logger.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
	return err
}
