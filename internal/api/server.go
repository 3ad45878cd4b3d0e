// Package api exposes the scheduling core over HTTP and a live schedule
// WebSocket stream.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/medtab/medtab/internal/config"
	"github.com/medtab/medtab/internal/metrics"
	"github.com/medtab/medtab/internal/notify"
	"github.com/medtab/medtab/internal/schedule"
	"github.com/medtab/medtab/internal/store"
)

// Server handles the HTTP API and the schedule WebSocket
type Server struct {
	app       *fiber.App
	config    *config.Config
	store     *store.Store
	builder   *schedule.Builder
	scheduler *notify.Scheduler
	logger    *zap.Logger
}

// New creates a new API server
func New(cfg *config.Config, st *store.Store, builder *schedule.Builder, scheduler *notify.Scheduler, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:       app,
		config:    cfg,
		store:     st,
		builder:   builder,
		scheduler: scheduler,
		logger:    logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	s.app.Use(s.metricsMiddleware())

	// Health check
	s.app.Get("/api/health", s.handleHealth)

	// Prometheus exposition
	promHandler := fasthttpadaptor.NewFastHTTPHandler(metrics.Default().Handler())
	s.app.Get("/metrics", func(c *fiber.Ctx) error {
		promHandler(c.Context())
		return nil
	})

	api := s.app.Group("/api")

	// Medications
	api.Get("/medications", s.handleListMedications)
	api.Post("/medications", s.handleCreateMedication)
	api.Get("/medications/:id", s.handleGetMedication)
	api.Put("/medications/:id", s.handleRenameMedication)
	api.Delete("/medications/:id", s.handleDeleteMedication)
	api.Put("/medications/:id/config", s.handleUpdateConfig)
	api.Put("/medications/:id/times", s.handleUpdateTimes)
	api.Get("/medications/:id/history", s.handleConfigHistory)

	// Daily schedule
	api.Get("/schedule/:date", s.handleGetSchedule)

	// Intake toggles
	api.Post("/intakes", s.handleSetIntake)

	// Daily notes
	api.Get("/notes", s.handleListNotes)
	api.Get("/notes/:date", s.handleGetNote)
	api.Put("/notes/:date", s.handleUpsertNote)
	api.Delete("/notes/:date", s.handleDeleteNote)

	// Settings
	api.Get("/settings", s.handleGetSettings)
	api.Put("/settings", s.handleUpdateSettings)

	// Retention
	api.Post("/cleanup", s.handleCleanup)

	// WebSocket live schedule
	s.app.Get("/ws/schedule", websocket.New(s.handleScheduleStream))
}

// metricsMiddleware records per-route request counts and latency.
func (s *Server) metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()
		route := c.Route().Path
		metrics.Default().RecordHTTPRequest(
			c.Method(),
			route,
			fmt.Sprintf("%d", c.Response().StatusCode()),
			time.Since(started),
		)
		return err
	}
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.logger.Info("API server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// handleScheduleStream pushes live schedule snapshots for one date. The
// client may send {"date":"YYYY-MM-DD"} messages to move the view.
func (s *Server) handleScheduleStream(c *websocket.Conn) {
	defer c.Close()

	date := c.Query("date")
	if date == "" {
		date = s.store.Today()
	}

	w := schedule.NewWatcher(s.builder, s.store, s.logger, date)
	defer w.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var req struct {
				Date string `json:"date"`
			}
			if err := c.ReadJSON(&req); err != nil {
				return
			}
			if req.Date != "" {
				w.SetDate(req.Date)
			}
		}
	}()

	for {
		select {
		case snap := <-w.Out():
			if err := c.WriteJSON(snap); err != nil {
				s.logger.Warn("WebSocket write error", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
