// Package server exposes the sync core over HTTP: a Fiber REST API for
// snapshots, presence, capabilities, assist and plans, plus a plain net/http
// listener carrying the websocket stream and Prometheus metrics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/assist"
	"github.com/driftboard/driftboard/internal/metrics"
	"github.com/driftboard/driftboard/internal/planner"
	"github.com/driftboard/driftboard/internal/presence"
	"github.com/driftboard/driftboard/internal/requestid"
	"github.com/driftboard/driftboard/internal/store"
	"github.com/driftboard/driftboard/internal/stream"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr   string
	AuthConfig   AuthConfig
	RateLimit    RateLimitConfig
	CORSOrigins  string
	Capabilities []string
}

// Server is the API Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	logger   zerolog.Logger
	config   ServerConfig
}

// NewServer creates and configures the API server.
func NewServer(
	cfg ServerConfig,
	st store.Store,
	hub *stream.Hub,
	tracker *presence.Tracker,
	plans *planner.Registry,
	engine *assist.Engine,
	collector *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	handlers := NewHandlers(st, hub, tracker, plans, engine, collector, cfg.Capabilities, logger)

	s := &Server{
		app:      app,
		handlers: handlers,
		logger:   logger.With().Str("component", "api_server").Logger(),
		config:   cfg,
	}

	s.setupMiddleware(cfg, logger)
	s.setupRoutes(handlers)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, logger zerolog.Logger) {
	// Recovery middleware
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware
	s.app.Use(func(c *fiber.Ctx) error {
		_, reqID := requestid.New(c.Context())
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	// CORS middleware
	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Actor-ID",
			AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		}))
	}

	// Rate limiter
	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	// Auth middleware
	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	// Audit middleware (log every request)
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		// Skip noisy probe and heartbeat logging
		if path == "/healthz" || path == "/readyz" || path == "/api/v1/presence" {
			return c.Next()
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", fmt.Sprintf("%v", c.Locals("request_id"))).
			Msg("api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers) {
	// Probe endpoints (no auth required, handled in auth middleware)
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	v1 := s.app.Group("/api/v1")

	// Workspaces and boards
	v1.Get("/workspaces", h.ListWorkspaces)
	v1.Get("/workspaces/:id", h.GetWorkspace)
	v1.Post("/workspaces/:id/boards", h.CreateBoard)
	v1.Post("/workspaces/:id/assist", h.Assist)
	v1.Get("/boards/:id", h.GetBoard)
	v1.Put("/boards/:id", h.ReplaceBoard)

	// Automation runs
	v1.Post("/boards/:id/cards/:cardID/runs", h.StartRun)
	v1.Post("/boards/:id/cards/:cardID/runs/:runID/telemetry", h.AppendTelemetry)
	v1.Post("/boards/:id/cards/:cardID/runs/:runID/finish", h.FinishRun)

	// Presence
	v1.Post("/presence", h.Announce)
	v1.Delete("/presence", h.Leave)

	// Capabilities
	v1.Get("/capabilities", h.Capabilities)

	// Planner plans
	v1.Get("/plans/:goalID", h.GetPlan)
	v1.Put("/plans/:goalID", h.PutPlan)
	v1.Post("/plans/:goalID/resume", h.ResumePlan)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("api server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("api server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// NewAuxMux builds the plain net/http mux for the stream listener: the
// websocket endpoint and Prometheus metrics. Fiber runs on fasthttp, so the
// websocket upgrade lives on its own listener.
func NewAuxMux(hub *stream.Hub, collector *metrics.Metrics, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	onSubscribe := func(delta int) {
		if collector != nil {
			collector.StreamClients.Add(float64(delta))
		}
	}
	mux.Handle("/ws/workspaces/", stream.WSHandler(hub, onSubscribe, logger))
	if collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}
	return mux
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		// Don't leak internal details
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
