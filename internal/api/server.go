package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/parcel/internal/builds"
	"github.com/mattjoyce/parcel/internal/bundle"
	"github.com/mattjoyce/parcel/internal/delivery"
	"github.com/mattjoyce/parcel/internal/events"
	"github.com/mattjoyce/parcel/internal/ledger"
	"github.com/mattjoyce/parcel/internal/platform"
	"github.com/mattjoyce/parcel/internal/weather"
)

//go:generate mockgen -destination=mocks/mock_ledger.go -package=mocks github.com/mattjoyce/parcel/internal/api DownloadLedger

// DownloadLedger records and lists download attempts.
type DownloadLedger interface {
	Record(ctx context.Context, e ledger.Entry) (string, error)
	Recent(ctx context.Context, limit int) ([]ledger.Entry, error)
}

// BuildLocator selects the build to serve.
type BuildLocator interface {
	Latest(ctx context.Context, profile platform.Profile) (builds.Artifact, error)
}

// PackageComposer turns a decision into a deliverable package.
type PackageComposer interface {
	Compose(ctx context.Context, req bundle.Request, art builds.Artifact) (delivery.Package, error)
	Raw(os platform.OS, art builds.Artifact) delivery.Package
}

// WeatherService answers /api/weather.
type WeatherService interface {
	Lookup(ctx context.Context, q string) (weather.Report, error)
}

// Config holds API server configuration
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
	// OperatorToken, when set, is required as a bearer token on the ledger
	// and event stream endpoints.
	OperatorToken string
	Companions    bundle.Companions
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	locator   BuildLocator
	composer  PackageComposer
	ledger    DownloadLedger
	weather   WeatherService
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// Option configures optional collaborators.
type Option func(*Server)

// WithLedger records every download in l.
func WithLedger(l DownloadLedger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithWeather mounts /api/weather backed by w.
func WithWeather(w WeatherService) Option {
	return func(s *Server) { s.weather = w }
}

// New creates a new API server instance
func New(config Config, locator BuildLocator, composer PackageComposer, hub *events.Hub, logger *slog.Logger, opts ...Option) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if hub == nil {
		hub = events.NewHub(256)
	}
	s := &Server{
		config:    config,
		locator:   locator,
		composer:  composer,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		// Large builds over slow links; per-request cleanup does not depend on it.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Route("/api", func(r chi.Router) {
		r.Get("/download/latest", s.handleDownloadLatest)
		r.Get("/download/binary", s.handleDownloadBinary)
		if s.weather != nil {
			r.Get("/weather", s.handleWeather)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.operatorAuth)
			r.Get("/downloads/recent", s.handleRecentDownloads)
			r.Get("/events", s.handleEvents)
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
