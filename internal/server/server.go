package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"deployhook/internal/auth"
	"deployhook/internal/metrics"
	"deployhook/internal/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	// HTTP server timeouts. Deploy requests run the whole pipeline before
	// responding, so the write timeout is generous.
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 15 * time.Minute
	HTTPIdleTimeout  = 60 * time.Second

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout = 30 * time.Second

	// Denial log throttling: at most DenialLogBurst lines, refilled once per
	// DenialLogInterval.
	DenialLogInterval = time.Second
	DenialLogBurst    = 5
)

// Options configures the HTTP surface.
type Options struct {
	Prefix            string
	AppEnv            string
	TrustProxyHeaders bool
	// Steps is the pipeline run by the prefix root. Empty runs the defaults.
	Steps   []pipeline.Step
	Tracing bool
}

// Server serves the deploy routes.
type Server struct {
	Gate         *auth.Gate
	Orchestrator *pipeline.Orchestrator
	Metrics      *metrics.Collector
	Logger       *slog.Logger

	opts      Options
	denialLog *rate.Limiter
	now       func() time.Time
}

// NewServer creates a server. metrics may be nil.
func NewServer(gate *auth.Gate, orch *pipeline.Orchestrator, collector *metrics.Collector, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Prefix == "" {
		opts.Prefix = "deploy"
	}
	return &Server{
		Gate:         gate,
		Orchestrator: orch,
		Metrics:      collector,
		Logger:       logger,
		opts:         opts,
		denialLog:    rate.NewLimiter(rate.Every(DenialLogInterval), DenialLogBurst),
		now:          time.Now,
	}
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if s.opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	if s.opts.Tracing {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "deployhook")
		})
	}

	// Unknown routes and methods look exactly like a disabled deploy group.
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)

	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.Route("/"+s.opts.Prefix, func(r chi.Router) {
		r.Use(s.gateMiddleware)

		handle(r, "/", s.HandlePipeline)
		handle(r, "/sync-env", s.stepHandler("sync-env", pipeline.Named(pipeline.StepSyncEnv)))
		handle(r, "/clear", s.stepHandler("clear", pipeline.Named(pipeline.StepOptimizeClear)))
		handle(r, "/migrate", s.stepHandler("migrate", pipeline.Named(pipeline.StepMigrate)))
		handle(r, "/migrate-fresh", s.stepHandler("migrate-fresh", pipeline.Named(pipeline.StepMigrateFresh)))
		handle(r, "/cache", s.stepHandler("cache", pipeline.Named(pipeline.StepCache)))
		handle(r, "/queue-restart", s.stepHandler("queue-restart", pipeline.Named(pipeline.StepQueueRestart)))
		handle(r, "/storage-link", s.stepHandler("storage-link", pipeline.Named(pipeline.StepStorageLink)))
		handle(r, "/maintenance-down", s.stepHandler("maintenance-down", pipeline.Named(pipeline.StepMaintenanceDown)))
		handle(r, "/maintenance-up", s.stepHandler("maintenance-up", pipeline.Named(pipeline.StepMaintenanceUp)))
		handle(r, "/optimize", s.stepHandler("optimize", pipeline.Named(pipeline.StepOptimize)))
		handle(r, "/health", s.HandleHealth)
	})

	return r
}

// handle registers h for GET and POST so webhook providers can deliver a
// signed body.
func handle(r chi.Router, pattern string, h http.HandlerFunc) {
	r.Get(pattern, h)
	r.Post(pattern, h)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("Starting server", "addr", addr, "prefix", "/"+s.opts.Prefix)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
