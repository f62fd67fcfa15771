// Package server exposes the orchestrator over HTTP.
//
// Routes:
//
//	POST   /tasks             spawn; blocks until terminal unless ?async=true
//	GET    /tasks             list, optionally ?status=running
//	GET    /tasks/:id         one task
//	POST   /tasks/:id/cancel  cancel one task
//	POST   /tasks/cancel      cancel every active task
//	DELETE /tasks             ?scope=finished (default) or ?scope=all
//	GET    /summary           counts per status
//	GET    /healthz           liveness
//	GET    /metrics           Prometheus exposition
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dshills/delegate/internal/agent"
	"github.com/dshills/delegate/internal/observability"
)

// ShutdownTimeout bounds graceful shutdown in Run.
const ShutdownTimeout = 10 * time.Second

// Server serves the HTTP API.
type Server struct {
	orch    *agent.Orchestrator
	logger  zerolog.Logger
	router  *gin.Engine
	started time.Time

	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	origins  []string

	// background is the parent context for async spawns.
	background context.Context
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics records HTTP traffic on m and serves gatherer on /metrics.
func WithMetrics(m *observability.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithCorsOrigins allows browser clients from the given origins.
func WithCorsOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithBaseContext sets the parent context of async spawns. Cancelling it
// cancels every task spawned with ?async=true.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) {
		s.background = ctx
	}
}

// New builds the router.
func New(orch *agent.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:       orch,
		logger:     zerolog.Nop(),
		started:    time.Now(),
		background: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "server").Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.logger))
	if s.metrics != nil {
		r.Use(observability.RequestMetrics(s.metrics))
	}
	if len(s.origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: normalizeOrigins(s.origins),
			AllowMethods: []string{"GET", "POST", "DELETE"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s.router = r
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("stopped")
	return nil
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.health)
	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	s.router.GET("/summary", s.summary)

	tasks := s.router.Group("/tasks")
	tasks.POST("", s.spawn)
	tasks.GET("", s.list)
	tasks.DELETE("", s.clear)
	tasks.POST("/cancel", s.cancelAll)
	tasks.GET("/:id", s.get)
	tasks.POST("/:id/cancel", s.cancel)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
