// Package server exposes the chatbot over HTTP: a single JSON action
// endpoint for the web widget, plus health and metrics.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/omniaweb/chatbot/config"
	"github.com/omniaweb/chatbot/conversation"
	"github.com/omniaweb/chatbot/conversation/ai"
	"github.com/omniaweb/chatbot/conversation/emit"
	"github.com/omniaweb/chatbot/conversation/notify"
	"github.com/omniaweb/chatbot/conversation/store"
)

// Server wires the conversation pipeline behind the HTTP surface.
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	logger  *slog.Logger
	engine  *conversation.Engine
	gen     *ai.Generator
	store   store.SessionStore
	notify  *notify.Dispatcher
	metrics *conversation.Metrics
	emitter emit.Emitter
	limiter *rate.Limiter
	now     func() time.Time
}

// Options collects the server's collaborators. Engine, Store and Config
// are required; a nil Generator keeps every turn on the scripted flow.
type Options struct {
	Config     *config.Config
	Logger     *slog.Logger
	Engine     *conversation.Engine
	Generator  *ai.Generator
	Store      store.SessionStore
	Dispatcher *notify.Dispatcher
	Metrics    *conversation.Metrics
	Emitter    emit.Emitter
	Registry   *prometheus.Registry

	// Clock overrides the time source, for tests.
	Clock func() time.Time
}

// New builds the HTTP server and registers all routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Emitter == nil {
		opts.Emitter = emit.NewNullEmitter()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Server{
		echo:    echo.New(),
		cfg:     opts.Config,
		logger:  opts.Logger,
		engine:  opts.Engine,
		gen:     opts.Generator,
		store:   opts.Store,
		notify:  opts.Dispatcher,
		metrics: opts.Metrics,
		emitter: opts.Emitter,
		now:     opts.Clock,
	}
	if opts.Engine != nil && opts.Config.MaxMessages > 0 {
		opts.Engine.Evaluator().MaxTurns = opts.Config.MaxMessages
	}
	if opts.Config.GlobalRatePerSecond > 0 {
		burst := int(opts.Config.GlobalRatePerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.Config.GlobalRatePerSecond), burst)
	}

	s.echo.Use(s.corsMiddleware())
	s.registerRoutes(opts.Registry)
	return s
}

func (s *Server) registerRoutes(registry *prometheus.Registry) {
	s.echo.GET("/health", s.handleHealth)
	if s.cfg.MetricsEnabled && registry != nil {
		h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		s.echo.GET("/metrics", func(c *echo.Context) error {
			h.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}
	s.echo.POST("/api/chat", s.handleChat, s.rateLimitMiddleware())

	// Everything else is a routing error, reported as 405 so widget
	// misconfigurations are easy to tell apart from legitimate traffic.
	s.echo.Any("/*", s.handleNotAllowed)
}

// Handler exposes the routing tree, used by httptest in tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the HTTP listener until the context is canceled, then
// drains in-flight requests with a bounded shutdown.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.echo}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "omniaweb-chatbot",
		"provider":  s.cfg.AIProvider,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleNotAllowed(c *echo.Context) error {
	return c.JSON(http.StatusMethodNotAllowed, map[string]string{
		"error":   "method_not_allowed",
		"message": "Usa POST /api/chat per interagire con il chatbot.",
	})
}
