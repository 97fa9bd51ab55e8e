package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"dagger/internal/core/app"
	"dagger/internal/core/ports"
	"dagger/internal/shared/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// limiterTTL is how long an idle client keeps its rate limiter.
const limiterTTL = 10 * time.Minute

type HealthChecker interface {
	Check(ctx context.Context) app.HealthStatus
}

type Options struct {
	Address     string
	RateLimit   float64
	RateBurst   int
	ReadTimeout time.Duration
	ServiceName string
	Logger      *slog.Logger
}

type Server struct {
	opts     Options
	svc      ports.GraphService
	health   HealthChecker
	limiters *util.LimiterRegistry
	logger   *slog.Logger
	router   *gin.Engine
	server   *http.Server
	listener net.Listener
}

// NewServer builds the router. The limiter cleanup loop stops when ctx is done.
func NewServer(ctx context.Context, svc ports.GraphService, health HealthChecker, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:   opts,
		svc:    svc,
		health: health,
		logger: logger,
	}
	if opts.RateLimit > 0 {
		s.limiters = util.NewLimiterRegistry(ctx, opts.RateLimit, opts.RateBurst, limiterTTL)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if s.opts.ServiceName != "" {
		router.Use(otelgin.Middleware(s.opts.ServiceName))
	}
	router.Use(s.logMiddleware(), metricsMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.POST("/dag", s.rateLimitMiddleware(), s.handleMutation)
	v1.GET("/dag", s.handleList)
	v1.GET("/dag/:id", s.handleGet)
	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background. A bind
// failure is returned to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Address, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		ReadTimeout:       s.opts.ReadTimeout,
	}

	s.logger.Info("http server starting", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", "error", err)
		}
	}()
	return nil
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
