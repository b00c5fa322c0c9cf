package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/infra/config"
	"github.com/arklim/social-platform-messenger/internal/infra/security"
)

// ReadinessCheck probes one backing dependency for the readiness probe.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server accepts WebSocket connections on the configured path and runs
// one Conn per upgrade. It also serves the health and metrics endpoints
// on the same listener.
type Server struct {
	cfg      *config.AppConfig
	keypair  *security.Keypair
	codec    *Codec
	registry *Registry
	router   *Router
	handlers *Handlers
	metrics  *Metrics
	logger   *zap.Logger
	checks   []ReadinessCheck

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	runCtx    context.Context
	draining  atomic.Bool
	drainOnce sync.Once
}

// NewServer assembles the socket server. The handlers' drain trigger is
// bound here so a datastore connectivity loss empties the registry and
// stops new upgrades.
func NewServer(cfg *config.AppConfig, keypair *security.Keypair, handlers *Handlers, registry *Registry, log *zap.Logger, checks ...ReadinessCheck) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	codec, err := NewCodec(keypair)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(MetricsOptions{Namespace: cfg.Telemetry.MetricsNamespace})
	if err != nil {
		return nil, fmt.Errorf("register socket metrics: %w", err)
	}

	handlers.SetMetrics(metrics)

	s := &Server{
		cfg:      cfg,
		keypair:  keypair,
		codec:    codec,
		registry: registry,
		router:   NewRouter(handlers),
		handlers: handlers,
		metrics:  metrics,
		logger:   log,
		checks:   checks,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.WS.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}

	handlers.OnUnavailable(s.BeginDrain)
	return s, nil
}

func (s *Server) engine() *gin.Engine {
	if s.cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", s.readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	path := s.cfg.WS.Path
	if path == "" {
		path = "/ws"
	}
	r.GET(path, s.handleSocket)

	return r
}

func (s *Server) readiness(c *gin.Context) {
	if s.draining.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	results := make(gin.H, len(s.checks))
	healthy := true
	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			results[check.Name] = err.Error()
			healthy = false
		} else {
			results[check.Name] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": results})
}

func (s *Server) handleSocket(c *gin.Context) {
	if s.draining.Load() {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	sock, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx := s.runCtx
	if ctx == nil {
		ctx = c.Request.Context()
	}

	conn := NewConn(uuid.NewString(), sock, s.codec, s.keypair, s.registry, s.router, s.cfg.WS, s.logger, s.metrics)
	conn.Serve(ctx)
}

// Run serves until ctx ends, then drains sessions and stops the
// listener.
func (s *Server) Run(ctx context.Context) error {
	s.runCtx = ctx

	addr := fmt.Sprintf("%s:%d", s.cfg.App.Host, s.cfg.App.Port)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine()}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.Info("websocket server listening", zap.String("addr", addr), zap.String("path", s.cfg.WS.Path))

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.BeginDrain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown listener: %w", err)
	}
	return nil
}

// BeginDrain closes every live session and refuses new upgrades. Called
// on shutdown and when the datastore becomes unreachable.
func (s *Server) BeginDrain() {
	s.drainOnce.Do(func() {
		s.draining.Store(true)
		sessions := s.registry.Snapshot()
		s.logger.Warn("draining websocket sessions", zap.Int("count", len(sessions)))
		for _, session := range sessions {
			if conn, ok := session.Peer.(*Conn); ok {
				conn.Shutdown("server draining")
			}
		}
	})
}
