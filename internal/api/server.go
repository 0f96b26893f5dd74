package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/market"
	"vigil/internal/monitoring"
	"vigil/internal/store"
	"vigil/internal/ws"
)

// AlertReader is the alert store surface the HTTP layer needs.
type AlertReader interface {
	ws.AlertSource
	ListAlerts(ctx context.Context, f store.AlertFilter) ([]market.Alert, error)
}

// HealthChecker is implemented by stores that can report liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the collaborators the server serves from. Any nil store
// degrades the matching endpoints instead of failing startup.
type Deps struct {
	Registry    *ws.Registry
	Snapshots   ws.SnapshotSource
	Alerts      AlertReader
	Health      ws.HealthSource
	ZScores     *market.ZScoreEstimator
	RedisHealth HealthChecker
	DBHealth    HealthChecker
	Metrics     *monitoring.Metrics
	Log         *logging.Logger
}

// Server is the HTTP and websocket front of the dashboard backend.
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	deps       Deps
	log        *logging.Logger
}

// NewServer builds the router. Run starts serving.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		router: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin(cfg.CORS.AllowedOrigins),
		},
		deps: deps,
		log:  deps.Log.WithField("component", "api"),
	}
	s.setupRoutes()
	return s
}

func allowOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware(s.cfg.CORS))
	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.Middleware())
	}

	if s.cfg.Monitoring.PrometheusEnabled {
		s.router.GET(s.cfg.Monitoring.PrometheusPath, gin.WrapH(monitoring.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/state/:exchange/:instrument", s.getState)
		v1.GET("/alerts", s.getAlerts)
		v1.GET("/health", s.getHealth)
	}

	s.router.GET("/ws", s.handleWebSocket)
	s.router.GET("/healthz", s.healthz)

	if s.cfg.Static.Enabled {
		route := s.cfg.Static.Route
		if route == "" {
			route = "/"
		}
		s.router.Static(route, s.cfg.Static.Dir)
	}
}

func (s *Server) healthz(c *gin.Context) {
	check := func(h HealthChecker) string {
		if h == nil {
			return "unavailable"
		}
		if err := h.HealthCheck(c.Request.Context()); err != nil {
			return "error"
		}
		return "ok"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
		"services": gin.H{
			"redis":    check(s.deps.RedisHealth),
			"database": check(s.deps.DBHealth),
		},
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:        s.router,
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	}
}

func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	origins := "*"
	if len(cfg.AllowedOrigins) > 0 {
		origins = strings.Join(cfg.AllowedOrigins, ", ")
	}
	methods := "GET, OPTIONS"
	if len(cfg.AllowedMethods) > 0 {
		methods = strings.Join(cfg.AllowedMethods, ", ")
	}
	headers := "Origin, Content-Type, Accept"
	if len(cfg.AllowedHeaders) > 0 {
		headers = strings.Join(cfg.AllowedHeaders, ", ")
	}

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		if cfg.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
