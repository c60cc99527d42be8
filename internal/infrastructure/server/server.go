package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/havenstack/widgetd/internal/api/http"
	"github.com/havenstack/widgetd/internal/api/middleware"
	"github.com/havenstack/widgetd/internal/api/ws"
	"github.com/havenstack/widgetd/internal/domain/router"
	"github.com/havenstack/widgetd/internal/domain/session"
	"github.com/havenstack/widgetd/internal/domain/template"
	"github.com/havenstack/widgetd/internal/infrastructure/config"
	"github.com/havenstack/widgetd/internal/infrastructure/logging"
	"github.com/havenstack/widgetd/internal/infrastructure/monitoring"
	"github.com/havenstack/widgetd/internal/infrastructure/tracing"
	"github.com/havenstack/widgetd/internal/shared/types"
	"github.com/havenstack/widgetd/internal/transport/agent"
	"github.com/havenstack/widgetd/internal/widgets"
)

// Server wires the widget engine behind its HTTP surface.
type Server struct {
	engine   *gin.Engine
	http     *http.Server
	sessions *session.Manager
	agent    *agent.Client
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics

	cancel context.CancelFunc
}

// NewServer assembles all components from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	logger.Info("Initializing widgetd",
		zap.String("port", cfg.Server.Port),
		zap.String("agent_base_url", cfg.Agent.BaseURL),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("widgetd", logger.Logger)

	registry := template.NewRegistry()
	if err := widgets.RegisterTemplates(registry); err != nil {
		return nil, fmt.Errorf("register widget templates: %w", err)
	}
	intents := router.New()
	widgets.RegisterRoutes(intents)

	agentClient := agent.New(agent.Config{
		BaseURL:         cfg.Agent.BaseURL,
		DispatchTimeout: cfg.Agent.DispatchTimeout,
		MaxRetries:      cfg.Agent.MaxRetries,
		RateLimit:       cfg.Agent.RateLimit,
		RateBurst:       cfg.Agent.RateBurst,
	}, logger.Logger.Named("agent")).WithTracer(tracer)

	lifecycle, cancel := context.WithCancel(context.Background())

	sessions := session.NewManager(session.Deps{
		Lifecycle:   lifecycle,
		Registry:    registry,
		Transport:   agentClient,
		Capacities:  capacities(cfg, registry),
		IdleTimeout: cfg.Stream.IdleTimeout,
		Metrics:     metrics,
		Logger:      logger.Logger,
	}, cfg.Session.TTL, cfg.Session.SweepInterval)
	go sessions.Run(lifecycle)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(tracing.HTTPMiddleware(tracer))
	engine.Use(monitoring.Middleware(metrics))
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandler(sessions, intents, agentClient, metrics, logger.Logger.Named("http"))
	wsHandler := ws.NewHandler(sessions, intents, metrics, logger.Logger.Named("ws"))

	engine.GET("/health", handlers.Health)

	engine.GET("/widgets", handlers.ListWidgets)
	engine.GET("/widgets/:kind", handlers.GetWidget)
	engine.POST("/widgets/:kind/process", handlers.Process)
	engine.POST("/widgets/:kind/select", handlers.Select)
	engine.POST("/widgets/:kind/cancel", handlers.Cancel)
	engine.POST("/widgets/:kind/ack", handlers.Ack)
	engine.DELETE("/widgets/:kind/history", handlers.ClearHistory)

	engine.POST("/route", handlers.Route)

	engine.GET("/stream", wsHandler.HandleConnection)

	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	engine.GET("/metrics/json", handlers.MetricsJSON)

	logger.Info("Server initialized")

	return &Server{
		engine:   engine,
		sessions: sessions,
		agent:    agentClient,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		cancel:   cancel,
	}, nil
}

// capacities resolves per-kind history limits: config overrides win,
// otherwise the widget spec's own capacity applies.
func capacities(cfg *config.Config, registry *template.Registry) map[types.WidgetKind]int {
	caps := make(map[types.WidgetKind]int, len(types.Kinds()))
	for _, kind := range types.Kinds() {
		if spec, ok := registry.Spec(kind); ok {
			caps[kind] = spec.Capacity
		}
	}
	overrides := map[types.WidgetKind]int{
		types.WidgetDream:     cfg.History.DreamCapacity,
		types.WidgetOmni:      cfg.History.OmniCapacity,
		types.WidgetKnowledge: cfg.History.KnowledgeCapacity,
		types.WidgetProduct:   cfg.History.ProductCapacity,
	}
	for kind, limit := range overrides {
		if limit > 0 {
			caps[kind] = limit
		}
	}
	return caps
}

// Run serves HTTP until Shutdown is called.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.http = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, drains in-flight requests, and
// tears down session workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.cancel()
	s.logger.Sync()
	return err
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Deadline is a convenience for shutdown contexts.
func Deadline() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
