package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/parlohq/parlo/internal/billing/domain"
	"github.com/parlohq/parlo/internal/config"
	entitlementdomain "github.com/parlohq/parlo/internal/entitlement/domain"
	"github.com/parlohq/parlo/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, reg *prometheus.Registry, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Named("http")))
	r.Use(MetricsMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return r
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	entitlements entitlementdomain.Service
	webhooks     billingdomain.WebhookService
	checkout     billingdomain.CheckoutService
	feedback     FeedbackProvider
}

type Params struct {
	fx.In

	Engine       *gin.Engine
	Cfg          config.Config
	Entitlements entitlementdomain.Service
	Webhooks     billingdomain.WebhookService
	Checkout     billingdomain.CheckoutService
	Feedback     FeedbackProvider `optional:"true"`
}

func NewServer(p Params) *Server {
	return &Server{
		engine:       p.Engine,
		cfg:          p.Cfg,
		entitlements: p.Entitlements,
		webhooks:     p.Webhooks,
		checkout:     p.Checkout,
		feedback:     p.Feedback,
	}
}

func registerRoutes(s *Server) {
	s.RegisterRoutes()
}

func (s *Server) RegisterRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandleProviderWebhook)

	api := s.engine.Group("/api", s.AuthRequired())
	api.POST("/checkout", s.HandleCreateCheckout)
	api.GET("/entitlement", s.HandleGetEntitlement)
	api.GET("/entitlement/events", s.HandleListEntitlementEvents)

	coach := api.Group("/coach", s.RequirePremium())
	coach.POST("/feedback", s.HandleCoachFeedback)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
