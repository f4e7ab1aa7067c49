package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/givingdesk/internal/checkout"
	checkoutdomain "github.com/smallbiznis/givingdesk/internal/checkout/domain"
	"github.com/smallbiznis/givingdesk/internal/clock"
	"github.com/smallbiznis/givingdesk/internal/config"
	"github.com/smallbiznis/givingdesk/internal/donation"
	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	"github.com/smallbiznis/givingdesk/internal/migration"
	"github.com/smallbiznis/givingdesk/internal/observability"
	obslogger "github.com/smallbiznis/givingdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/givingdesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/givingdesk/internal/observability/tracing"
	"github.com/smallbiznis/givingdesk/internal/providers"
	"github.com/smallbiznis/givingdesk/internal/ratelimit"
	"github.com/smallbiznis/givingdesk/internal/reporting"
	reportingdomain "github.com/smallbiznis/givingdesk/internal/reporting/domain"
	"github.com/smallbiznis/givingdesk/internal/webhook"
	webhookdomain "github.com/smallbiznis/givingdesk/internal/webhook/domain"
	"github.com/smallbiznis/givingdesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	db.Module,
	migration.Module,
	donation.Module,
	providers.Module,
	checkout.Module,
	webhook.Module,
	reporting.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	checkoutSvc     checkoutdomain.Service
	webhookSvc      webhookdomain.Service
	reportingSvc    reportingdomain.Service
	store           donationdomain.Store
	clock           clock.Clock
	checkoutLimiter *ratelimit.CheckoutLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	CheckoutSvc     checkoutdomain.Service
	WebhookSvc      webhookdomain.Service
	ReportingSvc    reportingdomain.Service
	Store           donationdomain.Store
	Clock           clock.Clock
	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http"),
		checkoutSvc:     p.CheckoutSvc,
		webhookSvc:      p.WebhookSvc,
		reportingSvc:    p.ReportingSvc,
		store:           p.Store,
		clock:           p.Clock,
		checkoutLimiter: p.CheckoutLimiter,
	}

	svc.registerStripeRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerStripeRoutes() {
	api := s.engine.Group("/api/stripe")

	api.POST("/checkout", s.CheckoutRateLimit(), s.CreateCheckoutSession)

	api.POST("/subscription", s.CheckoutRateLimit(), s.CreateSubscription)
	api.GET("/subscription", s.GetSubscription)
	api.PUT("/subscription", s.UpdateSubscription)
	api.DELETE("/subscription", s.CancelSubscription)

	api.POST("/webhook", s.HandleStripeWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")
	admin.Use(s.AdminAuthRequired())

	admin.GET("/donations", s.ListDonations)
	admin.GET("/donations/summary", s.GetDonationSummary)
	admin.GET("/donations/analytics", s.GetDonationAnalytics)
	admin.GET("/donations/export.csv", s.ExportDonationsCSV)
	admin.GET("/donations/report.pdf", s.DownloadReportPDF)
	admin.GET("/donations/:id", s.GetDonation)

	admin.GET("/subscriptions", s.ListSubscriptions)
	admin.GET("/webhook-events", s.ListWebhookEvents)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
