package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/dormhub/internal/audit"
	auditdomain "github.com/smallbiznis/dormhub/internal/audit/domain"
	"github.com/smallbiznis/dormhub/internal/billing"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
	"github.com/smallbiznis/dormhub/internal/config"
	"github.com/smallbiznis/dormhub/internal/meterstate"
	"github.com/smallbiznis/dormhub/internal/observability"
	obsmiddleware "github.com/smallbiznis/dormhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/dormhub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/dormhub/internal/observability/tracing"
	"github.com/smallbiznis/dormhub/internal/occupancy"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
	"github.com/smallbiznis/dormhub/internal/payment"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
	"github.com/smallbiznis/dormhub/internal/providers/pdf"
	"github.com/smallbiznis/dormhub/internal/ratelimit"
	"github.com/smallbiznis/dormhub/internal/room"
	roomdomain "github.com/smallbiznis/dormhub/internal/room/domain"
	"github.com/smallbiznis/dormhub/internal/tenant"
	tenantdomain "github.com/smallbiznis/dormhub/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	room.Module,
	tenant.Module,
	occupancy.Module,
	meterstate.Module,
	billing.Module,
	payment.Module,
	audit.Module,
	pdf.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	roomSvc         roomdomain.Service
	tenantSvc       tenantdomain.Service
	occupancySvc    occupancydomain.Service
	aggregator      occupancydomain.Aggregator
	billingSvc      billingdomain.Service
	paymentSvc      paymentdomain.Service
	webhookSvc      paymentdomain.WebhookService
	auditSvc        auditdomain.Service
	pdf             pdf.Provider
	checkoutLimiter *ratelimit.CheckoutLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	RoomSvc         roomdomain.Service
	TenantSvc       tenantdomain.Service
	OccupancySvc    occupancydomain.Service
	Aggregator      occupancydomain.Aggregator
	BillingSvc      billingdomain.Service
	PaymentSvc      paymentdomain.Service
	WebhookSvc      paymentdomain.WebhookService
	AuditSvc        auditdomain.Service
	PDF             pdf.Provider
	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http"),
		roomSvc:         p.RoomSvc,
		tenantSvc:       p.TenantSvc,
		occupancySvc:    p.OccupancySvc,
		aggregator:      p.Aggregator,
		billingSvc:      p.BillingSvc,
		paymentSvc:      p.PaymentSvc,
		webhookSvc:      p.WebhookSvc,
		auditSvc:        p.AuditSvc,
		pdf:             p.PDF,
		checkoutLimiter: p.CheckoutLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAdminRoutes()
	svc.registerPaymentRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/rooms", s.CreateRoom)
	admin.GET("/rooms", s.ListRooms)
	admin.GET("/rooms/:id", s.GetRoom)
	admin.GET("/rooms/:id/snapshot", s.GetRoomSnapshot)
	admin.POST("/rooms/:id/billings", s.RunBilling)
	admin.GET("/room-snapshots", s.ListRoomSnapshots)

	admin.POST("/tenants", s.CreateTenant)
	admin.GET("/tenants", s.ListTenants)
	admin.GET("/tenants/:id", s.GetTenant)

	admin.POST("/occupancies", s.CheckIn)
	admin.GET("/occupancies/:id", s.GetOccupancy)
	admin.POST("/occupancies/:id/checkout", s.CheckOut)

	admin.POST("/billings/preview", s.PreviewBilling)
	admin.GET("/billings", s.ListBillings)
	admin.GET("/billings/export", s.ExportBillings)
	admin.GET("/billings/:id", s.GetBilling)
	admin.POST("/billings/:id/mark-paid", s.MarkBillingPaid)
	admin.GET("/billings/:id/receipt.pdf", s.DownloadReceipt)

	admin.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerPaymentRoutes() {
	s.engine.POST("/create-checkout-session", s.CheckoutRateLimit(), s.CreateCheckoutSession)
	s.engine.GET("/payments/return", s.HandlePaymentReturn)

	api := s.engine.Group("/api")
	api.POST("/billings/:id/checkout", s.CheckoutRateLimit(), s.CreateBillingCheckout)
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}
