// Package main runs the camp marketplace HTTP API with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campverse/backend/config"
	"github.com/campverse/backend/internal/app"
	"github.com/campverse/backend/internal/auth"
	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/camps"
	"github.com/campverse/backend/internal/emaillogs"
	"github.com/campverse/backend/internal/middleware"
	"github.com/campverse/backend/internal/models"
	"github.com/campverse/backend/internal/payments"
	"github.com/campverse/backend/internal/payouts"
	"github.com/campverse/backend/internal/promocodes"
	"github.com/campverse/backend/internal/registrations"
	"github.com/campverse/backend/internal/users"
	apperrors "github.com/campverse/backend/pkg/errors"
	"github.com/campverse/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer a.Close(context.Background())

	router := newRouter(a)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Embedded worker and escrow scheduler
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Worker.Embedded {
		go a.Processor().Run(workerCtx)
		sched, err := a.Scheduler()
		if err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
		logger.Info("embedded worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newRouter(a *app.App) *gin.Engine {
	cfg, logger := a.Config, a.Logger

	var (
		campImages camps.ImageUploader
		slipImages payments.SlipUploader
		ledger     payouts.Reader
	)
	if a.Storage != nil {
		campImages, slipImages = a.Storage, a.Storage
	}
	if a.Ledger != nil {
		ledger = a.Ledger
	}

	authHandler := auth.NewHandler(a.Auth, logger)
	userHandler := users.NewHandler(a.Users, logger)
	campHandler := camps.NewHandler(a.Camps, campImages, logger)
	registrationHandler := registrations.NewHandler(a.Registrations, cfg.Server.PublicBaseURL, logger)
	promoHandler := promocodes.NewHandler(a.Promos)
	paymentHandler := payments.NewHandler(a.Payments, slipImages, cfg.Escrow.ReleaseBatch, logger)
	emailLogHandler := emaillogs.NewHandler(a.EmailLogRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(a.Metrics))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	requireAuth := middleware.JWT(a.Tokens, a.UserRepo)
	optionalAuth := middleware.OptionalJWT(a.Tokens, a.UserRepo)

	api := router.Group("/api")

	// Auth (public)
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/send-otp", authHandler.SendOTP)
		authGroup.POST("/verify-otp", authHandler.VerifyOTP)
		authGroup.GET("/me", requireAuth, authHandler.Me)
	}

	// Camps (public reads; viewer widens the visible statuses)
	api.GET("/camps", optionalAuth, campHandler.List)
	api.GET("/camps/:id", optionalAuth, campHandler.Get)

	// Protected API (JWT required)
	protected := api.Group("")
	protected.Use(requireAuth)
	{
		protected.PATCH("/users/me", userHandler.UpdateMe)

		// Camps
		protected.POST("/camps", middleware.Authorize(authz.ActionCampCreate), campHandler.Create)
		protected.PATCH("/camps/:id", campHandler.Update)
		protected.DELETE("/camps/:id", campHandler.Delete)
		protected.POST("/camps/:id/image", campHandler.UploadImage)
		protected.POST("/camps/:id/approve", middleware.Authorize(authz.ActionCampApprove), campHandler.Approve)
		protected.POST("/camps/:id/reviews", campHandler.AddReview)
		protected.GET("/camps/:id/registrations", middleware.Authorize(authz.ActionRegistrationReview), registrationHandler.ListForCamp)

		// Registrations
		protected.POST("/registrations", registrationHandler.Create)
		protected.GET("/registrations", registrationHandler.List)
		protected.GET("/registrations/:id", registrationHandler.Get)
		protected.GET("/registrations/:id/ticket.png", registrationHandler.TicketQR)
		protected.PATCH("/registrations/:id/status", middleware.Authorize(authz.ActionRegistrationReview), registrationHandler.Review)
		protected.POST("/registrations/:id/confirm", registrationHandler.Confirm)
		protected.POST("/registrations/:id/cancel", registrationHandler.Cancel)
		protected.GET("/ticket/verify", middleware.Authorize(authz.ActionCheckIn), registrationHandler.VerifyTicket)

		// Promo codes
		protected.POST("/promo/validate", promoHandler.Validate)

		// Payments
		protected.POST("/payment", paymentHandler.Create)
		protected.POST("/payment/slip", paymentHandler.UploadSlip)
		protected.POST("/payment/verify-slip", paymentHandler.VerifySlip)
		protected.GET("/payment/:id", paymentHandler.Get)
		protected.PATCH("/payment/:id", paymentHandler.AttachSlip)
		protected.GET("/payment/:id/qr", paymentHandler.QRCode)
		protected.GET("/payments", paymentHandler.List)
		protected.POST("/payments/:id/approve", middleware.Authorize(authz.ActionPaymentReview), paymentHandler.Approve)
		protected.POST("/payments/:id/reject", middleware.Authorize(authz.ActionPaymentReview), paymentHandler.Reject)
		protected.POST("/payments/:id/confirm", middleware.Authorize(authz.ActionPaymentConfirm), paymentHandler.Confirm)

		// Payouts
		if ledger != nil {
			payoutHandler := payouts.NewHandler(ledger)
			protected.GET("/payouts/me", middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin), payoutHandler.Mine)
		} else {
			protected.GET("/payouts/me", unavailable)
		}
	}

	// Admin
	admin := api.Group("/admin")
	admin.Use(requireAuth, middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/users", middleware.Authorize(authz.ActionUserManage), userHandler.List)
		admin.PATCH("/users/:id/role", middleware.Authorize(authz.ActionUserManage), userHandler.ChangeRole)
		admin.POST("/users/:id/ban", middleware.Authorize(authz.ActionUserManage), userHandler.ToggleBan)
		admin.DELETE("/users/:id", middleware.Authorize(authz.ActionUserManage), userHandler.Delete)

		admin.GET("/promocodes", middleware.Authorize(authz.ActionPromoManage), promoHandler.List)
		admin.POST("/promocodes", middleware.Authorize(authz.ActionPromoManage), promoHandler.Create)
		admin.PATCH("/promocodes/:id", middleware.Authorize(authz.ActionPromoManage), promoHandler.Update)
		admin.DELETE("/promocodes/:id", middleware.Authorize(authz.ActionPromoManage), promoHandler.Delete)

		admin.POST("/payments/release-due", middleware.Authorize(authz.ActionPaymentRelease), paymentHandler.ReleaseDue)
		admin.GET("/email-logs", emailLogHandler.List)

		if ledger != nil {
			admin.GET("/payouts", payouts.NewHandler(ledger).List)
		} else {
			admin.GET("/payouts", unavailable)
		}
	}

	return router
}

func unavailable(c *gin.Context) {
	response.Error(c, apperrors.Clone(apperrors.ErrUnavailable, "payout ledger is not configured"))
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
