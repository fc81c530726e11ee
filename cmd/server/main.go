package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/AmazingeventParis/Kooki/internal/config"
	"github.com/AmazingeventParis/Kooki/internal/db"
	httpHandlers "github.com/AmazingeventParis/Kooki/internal/http/handlers"
	httpRouter "github.com/AmazingeventParis/Kooki/internal/http/router"
	"github.com/AmazingeventParis/Kooki/internal/logger"
	"github.com/AmazingeventParis/Kooki/internal/psp"
	"github.com/AmazingeventParis/Kooki/internal/repository"
	"github.com/AmazingeventParis/Kooki/internal/scheduler"
	"github.com/AmazingeventParis/Kooki/internal/service"
	"github.com/AmazingeventParis/Kooki/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: config load failed: %v", err)
	}

	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: database connection failed: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: migrations failed: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	processor := psp.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.AppURL, cfg.StripeTimeout)

	// Repositories.
	userRepo := repository.NewUserRepository(dbConn)
	orgRepo := repository.NewOrganizationRepository(dbConn)
	fundraiserRepo := repository.NewFundraiserRepository(dbConn)
	donationRepo := repository.NewDonationRepository(dbConn)
	withdrawalRepo := repository.NewWithdrawalRepository(dbConn)
	receiptRepo := repository.NewReceiptRepository(dbConn)
	webhookEventRepo := repository.NewWebhookEventRepository(dbConn)
	auditRepo := repository.NewAuditRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Websocket hub.
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Services.
	auditService := service.NewAuditService(auditRepo)
	notificationService := service.NewNotificationService(notificationRepo, hub)
	receiptService := service.NewReceiptService(receiptRepo, orgRepo, auditService)
	authService := service.NewAuthService(userRepo, tokenManager)
	organizationService := service.NewOrganizationService(orgRepo, userRepo, processor, auditService, notificationService)
	fundraiserService := service.NewFundraiserService(fundraiserRepo, orgRepo, processor, auditService)
	donationService := service.NewDonationService(donationRepo, fundraiserRepo, orgRepo, processor, receiptService, auditService, notificationService)
	withdrawalService := service.NewWithdrawalService(withdrawalRepo, fundraiserRepo, donationRepo, orgRepo, processor, auditService, notificationService)
	webhookService := service.NewWebhookService(donationService, fundraiserService, organizationService, webhookEventRepo)

	// Background reconciliation for donations whose webhooks were lost.
	sched, err := scheduler.New(donationService, cfg.ReconcileInterval)
	if err != nil {
		log.Fatalf("main: scheduler init failed: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("main: scheduler start failed: %v", err)
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Printf("main: scheduler shutdown: %v", err)
		}
	}()

	// HTTP handlers.
	authHandler := httpHandlers.NewAuthHandler(authService)
	fundraiserHandler := httpHandlers.NewFundraiserHandler(fundraiserService)
	donationHandler := httpHandlers.NewDonationHandler(donationService)
	withdrawalHandler := httpHandlers.NewWithdrawalHandler(withdrawalService)
	organizationHandler := httpHandlers.NewOrganizationHandler(organizationService, receiptService)
	webhookHandler := httpHandlers.NewWebhookHandler(webhookService, processor)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		fundraiserHandler,
		donationHandler,
		withdrawalHandler,
		organizationHandler,
		webhookHandler,
		notificationHandler,
		wsHandler,
		healthHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: http server shutdown: %v", err)
		}
	}()

	log.Printf("main: HTTP server listening on port %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: server exited with error: %v", err)
	}
}

func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: database close: %v", err)
	}
}
