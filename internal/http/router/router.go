package router

import (
	"github.com/gin-gonic/gin"

	"github.com/AmazingeventParis/Kooki/internal/config"
	"github.com/AmazingeventParis/Kooki/internal/http/handlers"
	"github.com/AmazingeventParis/Kooki/internal/http/middleware"
	"github.com/AmazingeventParis/Kooki/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	fundraiserHandler *handlers.FundraiserHandler,
	donationHandler *handlers.DonationHandler,
	withdrawalHandler *handlers.WithdrawalHandler,
	organizationHandler *handlers.OrganizationHandler,
	webhookHandler *handlers.WebhookHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	// Webhooks sit outside /api and outside rate limiting: the processor's
	// retry policy must never collide with client-facing limits.
	r.POST("/webhooks/stripe", webhookHandler.HandleStripe)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	protectedAuth := api.Group("/auth")
	protectedAuth.Use(middleware.AuthMiddleware(tokenManager))
	{
		protectedAuth.GET("/me", authHandler.Me)
	}

	// Public routes: fundraiser pages and the donation flow.
	api.GET("/plans", fundraiserHandler.ListPlans)
	api.GET("/fundraisers/slug/:slug", fundraiserHandler.GetBySlug)
	api.GET("/fundraisers/:id/donations", donationHandler.List)
	api.GET("/donations/tip-suggestion", donationHandler.TipSuggestion)

	donate := api.Group("")
	donate.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		donate.POST("/fundraisers/:id/donations", donationHandler.Create)
	}

	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/fundraisers", fundraiserHandler.Create)
		protected.GET("/fundraisers", fundraiserHandler.List)
		protected.GET("/fundraisers/:id", fundraiserHandler.Get)
		protected.POST("/fundraisers/:id/plan-checkout", fundraiserHandler.PlanCheckout)
		protected.POST("/fundraisers/:id/pause", fundraiserHandler.Pause)
		protected.POST("/fundraisers/:id/resume", fundraiserHandler.Resume)
		protected.POST("/fundraisers/:id/close", fundraiserHandler.Close)
		protected.GET("/fundraisers/:id/balance", withdrawalHandler.Balance)

		protected.POST("/withdrawals", withdrawalHandler.Create)
		protected.GET("/withdrawals", withdrawalHandler.List)

		protected.POST("/organizations", organizationHandler.Create)
		protected.GET("/organizations/me", organizationHandler.Mine)
		protected.POST("/organizations/me/onboard", organizationHandler.Onboard)
		protected.GET("/organizations/me/payout-status", organizationHandler.PayoutStatus)
		protected.GET("/organizations/:id/receipts", organizationHandler.ListReceipts)

		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.POST("/notifications/:id/read", notificationHandler.MarkRead)
	}

	return r
}
