// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	billingapi "github.com/wanderbite/wanderbite/internal/api/billing"
	challengeapi "github.com/wanderbite/wanderbite/internal/api/challenge"
	"github.com/wanderbite/wanderbite/internal/api/middleware"
	partnerapi "github.com/wanderbite/wanderbite/internal/api/partner"
	profileapi "github.com/wanderbite/wanderbite/internal/api/profile"
	"github.com/wanderbite/wanderbite/internal/cache"
	"github.com/wanderbite/wanderbite/internal/config"
	"github.com/wanderbite/wanderbite/internal/repository"
	"github.com/wanderbite/wanderbite/internal/session"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// Handlers groups the route handlers the router mounts.
type Handlers struct {
	Challenge *challengeapi.Handler
	Profile   *profileapi.Handler
	Partner   *partnerapi.Handler
	Billing   *billingapi.Handler
}

// NewRouter builds the gin engine with all routes, health and metrics.
func NewRouter(cfg *config.Config, h Handlers, sessions *session.Store, db *repository.DB, redis *cache.Cache, log *logger.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		checks := gin.H{"database": "ok", "redis": "ok"}
		if err := db.Health(); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := redis.Health(c.Request.Context()); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, checks)
	})

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")

	// Subscriber routes, JWT-authenticated.
	user := api.Group("")
	user.Use(middleware.RequireUser(cfg.Auth.JWTSecret, log))
	{
		user.GET("/me", h.Profile.GetMe)
		user.PUT("/me", h.Profile.UpdateMe)
		user.POST("/me/onboarding", h.Profile.Onboarding)
		user.GET("/me/stats", h.Challenge.GetStats)

		user.POST("/challenge/generate", h.Challenge.Generate)
		user.GET("/challenge/current", h.Challenge.GetCurrent)
		user.POST("/challenge/items/:id/swap", h.Challenge.Swap)
		user.POST("/challenge/items/:id/redeem", h.Challenge.Redeem)

		user.POST("/billing/checkout", h.Billing.CreateCheckoutSession)
	}

	// Stripe calls this directly; auth is the payload signature.
	api.POST("/billing/webhook", h.Billing.Webhook)

	// Partner routes, session-cookie authenticated past login.
	partner := api.Group("/partner")
	{
		partner.POST("/login", h.Partner.Login)
		partner.POST("/logout", h.Partner.Logout)

		authed := partner.Group("")
		authed.Use(middleware.RequirePartner(sessions, log))
		authed.POST("/verify", h.Partner.Verify)
		authed.GET("/dashboard", h.Partner.Dashboard)
	}

	return router
}
