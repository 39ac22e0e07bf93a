package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Pinger reports datastore health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Purchase    *PurchaseHandler
	Checkin     *CheckinHandler
	Event       *EventHandler
	User        *UserHandler
	Limiter     *IPRateLimiter
	DB          Pinger
	CorsOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CorsOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", requestIDHeader}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if cfg.Limiter == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{cfg.Limiter.Middleware(), h}
	}

	api := router.Group("/api")
	{
		// Purchase routes
		api.POST("/buy-ticket", cfg.Purchase.BuyTicket)
		api.PUT("/buy-ticket", cfg.Purchase.ConfirmPurchase)

		// Scan routes
		api.POST("/verify-ticket", limited(cfg.Checkin.VerifyTicket)...)
		api.POST("/qr-token", limited(cfg.User.IssueQRToken)...)

		// Event routes
		api.GET("/events/:id", cfg.Event.GetEvent)
		api.GET("/events/:id/checkins", cfg.Checkin.GetCheckins)

		// Wallet routes
		api.GET("/wallet/tickets", cfg.User.GetTickets)
	}

	router.GET("/health", func(c *gin.Context) {
		if cfg.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.DB.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "Database connection failed"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})

	return router
}
