package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"cove/internal/server/auth"
	"cove/internal/server/config"
	"cove/internal/server/metrics"
	"cove/internal/server/ratelimit"
)

// SetupRouter creates and configures the echo router with all routes and
// middleware.
func SetupRouter(handler *Handler, keys *auth.KeyStore, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Api-Key"},
	}))
	e.Use(RequestLogger())

	// Independent limiter instances per protected route.
	uploadLimiter := ratelimit.New(cfg.UploadRateLimit, cfg.RateLimitWindow)
	deleteLimiter := ratelimit.New(cfg.DeleteRateLimit, cfg.RateLimitWindow)

	// Upload: the key may ride in the multipart body, so authentication
	// can be deferred to the handler.
	e.POST("/upload", handler.HandleUpload,
		RateLimit(uploadLimiter, keys),
		DeferableKey(keys),
	)

	// Download: public by generated filename.
	e.GET("/f/:filename", handler.HandleServe)
	e.HEAD("/f/:filename", handler.HandleServe)

	// Delete & client config: key must be visible up front.
	e.GET("/delete", handler.HandleDelete,
		RateLimit(deleteLimiter, keys),
		RequireKey(keys),
	)
	e.GET("/config", handler.HandleClientConfig, RequireKey(keys))

	// Real-time progress channel.
	e.GET("/ws/progress", handler.HandleProgress)

	// Operational endpoints.
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)
	metrics.Register(e, "/metrics")

	return e
}
