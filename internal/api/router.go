package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"rental-rfid-backend/config"
	"rental-rfid-backend/internal/ingest"
	"rental-rfid-backend/internal/logger"
	"rental-rfid-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. responses holds cached GET
// bodies; pass the same cache to any other writer that must flush it. A nil cache
// gets a private one.
func NewRouter(cfg *config.ServerConfig, handler *Handler, responses *cache.Cache, log *logger.Logger) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(ingest.JSONFieldName)
	}

	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(log), mw.Metrics(), mw.CORS(cfg.AllowedOrigins, cfg.OperatorIDHeader))

	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Reads are limited per client; everything else is an operator surface.
	readLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	if responses == nil {
		responses = NewResponseCache(cfg.CacheTTL)
	}
	caching := func(c *gin.Context) { c.Next() }
	if cfg.CacheTTL > 0 {
		caching = mw.Cache(responses, cfg.CacheTTL)
	}

	api := r.Group("/api")
	api.Use(mw.FlushOnWrite(responses))
	{
		api.POST("/rfid/read", readLimiter, handler.PostRead)

		api.GET("/rfid/tags", caching, handler.ListTags)
		api.GET("/rfid/tags/unknown", caching, handler.ListUnknownTags)
		api.GET("/rfid/tags/:id", caching, handler.GetTag)
		api.POST("/rfid/tags", handler.CreateTag)
		api.DELETE("/rfid/tags/:id", handler.DeleteTag)
		api.POST("/rfid/tags/:id/enroll", handler.EnrollTag)
		api.DELETE("/rfid/tags/:id/enroll", handler.UnenrollTag)

		api.GET("/rfid/detections", caching, handler.ListDetections)
		api.GET("/inventory/movements", caching, handler.ListMovements)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

// NewResponseCache creates the GET response cache shared by the router and the
// MQTT transport.
func NewResponseCache(ttl time.Duration) *cache.Cache {
	return cache.New(ttl, 10*time.Minute)
}
