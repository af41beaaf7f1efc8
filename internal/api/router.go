package api

import (
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"session-scheduler-backend/config"
	"session-scheduler-backend/internal/mw"
	"session-scheduler-backend/internal/store"
)

// NewRouter creates and configures a new Gin router. metricsHandler may be
// nil.
func NewRouter(cfg config.ServerConfig, s store.Store, sched Scheduler, webpushOptions *webpush.Options, metricsHandler http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	handler := NewHandler(s, sched, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)
	invalidate := mw.Invalidate(cacheStore)

	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/schedule", caching, handler.GetSchedule)
		api.GET("/schedule/conflicts", caching, handler.GetConflicts)
		api.POST("/schedule/run", invalidate, handler.RunSchedule)
		api.DELETE("/schedule", invalidate, handler.ClearSchedule)
		api.POST("/schedule/manual", invalidate, handler.PostManual)
		api.POST("/schedule/manual/check", handler.PostManualCheck)

		api.GET("/sessions", caching, handler.GetSessions)
		api.GET("/machines", caching, handler.GetMachines)
		api.PUT("/catalog", invalidate, handler.PutCatalog)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
