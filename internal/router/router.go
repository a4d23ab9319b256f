package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caz-payments/internal/cache"
	"github.com/caz-payments/internal/config"
	publichandlers "github.com/caz-payments/internal/http/handlers/public"
	"github.com/caz-payments/internal/logger"
	"github.com/caz-payments/internal/metrics"
	"github.com/caz-payments/internal/models"
	"github.com/caz-payments/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container, nrApp *newrelic.Application) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	handler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "caz"
	}
	redisClient := cache.Client()
	if !cfg.RateLimit.Enabled {
		redisClient = nil
	}
	paymentCreateRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment_create", redisPrefix),
		WindowSeconds: cfg.RateLimit.PaymentCreate.WindowSeconds,
		MaxRequests:   cfg.RateLimit.PaymentCreate.MaxRequests,
		Message:       "too many payment attempts, retry in %d seconds",
	}
	cardCallbackRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:card_callback", redisPrefix),
		WindowSeconds: cfg.RateLimit.CardCallback.WindowSeconds,
		MaxRequests:   cfg.RateLimit.CardCallback.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))

	apiV1 := r.Group("/api/v1")
	{
		payments := apiV1.Group("/payments")
		{
			create := []gin.HandlerFunc{RateLimitMiddleware(redisClient, paymentCreateRule, KeyByIPAndJSONField("clean_air_zone_id"))}
			if cfg.Idempotency.Enabled {
				create = append(create, IdempotencyMiddleware("payment_create", cfg.Idempotency.TTL()))
			}
			create = append(create, handler.CreatePayment)
			payments.POST("", create...)
			payments.GET("", handler.ListPayments)
			payments.GET("/:id", handler.GetPayment)
			payments.PUT("/:id/status", handler.ReconcilePayment)
			payments.POST("/webhook/card", RateLimitMiddleware(redisClient, cardCallbackRule, KeyByIP), handler.HandleCardCallback)
		}

		apiV1.PATCH("/entrant-payments/:entrant_id/status", handler.UpdateEntrantStatus)

		zones := apiV1.Group("/clean-air-zones/:zone_id")
		{
			zones.GET("/direct-debit-mandates", handler.ListMandates)
			zones.POST("/direct-debit-mandates", handler.CreateMandate)
		}
	}

	if cfg.Metrics.Enabled {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(metrics.Handler()))
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		checks := gin.H{"database": "ok", "redis": "ok"}
		status := "ok"
		if err := models.Ping(ctx); err != nil {
			checks["database"] = "unavailable"
			status = "degraded"
		}
		if err := cache.Ping(ctx); err != nil {
			checks["redis"] = "unavailable"
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "checks": checks})
	})

	return r
}
