// Package router exposes the bot's operational HTTP endpoints.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ticketdesk/orderbot/config"
	"github.com/ticketdesk/orderbot/handlers"
	"github.com/ticketdesk/orderbot/middleware"
)

// Dependencies holds everything needed to set up routes.
type Dependencies struct {
	Config        *config.Config
	HealthHandler *handlers.HealthHandler
	// Gatherer serves /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
}

// SetupRouter builds the gin engine serving health probes and Prometheus metrics.
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.AccessLog("/health/liveness", "/health/readiness", "/metrics"))

	r.GET("/health", deps.HealthHandler.DetailedHealth)
	r.GET("/health/liveness", deps.HealthHandler.LivenessCheck)
	r.GET("/health/readiness", deps.HealthHandler.ReadinessCheck)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}
