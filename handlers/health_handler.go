package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ticketdesk/orderbot/services"
	"github.com/ticketdesk/orderbot/types"
)

type HealthHandler struct {
	healthService *services.HealthService
}

func NewHealthHandler(healthService *services.HealthService) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

// LivenessCheck fails once the worker pool has stopped accepting submissions.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	if !h.healthService.IsLive() {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.Status(http.StatusOK)
}

// ReadinessCheck reports 503 when any component is down. Degraded
// components such as the outcome ledger keep the bot ready.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	health := h.healthService.CheckHealth(c.Request.Context())

	if health.Status == types.HealthStatusDown {
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

func (h *HealthHandler) DetailedHealth(c *gin.Context) {
	health := h.healthService.CheckHealth(c.Request.Context())
	c.JSON(http.StatusOK, health)
}
