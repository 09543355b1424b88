package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/wallpad/pkg/api/types"
	"github.com/urmzd/wallpad/pkg/device"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	controller device.Controller
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(controller device.Controller) *HealthHandler {
	return &HealthHandler{controller: controller}
}

// Health handles GET /health. It answers 503 while the bus stream is down;
// stored devices are still counted then.
// @Summary      Health check
// @Description  Reports the bus link and how many devices are registered and online
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Failure      503  {object}  types.HealthResponse  "Bus disconnected"
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	bus := "disconnected"
	if h.controller.IsConnected() {
		bus = "connected"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if bus != "connected" {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	total, online := device.Census(c.Request.Context(), h.controller)
	c.JSON(httpStatus, types.HealthResponse{
		Status:    status,
		Bus:       bus,
		Devices:   total,
		Online:    online,
		Timestamp: time.Now(),
	})
}
