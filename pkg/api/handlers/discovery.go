package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/wallpad/pkg/api/types"
	"github.com/urmzd/wallpad/pkg/device"
)

const (
	defaultDiscoverySeconds = 120
	maxDiscoverySeconds     = 600
	heartbeatInterval       = 30 * time.Second
)

// DiscoveryHandler handles device discovery endpoints
type DiscoveryHandler struct {
	controller device.Controller
	subscriber device.EventSubscriber
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(controller device.Controller, subscriber device.EventSubscriber) *DiscoveryHandler {
	return &DiscoveryHandler{
		controller: controller,
		subscriber: subscriber,
	}
}

// StartDiscovery handles POST /discovery/start. While discovery runs,
// responders at unknown addresses are registered as they answer.
// @Summary      Start discovery
// @Description  Probes unknown bus addresses and registers the devices that answer
// @Tags         discovery
// @Accept       json
// @Produce      json
// @Param        request  body      types.StartDiscoveryRequest  false  "Duration (default 120, max 600 seconds)"
// @Success      200      {object}  types.StartDiscoveryResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid duration"
// @Failure      503      {object}  types.ErrorResponse  "Bus disconnected"
// @Router       /discovery/start [post]
func (h *DiscoveryHandler) StartDiscovery(c *gin.Context) {
	var req types.StartDiscoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.DurationSeconds = defaultDiscoverySeconds
	}
	if req.DurationSeconds <= 0 {
		req.DurationSeconds = defaultDiscoverySeconds
	}
	if req.DurationSeconds > maxDiscoverySeconds {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_duration",
			Message: fmt.Sprintf("duration cannot exceed %d seconds", maxDiscoverySeconds),
		})
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := h.controller.Discover(c.Request.Context(), true, duration); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.StartDiscoveryResponse{
		Status:          "discovery_enabled",
		ExpiresAt:       time.Now().Add(duration),
		DurationSeconds: req.DurationSeconds,
	})
}

// StopDiscovery handles POST /discovery/stop
// @Summary      Stop discovery
// @Tags         discovery
// @Produce      json
// @Success      200  {object}  types.StopDiscoveryResponse
// @Router       /discovery/stop [post]
func (h *DiscoveryHandler) StopDiscovery(c *gin.Context) {
	if err := h.controller.Discover(c.Request.Context(), false, 0); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.StopDiscoveryResponse{Status: "discovery_disabled"})
}

// Events handles GET /discovery/events as a Server-Sent Events stream of
// device detected, renamed, removed, lost and recovered notifications.
// A heartbeat is sent while the bus is quiet.
// @Summary      Device event stream
// @Description  Server-Sent Events: device_detected, device_renamed, device_removed, device_lost, device_recovered and heartbeat
// @Tags         discovery
// @Produce      text/event-stream
// @Success      200
// @Router       /discovery/events [get]
func (h *DiscoveryHandler) Events(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	events := h.subscriber.Subscribe()
	defer h.subscriber.Unsubscribe(events)

	c.SSEvent("connected", gin.H{"timestamp": time.Now()})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
		case t := <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": t})
		}
		return true
	})
}
