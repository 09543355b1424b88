package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/wallpad/pkg/api/types"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/device/schema"
)

// ControlHandler handles device state control endpoints
type ControlHandler struct {
	controller device.Controller
	validator  *schema.Validator
}

// NewControlHandler creates a new control handler
func NewControlHandler(controller device.Controller, validator *schema.Validator) *ControlHandler {
	return &ControlHandler{controller: controller, validator: validator}
}

// GetState handles GET /devices/:id/state
// @Summary      Get device state
// @Description  Returns the confirmed state of a bus device
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Bus address (e.g. 0E:11) or name"
// @Success      200  {object}  types.StateResponse
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Failure      503  {object}  types.ErrorResponse  "Bus disconnected"
// @Router       /devices/{id}/state [get]
func (h *ControlHandler) GetState(c *gin.Context) {
	ctx := c.Request.Context()

	d, err := h.controller.GetDevice(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	state, err := h.controller.GetDeviceState(ctx, d.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.StateResponse{
		Device:    d.Name,
		State:     state,
		Timestamp: time.Now(),
	})
}

// SetState handles POST /devices/:id/state. The body is validated against
// the device's state schema before anything is sent on the bus.
// @Summary      Set device state
// @Description  Requests new property values, validated against the device's state_schema; the device confirms asynchronously
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Bus address (e.g. 0E:11) or name"
// @Param        request  body      object  true  "Properties to change"
// @Success      200      {object}  types.StateResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid state"
// @Failure      404      {object}  types.ErrorResponse  "Device not found"
// @Failure      422      {object}  types.ErrorResponse  "Declined by the device"
// @Failure      503      {object}  types.ErrorResponse  "Bus disconnected"
// @Router       /devices/{id}/state [post]
func (h *ControlHandler) SetState(c *gin.Context) {
	ctx := c.Request.Context()

	var req map[string]any
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
		return
	}

	d, err := h.controller.GetDevice(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.validator.Validate(d.StateSchema, req); err != nil {
		resp := types.ErrorResponse{Error: "validation_error", Message: err.Error()}
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			resp.Fields = ve.Fields
		}
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	state, err := h.controller.SetDeviceState(ctx, d.ID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.StateResponse{
		Device:    d.Name,
		State:     state,
		Timestamp: time.Now(),
	})
}
