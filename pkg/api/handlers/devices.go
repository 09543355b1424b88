package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/wallpad/pkg/api/types"
	"github.com/urmzd/wallpad/pkg/device"
)

// DevicesHandler handles device CRUD endpoints
type DevicesHandler struct {
	controller device.Controller
}

// NewDevicesHandler creates a new devices handler
func NewDevicesHandler(controller device.Controller) *DevicesHandler {
	return &DevicesHandler{controller: controller}
}

func (h *DevicesHandler) withState(ctx context.Context, d device.Device) types.DeviceWithState {
	dws := types.DeviceWithState{
		Address:      d.ID,
		Name:         d.Name,
		Type:         d.Type,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
		Connected:    d.Connected,
		LastSeen:     d.LastSeen,
		StateSchema:  d.StateSchema,
		Exposes:      d.Exposes,
	}
	if state, err := h.controller.GetDeviceState(ctx, d.ID); err == nil {
		dws.State = state
	}
	return dws
}

// ListDevices handles GET /devices
// @Summary      List devices
// @Description  Returns every registered bus device with its confirmed state
// @Tags         devices
// @Produce      json
// @Success      200  {object}  types.ListDevicesResponse
// @Failure      500  {object}  types.ErrorResponse  "Controller error"
// @Router       /devices [get]
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	ctx := c.Request.Context()

	devices, err := h.controller.ListDevices(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]types.DeviceWithState, 0, len(devices))
	for _, d := range devices {
		result = append(result, h.withState(ctx, d))
	}

	c.JSON(http.StatusOK, types.ListDevicesResponse{
		Devices: result,
		Count:   len(result),
	})
}

// GetDevice handles GET /devices/:id, by address or name
// @Summary      Get device details
// @Description  Returns one device by bus address or name
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Bus address (e.g. 0E:11) or name"
// @Success      200  {object}  types.DeviceResponse
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Router       /devices/{id} [get]
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	ctx := c.Request.Context()

	d, err := h.controller.GetDevice(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DeviceResponse{Device: h.withState(ctx, *d)})
}

// RenameDevice handles PATCH /devices/:id
// @Summary      Rename a device
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Bus address (e.g. 0E:11) or name"
// @Param        request  body      types.RenameDeviceRequest  true  "New name"
// @Success      200      {object}  types.DeviceResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Failure      404      {object}  types.ErrorResponse  "Device not found"
// @Failure      409      {object}  types.ErrorResponse  "Name in use"
// @Router       /devices/{id} [patch]
func (h *DevicesHandler) RenameDevice(c *gin.Context) {
	ctx := c.Request.Context()

	var req types.RenameDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: "name is required",
		})
		return
	}

	d, err := h.controller.GetDevice(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.controller.RenameDevice(ctx, d.ID, req.Name); err != nil {
		writeError(c, err)
		return
	}

	d, err = h.controller.GetDevice(ctx, d.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.DeviceResponse{Device: h.withState(ctx, *d)})
}

// RemoveDevice handles DELETE /devices/:id. ?force=true drops a device
// with a control request in flight.
// @Summary      Remove a device
// @Description  Forgets a device; it is learned again if it answers during discovery
// @Tags         devices
// @Param        id     path   string  true   "Bus address (e.g. 0E:11) or name"
// @Param        force  query  bool    false  "Remove even while a control request is in flight"
// @Success      204
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Failure      409  {object}  types.ErrorResponse  "Control request in flight"
// @Router       /devices/{id} [delete]
func (h *DevicesHandler) RemoveDevice(c *gin.Context) {
	ctx := c.Request.Context()
	force := c.Query("force") == "true"

	if err := h.controller.RemoveDevice(ctx, c.Param("id"), force); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
