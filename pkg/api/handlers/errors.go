package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/wallpad/pkg/api/types"
	"github.com/urmzd/wallpad/pkg/device"
)

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{device.ErrNotFound, http.StatusNotFound, "not_found"},
	{device.ErrValidation, http.StatusBadRequest, "validation_error"},
	{device.ErrExists, http.StatusConflict, "conflict"},
	{device.ErrDeclined, http.StatusUnprocessableEntity, "declined"},
	{device.ErrUnsupported, http.StatusUnprocessableEntity, "unsupported"},
	{device.ErrNotConnected, http.StatusServiceUnavailable, "bus_disconnected"},
	{device.ErrTimeout, http.StatusGatewayTimeout, "timeout"},
	{device.ErrNoResponse, http.StatusGatewayTimeout, "timeout"},
}

// writeError maps a controller error to a status code and error body.
func writeError(c *gin.Context, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			c.JSON(e.status, types.ErrorResponse{Error: e.code, Message: err.Error()})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, types.ErrorResponse{
		Error:   "controller_error",
		Message: err.Error(),
	})
}
