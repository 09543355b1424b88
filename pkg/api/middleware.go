package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/api/types"
	"github.com/urmzd/wallpad/pkg/device"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// SetupMiddleware installs recovery, request ids, logging and CORS.
func SetupMiddleware(r *gin.Engine, origins []string) {
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger())

	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	r.Use(cors.New(cfg))
}

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs each request with the device it addressed. Health
// probes log at debug level.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		case c.FullPath() == "/health" || c.FullPath() == "/api/v1/health":
			ev = log.Debug()
		default:
			ev = log.Info()
		}

		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}
		if id := c.Param("id"); id != "" {
			ev = ev.Str("device", id)
		}
		ev.
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// RequireBus rejects requests that need bus traffic while the stream is
// down.
func RequireBus(controller device.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !controller.IsConnected() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, types.ErrorResponse{
				Error:   "bus_disconnected",
				Message: "The bus stream is not running",
			})
			return
		}
		c.Next()
	}
}
