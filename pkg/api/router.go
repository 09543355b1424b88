package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	_ "github.com/urmzd/wallpad/pkg/api/docs"
	"github.com/urmzd/wallpad/pkg/api/handlers"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/device/schema"
)

// Router holds the Gin engine and dependencies
type Router struct {
	engine     *gin.Engine
	controller device.Controller
	subscriber device.EventSubscriber
	validator  *schema.Validator
	origins    []string
}

// Option customizes a Router.
type Option func(*Router)

// WithAllowedOrigins restricts CORS to origins. "*" or none allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(r *Router) { r.origins = origins }
}

// NewRouter creates a new API router
func NewRouter(controller device.Controller, subscriber device.EventSubscriber, validator *schema.Validator, opts ...Option) *Router {
	gin.SetMode(gin.ReleaseMode)

	router := &Router{
		engine:     gin.New(),
		controller: controller,
		subscriber: subscriber,
		validator:  validator,
	}
	for _, opt := range opts {
		opt(router)
	}

	SetupMiddleware(router.engine, router.origins)
	router.setupRoutes()
	return router
}

// setupRoutes configures all API routes
func (r *Router) setupRoutes() {
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})

	healthHandler := handlers.NewHealthHandler(r.controller)
	r.engine.GET("/health", healthHandler.Health)

	bus := RequireBus(r.controller)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)

		discoveryHandler := handlers.NewDiscoveryHandler(r.controller, r.subscriber)
		discovery := v1.Group("/discovery")
		{
			discovery.POST("/start", bus, discoveryHandler.StartDiscovery)
			discovery.POST("/stop", discoveryHandler.StopDiscovery)
			discovery.GET("/events", discoveryHandler.Events)
		}

		devicesHandler := handlers.NewDevicesHandler(r.controller)
		controlHandler := handlers.NewControlHandler(r.controller, r.validator)
		devices := v1.Group("/devices")
		{
			devices.GET("", devicesHandler.ListDevices)
			devices.GET("/:id", devicesHandler.GetDevice)
			devices.PATCH("/:id", devicesHandler.RenameDevice)
			devices.DELETE("/:id", devicesHandler.RemoveDevice)

			devices.GET("/:id/state", controlHandler.GetState)
			devices.POST("/:id/state", bus, controlHandler.SetState)
		}
	}
}

// Handler exposes the engine for http.Server and tests.
func (r *Router) Handler() http.Handler {
	return r.engine
}
