// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"fprint-service/internal/config"
	"fprint-service/internal/database"
	"fprint-service/internal/handler"
	"fprint-service/internal/middleware"
	"fprint-service/internal/service"
	"fprint-service/internal/store"
	"fprint-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	db               *database.DB
	prints           store.Store
	discoveryService *service.DiscoveryService
	deviceService    *service.DeviceService
	operationService *service.OperationService
	wsHandler        *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db may be nil.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	prints store.Store,
	discoveryService *service.DiscoveryService,
	deviceService *service.DeviceService,
	operationService *service.OperationService,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:           config,
		logger:           logger,
		db:               db,
		prints:           prints,
		discoveryService: discoveryService,
		deviceService:    deviceService,
		operationService: operationService,
		wsHandler:        wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(utils.NewServiceLogger(r.logger, "http-server")))
	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.prints, r.config, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.discoveryService, r.deviceService, r.logger)
	deviceHandler := handler.NewDeviceHandler(r.deviceService, r.logger)
	operationHandler := handler.NewOperationHandler(r.operationService, r.logger)

	r.addHealthRoutes(router, healthHandler)

	apiV1 := router.Group("/api/v1")
	r.addDiscoveryRoutes(apiV1, discoveryHandler, deviceHandler)
	r.addSessionRoutes(apiV1, deviceHandler, operationHandler)
	r.addPrintRoutes(apiV1, operationHandler)

	r.addWebSocketRoutes(router)
	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

func (r *Router) addHealthRoutes(router *gin.Engine, handler *handler.HealthHandler) {
	health := router.Group("")
	{
		health.GET("/health", handler.HealthCheck)
		health.GET("/health/db", handler.DatabaseHealthCheck)
		health.GET("/ready", handler.ReadinessCheck)
		health.GET("/live", handler.LivenessCheck)
	}
}

func (r *Router) addDiscoveryRoutes(api *gin.RouterGroup, discoveryHandler *handler.DiscoveryHandler, deviceHandler *handler.DeviceHandler) {
	api.GET("/drivers", discoveryHandler.ListDrivers)

	devices := api.Group("/devices")
	{
		devices.GET("", discoveryHandler.ListDevices)
		devices.POST("/:index/open", deviceHandler.OpenDevice)
	}
}

func (r *Router) addSessionRoutes(api *gin.RouterGroup, deviceHandler *handler.DeviceHandler, operationHandler *handler.OperationHandler) {
	sessions := api.Group("/sessions")
	{
		sessions.GET("", deviceHandler.ListSessions)

		session := sessions.Group("/:id")
		{
			session.GET("", deviceHandler.GetSession)
			session.DELETE("", deviceHandler.CloseSession)
			session.GET("/image", deviceHandler.CaptureImage)
			session.GET("/ping", deviceHandler.PingDevice)
			session.POST("/enroll", operationHandler.Enroll)
			session.POST("/verify", operationHandler.Verify)
		}
	}
}

func (r *Router) addPrintRoutes(api *gin.RouterGroup, handler *handler.OperationHandler) {
	prints := api.Group("/prints")
	{
		prints.GET("", handler.ListPrints)
		prints.DELETE("/:driver/:devtype/:finger", handler.DeletePrint)
	}
}

func (r *Router) addWebSocketRoutes(router *gin.Engine) {
	ws := router.Group("/ws")
	{
		ws.GET("/events", r.wsHandler.HandleEventConnection)
		ws.GET("/stats", r.wsHandler.GetConnectionStats)
	}
}

func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
