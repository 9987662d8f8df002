package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/handler"
	"github.com/noah-isme/student-records-api/internal/middleware"
	"github.com/noah-isme/student-records-api/internal/service"
	"github.com/noah-isme/student-records-api/pkg/config"
	"github.com/noah-isme/student-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/student-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/student-records-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	auth     *handler.AuthHandler
	students *handler.StudentHandler
	metrics  *handler.MetricsHandler
	tokens   middleware.TokenValidator
	recorder *service.MetricsService
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = cfg.Import.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(h.recorder))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.GET("/me", middleware.JWT(h.tokens), h.auth.Me)

	students := api.Group("/students", middleware.JWT(h.tokens))
	students.GET("", h.students.List)
	students.GET("/stats", h.students.Stats)
	students.GET("/export", h.students.Export)
	students.POST("", h.students.Create)
	students.POST("/import", h.students.Import)
	students.DELETE("/truncate", h.students.Truncate)
	students.GET("/:id", h.students.Get)
	students.DELETE("/:id", h.students.Delete)

	return r
}
