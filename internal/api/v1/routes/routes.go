package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/nak1ro/micro-scribe-sub003/internal/api/middleware"
	"github.com/nak1ro/micro-scribe-sub003/internal/api/v1/handlers"
	"github.com/nak1ro/micro-scribe-sub003/internal/export"
	"github.com/nak1ro/micro-scribe-sub003/internal/transcribe"
	"github.com/nak1ro/micro-scribe-sub003/internal/translate"
	"github.com/nak1ro/micro-scribe-sub003/internal/upload"
)

// ServiceContainer bundles the domain services the v1 routes need.
type ServiceContainer struct {
	UploadManager *upload.Manager
	Orchestrator  *transcribe.Orchestrator
	Translator    *translate.Runner
	Exporter      *export.Service
}

// RegisterRoutes registers all v1 API routes
func RegisterRoutes(router *gin.RouterGroup, container *ServiceContainer) {
	router.Use(middleware.UserIdentity())

	uploadHandler := handlers.NewUploadHandler(container.UploadManager)
	uploads := router.Group("/uploads")
	{
		uploads.POST("", uploadHandler.Initiate)
		uploads.POST("/:id/parts/:number", uploadHandler.PresignPart)
		uploads.POST("/:id/complete", uploadHandler.Complete)
		uploads.GET("/:id", uploadHandler.Get)
		uploads.DELETE("/:id", uploadHandler.Abort)
	}

	jobHandler := handlers.NewJobHandler(container.Orchestrator, container.Translator, container.Exporter)
	jobs := router.Group("/jobs")
	{
		jobs.POST("", jobHandler.Create)
		jobs.GET("/:id", jobHandler.Get)
		jobs.POST("/:id/cancel", jobHandler.Cancel)
		jobs.POST("/:id/translate", jobHandler.Translate)
		jobs.GET("/:id/export", jobHandler.Export)
	}
}
