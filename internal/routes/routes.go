package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/nocvalidator/backend/internal/config"
	"github.com/nocvalidator/backend/internal/controllers"
	"github.com/nocvalidator/backend/internal/logger"
	"github.com/nocvalidator/backend/internal/middleware"
	"github.com/nocvalidator/backend/internal/services"
	"gorm.io/gorm"
)

// SetupRoutes configures all application routes
func SetupRoutes(r *gin.Engine, db *gorm.DB, cfg *config.ValidationConfig) {
	// Initialize services
	var client services.ExtractionClient
	if dox, err := services.NewDOXClientFromEnv(); err != nil {
		logger.Warn("Extraction service unavailable, uploads will fail", map[string]interface{}{"error": err.Error()})
	} else {
		client = dox
	}

	registry := services.NewJobRegistry()
	records := services.NewRecordStore(db)
	pipeline := services.NewProcessingPipeline(registry, client, records)

	// Initialize controllers
	authController := controllers.NewAuthController(db)
	userController := controllers.NewUserController(db)
	documentController := controllers.NewDocumentController(registry, pipeline, records, cfg)

	// API routes
	api := r.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authController.Login)
			auth.POST("/register", authController.Register)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			users := protected.Group("/users")
			{
				users.GET("/me", userController.GetCurrentUser)
				users.PUT("/me", userController.UpdateCurrentUser)
			}

			documents := protected.Group("/documents")
			{
				documents.POST("/upload", documentController.Upload)
			}

			jobs := protected.Group("/jobs")
			{
				jobs.GET("/:jobId", documentController.GetJob)
			}

			archive := protected.Group("/records")
			{
				archive.GET("", documentController.ListRecords)
			}
		}
	}
}
