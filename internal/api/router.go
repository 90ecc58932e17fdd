package api

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/artsync/internal/api/handler"
	"github.com/timmy/artsync/internal/api/middleware"
	"github.com/timmy/artsync/internal/config"
	"github.com/timmy/artsync/internal/logger"
	"github.com/timmy/artsync/internal/repository"
	"github.com/timmy/artsync/internal/service"
	"github.com/timmy/artsync/internal/storage"
)

// Deps holds everything the HTTP layer serves from.
type Deps struct {
	Gallery     *service.GalleryService
	Exports     *service.ExportService
	ArchiveRepo *repository.ArchiveRepository
	JobRepo     *repository.JobRepository
	Storage     storage.ObjectStorage
	DB          handler.Pinger
	Logger      *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *config.ServerConfig, deps *Deps) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(deps.DB)
	galleryHandler := handler.NewGalleryHandler(deps.Gallery)
	exportHandler := handler.NewExportHandler(deps.Exports, deps.JobRepo)
	archiveHandler := handler.NewArchiveHandler(deps.ArchiveRepo, deps.Storage)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Browsing
		v1.GET("/sources", galleryHandler.ListSources)
		v1.GET("/sources/:id/pages/current", galleryHandler.CurrentPage)
		v1.POST("/sources/:id/pages/next", galleryHandler.NextPage)
		v1.POST("/sources/:id/pages/prev", galleryHandler.PrevPage)
		v1.POST("/sources/:id/pages/first", galleryHandler.FirstPage)
		v1.PUT("/sources/:id/batch-size", galleryHandler.SetBatchSize)

		// Exports
		v1.POST("/exports", exportHandler.CreateExport)
		v1.GET("/exports", exportHandler.ListExports)
		v1.GET("/exports/:id", exportHandler.GetExport)
		v1.DELETE("/exports/:id", exportHandler.CancelExport)

		// Archive
		v1.GET("/archive", archiveHandler.ListArchive)
	}

	return r
}
