package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/artsync/internal/repository"
	"github.com/timmy/artsync/internal/service"
)

// ExportHandler starts and tracks export jobs.
type ExportHandler struct {
	exports *service.ExportService
	jobs    *repository.JobRepository
}

// NewExportHandler creates a new export handler.
// Parameters:
//   - exports: export service instance.
//   - jobs: job repository for listing.
//
// Returns:
//   - *ExportHandler: initialized handler.
func NewExportHandler(exports *service.ExportService, jobs *repository.JobRepository) *ExportHandler {
	return &ExportHandler{exports: exports, jobs: jobs}
}

// ExportRequest represents the export API request.
type ExportRequest struct {
	Source  string `json:"source" binding:"required"`
	Limit   int    `json:"limit" binding:"min=0,max=100000"`
	All     bool   `json:"all"`
	Force   bool   `json:"force"`
	Partial bool   `json:"partial"`
}

// CreateExport handles POST /api/v1/exports. The job runs in the background;
// the response carries its ID.
func (h *ExportHandler) CreateExport(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	job, err := h.exports.Start(c.Request.Context(), req.Source, req.Limit, service.ExportOptions{
		All:     req.All,
		Force:   req.Force,
		Partial: req.Partial,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	logFrom(c).WithField("job_id", job.ID).Info("Export job started")
	c.JSON(http.StatusAccepted, job)
}

// GetExport handles GET /api/v1/exports/:id.
func (h *ExportHandler) GetExport(c *gin.Context) {
	job, err := h.exports.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelExport handles DELETE /api/v1/exports/:id.
func (h *ExportHandler) CancelExport(c *gin.Context) {
	if err := h.exports.Cancel(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": c.Param("id"), "status": "cancelling"})
}

// ListExports handles GET /api/v1/exports?source=&limit=.
func (h *ExportHandler) ListExports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	jobs, err := h.jobs.ListRecent(c.Request.Context(), c.Query("source"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
