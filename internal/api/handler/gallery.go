package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/service"
)

// GalleryHandler serves paged browsing of configured sources.
type GalleryHandler struct {
	gallery *service.GalleryService
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(gallery *service.GalleryService) *GalleryHandler {
	return &GalleryHandler{gallery: gallery}
}

// PageResponse is one page of a source in export form.
type PageResponse struct {
	SourceID string                `json:"source_id"`
	Offset   int                   `json:"offset"`
	PageSize int                   `json:"page_size"`
	HasPrev  bool                  `json:"has_prev"`
	HasNext  bool                  `json:"has_next"`
	Items    []domain.ExportRecord `json:"items"`
}

// SourceResponse describes one source and, when requested, its first page.
type SourceResponse struct {
	service.SourceSummary
	FirstPage *PageResponse `json:"first_page,omitempty"`
}

// BatchSizeRequest changes a source's page size.
type BatchSizeRequest struct {
	BatchSize int `json:"batch_size" binding:"required,min=1"`
}

func toPageResponse(view *service.PageView) *PageResponse {
	if view == nil {
		return nil
	}
	items := make([]domain.ExportRecord, len(view.Items))
	for i, item := range view.Items {
		items[i] = domain.NewExportRecord(item)
	}
	return &PageResponse{
		SourceID: view.SourceID,
		Offset:   view.Offset,
		PageSize: view.PageSize,
		HasPrev:  view.HasPrev,
		HasNext:  view.HasNext,
		Items:    items,
	}
}

// ListSources handles GET /api/v1/sources.
// With ?preview=true each source's first page is loaded too.
func (h *GalleryHandler) ListSources(c *gin.Context) {
	summaries := h.gallery.Overview(c.Request.Context(), c.Query("preview") == "true")

	resp := make([]SourceResponse, len(summaries))
	for i, s := range summaries {
		first := s.FirstPage
		s.FirstPage = nil
		resp[i] = SourceResponse{SourceSummary: s, FirstPage: toPageResponse(first)}
	}
	c.JSON(http.StatusOK, gin.H{"sources": resp})
}

// CurrentPage handles GET /api/v1/sources/:id/pages/current.
func (h *GalleryHandler) CurrentPage(c *gin.Context) {
	b, err := h.gallery.Browser(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	view := b.Current()
	if view == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no page loaded yet"})
		return
	}
	c.JSON(http.StatusOK, toPageResponse(view))
}

// NextPage handles POST /api/v1/sources/:id/pages/next.
func (h *GalleryHandler) NextPage(c *gin.Context) {
	h.move(c, (*service.Browser).Next)
}

// PrevPage handles POST /api/v1/sources/:id/pages/prev.
func (h *GalleryHandler) PrevPage(c *gin.Context) {
	h.move(c, (*service.Browser).Prev)
}

// FirstPage handles POST /api/v1/sources/:id/pages/first.
func (h *GalleryHandler) FirstPage(c *gin.Context) {
	h.move(c, (*service.Browser).First)
}

func (h *GalleryHandler) move(c *gin.Context, step func(*service.Browser, context.Context) (*service.PageView, error)) {
	b, err := h.gallery.Browser(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	view, err := step(b, c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPageResponse(view))
}

// SetBatchSize handles PUT /api/v1/sources/:id/batch-size.
func (h *GalleryHandler) SetBatchSize(c *gin.Context) {
	var req BatchSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}
	b, err := h.gallery.Browser(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := b.SetPageSize(req.BatchSize); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_size": req.BatchSize})
}
