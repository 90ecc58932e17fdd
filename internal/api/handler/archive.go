package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/repository"
	"github.com/timmy/artsync/internal/storage"
)

// ArchiveHandler lists what has been exported.
type ArchiveHandler struct {
	repo    *repository.ArchiveRepository
	storage storage.ObjectStorage
}

// NewArchiveHandler creates a new archive handler.
func NewArchiveHandler(repo *repository.ArchiveRepository, objectStorage storage.ObjectStorage) *ArchiveHandler {
	return &ArchiveHandler{repo: repo, storage: objectStorage}
}

// ArchiveEntry is an archived item with resolved storage URLs.
type ArchiveEntry struct {
	domain.ArchivedItem
	FileURL    string `json:"file_url,omitempty"`
	SidecarURL string `json:"sidecar_url"`
}

// ArchiveResponse is one page of the archive.
type ArchiveResponse struct {
	Items  []ArchiveEntry `json:"items"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListArchive handles GET /api/v1/archive?source=&limit=&offset=.
// Newest exports come first.
func (h *ArchiveHandler) ListArchive(c *gin.Context) {
	sourceID := c.Query("source")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := h.repo.List(c.Request.Context(), sourceID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := h.repo.Count(c.Request.Context(), sourceID)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]ArchiveEntry, len(rows))
	for i, row := range rows {
		items[i] = ArchiveEntry{ArchivedItem: row, SidecarURL: h.storage.GetURL(row.SidecarKey)}
		if row.StorageKey != "" {
			items[i].FileURL = h.storage.GetURL(row.StorageKey)
		}
	}
	c.JSON(http.StatusOK, ArchiveResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}
