package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/timmy/artsync/internal/domain"
)

// ArchiveRepository handles the export index.
type ArchiveRepository struct {
	db *gorm.DB
}

// NewArchiveRepository creates a new ArchiveRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *ArchiveRepository: repository instance bound to db.
func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Upsert records an exported item, replacing any previous row for the same
// source and view URL. Seq and ID of an existing row are kept.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: archived item to create or update.
//
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ArchiveRepository) Upsert(ctx context.Context, item *domain.ArchivedItem) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}, {Name: "view_url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind", "title", "description_html", "mature", "adult", "tags", "posted_at",
			"media_url", "thumbnail_url", "storage_key", "sidecar_key", "md5_hash",
			"format", "width", "height", "file_size", "job_id", "updated_at",
		}),
	}).Create(item).Error
}

// GetByViewURL retrieves the archived item for a source and view URL.
// Returns gorm.ErrRecordNotFound when absent.
func (r *ArchiveRepository) GetByViewURL(ctx context.Context, sourceID, viewURL string) (*domain.ArchivedItem, error) {
	var item domain.ArchivedItem
	if err := r.db.WithContext(ctx).First(&item, "source_id = ? AND view_url = ?", sourceID, viewURL).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ExistsByViewURL checks whether an item has already been exported.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sourceID: configured source ID.
//   - viewURL: canonical view URL of the item.
//
// Returns:
//   - bool: true if a record exists.
//   - error: non-nil if the lookup fails.
func (r *ArchiveRepository) ExistsByViewURL(ctx context.Context, sourceID, viewURL string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ArchivedItem{}).
		Where("source_id = ? AND view_url = ?", sourceID, viewURL).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListAfter returns up to limit items with Seq greater than afterSeq, in Seq
// order. An empty sourceID lists every source.
func (r *ArchiveRepository) ListAfter(ctx context.Context, sourceID string, afterSeq uint64, limit int) ([]domain.ArchivedItem, error) {
	query := r.db.WithContext(ctx).Where("seq > ?", afterSeq)
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}

	var items []domain.ArchivedItem
	if err := query.Order("seq ASC").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	return items, nil
}

// List retrieves archived items newest first with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sourceID: source to filter by; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
//
// Returns:
//   - []domain.ArchivedItem: matching records.
//   - error: non-nil if the query fails.
func (r *ArchiveRepository) List(ctx context.Context, sourceID string, limit, offset int) ([]domain.ArchivedItem, error) {
	query := r.db.WithContext(ctx)
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}

	var items []domain.ArchivedItem
	if err := query.Order("seq DESC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Count counts archived items, optionally for one source.
func (r *ArchiveRepository) Count(ctx context.Context, sourceID string) (int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.ArchivedItem{})
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes an archived item by ID.
func (r *ArchiveRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.ArchivedItem{}, "id = ?", id).Error
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
