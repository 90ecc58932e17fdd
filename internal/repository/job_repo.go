package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/timmy/artsync/internal/domain"
)

// JobRepository persists export jobs.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job.
func (r *JobRepository) Create(ctx context.Context, job *domain.ExportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update saves every field of job.
func (r *JobRepository) Update(ctx context.Context, job *domain.ExportJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ExportJob, error) {
	var job domain.ExportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListRecent returns the most recently created jobs, optionally for one source.
func (r *JobRepository) ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.ExportJob, error) {
	query := r.db.WithContext(ctx)
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}
	var jobs []domain.ExportJob
	if err := query.Order("created_at DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
