package domain

import "time"

// JobStatus represents the status of an export job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusFailed    JobStatus = "failed"
)

// ExportJob records one bulk export run and its progress counters.
// Requested is zero for "everything".
type ExportJob struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	SourceID      string     `gorm:"type:text;not null;index" json:"source_id"`
	Status        JobStatus  `gorm:"type:text;default:pending" json:"status"`
	Requested     int        `gorm:"default:0" json:"requested"`
	FetchedItems  int        `gorm:"default:0" json:"fetched_items"`
	ExportedItems int        `gorm:"default:0" json:"exported_items"`
	SkippedItems  int        `gorm:"default:0" json:"skipped_items"`
	FailedItems   int        `gorm:"default:0" json:"failed_items"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ErrorLog      string     `json:"error_log,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ExportJob.
func (ExportJob) TableName() string {
	return "export_jobs"
}

// Finished reports whether the job reached a terminal status.
func (j *ExportJob) Finished() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusCancelled, JobStatusFailed:
		return true
	}
	return false
}
