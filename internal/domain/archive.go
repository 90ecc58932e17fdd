package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray stores a string slice as a JSON text column.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
//
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// ArchivedItem is one exported gallery item recorded in the export index.
// Seq is a monotonically increasing key used as the archive source's cursor.
type ArchivedItem struct {
	Seq             uint64      `gorm:"primaryKey;autoIncrement" json:"seq"`
	ID              string      `gorm:"type:text;uniqueIndex" json:"id"`
	SourceID        string      `gorm:"type:text;not null;index:idx_archive_view,unique" json:"source_id"`
	ViewURL         string      `gorm:"type:text;not null;index:idx_archive_view,unique" json:"view_url"`
	Kind            ItemKind    `gorm:"type:text;not null" json:"kind"`
	Title           string      `gorm:"type:text;not null" json:"title"`
	DescriptionHTML string      `gorm:"type:text" json:"description_html"`
	Mature          bool        `json:"mature"`
	Adult           bool        `json:"adult"`
	Tags            StringArray `gorm:"type:text" json:"tags"`
	PostedAt        time.Time   `json:"posted_at"`
	MediaURL        string      `gorm:"type:text" json:"media_url,omitempty"`
	ThumbnailURL    string      `gorm:"type:text" json:"thumbnail_url,omitempty"`
	StorageKey      string      `gorm:"type:text" json:"storage_key,omitempty"`
	SidecarKey      string      `gorm:"type:text" json:"sidecar_key"`
	MD5Hash         string      `gorm:"type:text;index:idx_archive_md5" json:"md5_hash,omitempty"`
	Format          string      `json:"format,omitempty"`
	Width           int         `json:"width,omitempty"`
	Height          int         `json:"height,omitempty"`
	FileSize        int64       `json:"file_size,omitempty"`
	JobID           string      `gorm:"type:text;index" json:"job_id"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ArchivedItem.
func (ArchivedItem) TableName() string {
	return "archived_items"
}

// ToItem rebuilds the normalized item the row was exported from.
func (a *ArchivedItem) ToItem() Item {
	if a.Kind == KindJournal {
		return JournalItem{
			Title:           a.Title,
			DescriptionHTML: a.DescriptionHTML,
			Timestamp:       a.PostedAt,
			ViewURL:         a.ViewURL,
		}
	}
	return ContentItem{
		Title:           a.Title,
		DescriptionHTML: a.DescriptionHTML,
		Mature:          a.Mature,
		Adult:           a.Adult,
		Tags:            append([]string(nil), a.Tags...),
		Timestamp:       a.PostedAt,
		ViewURL:         a.ViewURL,
		MediaURL:        a.MediaURL,
		ThumbnailURL:    a.ThumbnailURL,
	}
}
