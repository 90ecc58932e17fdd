package domain

import "time"

// ExportRecord is the JSON sidecar written next to every exported item.
type ExportRecord struct {
	Kind            ItemKind `json:"kind"`
	Title           string   `json:"title"`
	DescriptionHTML string   `json:"description_html"`
	Tags            []string `json:"tags"`
	Timestamp       string   `json:"timestamp"`
	ViewURL         string   `json:"view_url"`
	MediaURL        string   `json:"media_url,omitempty"`
	ThumbnailURL    string   `json:"thumbnail_url,omitempty"`
	AccentColor     string   `json:"accent_color,omitempty"`
	Mature          bool     `json:"mature,omitempty"`
	Adult           bool     `json:"adult,omitempty"`
}

// NewExportRecord projects an item into its export form.
// Parameters:
//   - item: post or journal to project.
//
// Returns:
//   - ExportRecord: record with tags never nil and an ISO-8601 timestamp.
func NewExportRecord(item Item) ExportRecord {
	rec := ExportRecord{
		Kind:            item.Kind(),
		Title:           item.GetTitle(),
		DescriptionHTML: item.GetDescriptionHTML(),
		Tags:            []string{},
		Timestamp:       item.GetTimestamp().Format(time.RFC3339),
		ViewURL:         item.GetViewURL(),
	}
	if post, ok := item.(ContentItem); ok {
		rec.Tags = post.TagSet()
		rec.MediaURL = post.MediaURL
		rec.ThumbnailURL = post.Thumbnail()
		if post.AccentColor != nil {
			rec.AccentColor = post.AccentColor.Hex()
		}
		rec.Mature = post.Mature
		rec.Adult = post.Adult
	}
	return rec
}
