package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ItemKind distinguishes media posts from media-less journal entries.
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindJournal ItemKind = "journal"
)

var (
	// ErrMissingTitle indicates an item without a title.
	ErrMissingTitle = errors.New("item has no title")

	// ErrMissingViewURL indicates an item without a canonical view URL.
	ErrMissingViewURL = errors.New("item has no view URL")

	// ErrMissingMediaURL indicates a post without a full-resolution media URL.
	ErrMissingMediaURL = errors.New("post has no media URL")
)

// Item is the common read surface of everything a gallery source yields.
type Item interface {
	Kind() ItemKind
	GetTitle() string
	GetDescriptionHTML() string
	GetTimestamp() time.Time
	GetViewURL() string
	Validate() error
}

// Color is a display accent color.
type Color struct {
	R, G, B uint8
}

// Hex returns the color as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ContentItem is one normalized gallery post. Values are never mutated after
// a normalizer builds them; share them freely.
type ContentItem struct {
	Title           string
	DescriptionHTML string
	Mature          bool
	Adult           bool
	Tags            []string
	Timestamp       time.Time
	ViewURL         string
	MediaURL        string
	ThumbnailURL    string // empty means "use MediaURL"
	AccentColor     *Color // nil means "use default"
}

// Kind implements Item.
func (c ContentItem) Kind() ItemKind { return KindPost }

// GetTitle implements Item.
func (c ContentItem) GetTitle() string { return c.Title }

// GetDescriptionHTML implements Item.
func (c ContentItem) GetDescriptionHTML() string { return c.DescriptionHTML }

// GetTimestamp implements Item.
func (c ContentItem) GetTimestamp() time.Time { return c.Timestamp }

// GetViewURL implements Item.
func (c ContentItem) GetViewURL() string { return c.ViewURL }

// Thumbnail returns the thumbnail URL, falling back to the media URL.
func (c ContentItem) Thumbnail() string {
	if c.ThumbnailURL != "" {
		return c.ThumbnailURL
	}
	return c.MediaURL
}

// TagSet returns the tags deduplicated and sorted. Tag order carries no meaning.
func (c ContentItem) TagSet() []string {
	return tagSet(c.Tags)
}

// Validate reports whether the post satisfies the content invariants.
func (c ContentItem) Validate() error {
	if c.Title == "" {
		return ErrMissingTitle
	}
	if c.ViewURL == "" {
		return ErrMissingViewURL
	}
	if c.MediaURL == "" {
		return ErrMissingMediaURL
	}
	return nil
}

// JournalItem is one normalized journal or blog entry. Journals carry no media.
type JournalItem struct {
	Title           string
	DescriptionHTML string
	Timestamp       time.Time
	ViewURL         string
}

// Kind implements Item.
func (j JournalItem) Kind() ItemKind { return KindJournal }

// GetTitle implements Item.
func (j JournalItem) GetTitle() string { return j.Title }

// GetDescriptionHTML implements Item.
func (j JournalItem) GetDescriptionHTML() string { return j.DescriptionHTML }

// GetTimestamp implements Item.
func (j JournalItem) GetTimestamp() time.Time { return j.Timestamp }

// GetViewURL implements Item.
func (j JournalItem) GetViewURL() string { return j.ViewURL }

// Validate reports whether the journal satisfies the content invariants.
func (j JournalItem) Validate() error {
	if j.Title == "" {
		return ErrMissingTitle
	}
	if j.ViewURL == "" {
		return ErrMissingViewURL
	}
	return nil
}

func tagSet(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
