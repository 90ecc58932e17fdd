package archive

import (
	"context"
	"fmt"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/source"
)

const (
	suggestedBatch = 50
	maxBatch       = 500
)

// Accent colors for rated items.
var (
	MatureColor = domain.Color{R: 0xe0, G: 0x8a, B: 0x1e}
	AdultColor  = domain.Color{R: 0xc0, G: 0x20, B: 0x20}
)

// Lister is the slice of the archive repository the adapter needs.
type Lister interface {
	ListAfter(ctx context.Context, sourceID string, afterSeq uint64, limit int) ([]domain.ArchivedItem, error)
}

// Adapter pages previously exported items out of the export index. The
// cursor is the Seq of the last row returned, so rows appended during a
// traversal show up at its end and nothing is repeated.
type Adapter struct {
	repo     Lister
	sourceID string
	name     string
}

// NewAdapter creates an archive adapter. An empty sourceID pages the whole
// archive.
func NewAdapter(repo Lister, sourceID, name string) *Adapter {
	if name == "" {
		name = "Archive"
		if sourceID != "" {
			name = fmt.Sprintf("Archive (%s)", sourceID)
		}
	}
	return &Adapter{repo: repo, sourceID: sourceID, name: name}
}

func (a *Adapter) Name() string            { return a.name }
func (a *Adapter) SuggestedBatchSize() int { return suggestedBatch }
func (a *Adapter) MinBatchSize() int       { return 1 }
func (a *Adapter) MaxBatchSize() int       { return maxBatch }

// WhoAmI returns "local"; the archive has no account.
func (a *Adapter) WhoAmI(ctx context.Context) (string, error) {
	return "local", nil
}

// Start returns the oldest count rows.
func (a *Adapter) Start(ctx context.Context, count int) (source.FetchResult[uint64, domain.ArchivedItem], error) {
	return a.list(ctx, 0, count)
}

// More returns rows after cursor.
func (a *Adapter) More(ctx context.Context, cursor uint64, count int) (source.FetchResult[uint64, domain.ArchivedItem], error) {
	return a.list(ctx, cursor, count)
}

// list asks for one row beyond count so the last page is detected without
// a trailing empty fetch.
func (a *Adapter) list(ctx context.Context, after uint64, count int) (source.FetchResult[uint64, domain.ArchivedItem], error) {
	var result source.FetchResult[uint64, domain.ArchivedItem]

	rows, err := a.repo.ListAfter(ctx, a.sourceID, after, count+1)
	if err != nil {
		return result, err
	}
	if len(rows) > count {
		rows = rows[:count]
		result.HasMore = true
	}
	result.Items = rows
	if len(rows) > 0 {
		result.Next = rows[len(rows)-1].Seq
	}
	return result, nil
}

// Normalize rebuilds the exported item and colors rated posts.
func Normalize(row domain.ArchivedItem) (domain.Item, error) {
	item := row.ToItem()
	if post, ok := item.(domain.ContentItem); ok {
		switch {
		case post.Adult:
			c := AdultColor
			post.AccentColor = &c
		case post.Mature:
			c := MatureColor
			post.AccentColor = &c
		}
		item = post
	}
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("archived item %d: %w", row.Seq, err)
	}
	return item, nil
}
