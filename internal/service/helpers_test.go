package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/timmy/artsync/internal/config"
	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/paging"
	"github.com/timmy/artsync/internal/repository"
	"github.com/timmy/artsync/internal/source"
)

var errPlatformDown = errors.New("platform down")

// sliceAdapter serves a fixed list of items in index-cursor pages. When
// failOn is positive, that call (1-based) fails.
type sliceAdapter struct {
	items     []domain.Item
	suggested int
	max       int
	failOn    int
	onCall    func()
	whoErr    error

	mu    sync.Mutex
	calls int
}

func newSliceAdapter(items ...domain.Item) *sliceAdapter {
	return &sliceAdapter{items: items, suggested: 2, max: 10}
}

func (a *sliceAdapter) SuggestedBatchSize() int { return a.suggested }
func (a *sliceAdapter) MinBatchSize() int       { return 1 }
func (a *sliceAdapter) MaxBatchSize() int       { return a.max }
func (a *sliceAdapter) Name() string            { return "slice" }

func (a *sliceAdapter) WhoAmI(ctx context.Context) (string, error) {
	if a.whoErr != nil {
		return "", a.whoErr
	}
	return "tester", nil
}

func (a *sliceAdapter) Start(ctx context.Context, count int) (source.FetchResult[int, domain.Item], error) {
	return a.window(0, count)
}

func (a *sliceAdapter) More(ctx context.Context, cursor int, count int) (source.FetchResult[int, domain.Item], error) {
	return a.window(cursor, count)
}

func (a *sliceAdapter) window(start, count int) (source.FetchResult[int, domain.Item], error) {
	a.mu.Lock()
	a.calls++
	call := a.calls
	a.mu.Unlock()

	if a.onCall != nil {
		a.onCall()
	}
	if a.failOn > 0 && call == a.failOn {
		return source.FetchResult[int, domain.Item]{}, errPlatformDown
	}
	items, next, more := source.SliceWindow(a.items, start, count)
	return source.FetchResult[int, domain.Item]{Items: items, Next: next, HasMore: more}, nil
}

func (a *sliceAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func numbered(n int) []domain.Item {
	items := make([]domain.Item, n)
	for i := range items {
		items[i] = newJournal(fmt.Sprintf("Entry %d", i), fmt.Sprintf("https://g/%d", i))
	}
	return items
}

func validateItem(item domain.Item) (domain.Item, error) {
	return item, item.Validate()
}

func sliceFactory(a *sliceAdapter) PagerFactory {
	return func() (paging.Pager[domain.Item], error) {
		return paging.NewEngine[int, domain.Item, domain.Item](a, validateItem)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "artsync.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newPost(title, viewURL, mediaURL string) domain.ContentItem {
	return domain.ContentItem{
		Title:     title,
		Tags:      []string{"b", "a", "b"},
		Timestamp: time.Date(2024, 3, 5, 6, 7, 8, 0, time.UTC),
		ViewURL:   viewURL,
		MediaURL:  mediaURL,
	}
}

func newJournal(title, viewURL string) domain.JournalItem {
	return domain.JournalItem{
		Title:           title,
		DescriptionHTML: "<p>entry</p>",
		Timestamp:       time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		ViewURL:         viewURL,
	}
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
