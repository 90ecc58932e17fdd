package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/logger"
	"github.com/timmy/artsync/internal/paging"
)

var (
	// ErrNoMorePages is returned by Next after the last page.
	ErrNoMorePages = errors.New("no more pages")

	// ErrNoPreviousPage is returned by Prev on the first page.
	ErrNoPreviousPage = errors.New("already on the first page")
)

const overviewConcurrency = 4

// PageView is one screen of a gallery.
type PageView struct {
	SourceID string        `json:"source_id"`
	Offset   int           `json:"offset"`
	PageSize int           `json:"page_size"`
	Items    []domain.Item `json:"items"`
	HasPrev  bool          `json:"has_prev"`
	HasNext  bool          `json:"has_next"`
}

// Browser pages through one source back and forth. Every item fetched is
// kept, so going back never refetches and a page size change only regroups
// what is already loaded.
type Browser struct {
	id             string
	pager          paging.Pager[domain.Item]
	maxEmptyRounds int

	mu       sync.Mutex
	items    []domain.Item
	more     bool
	start    int
	shown    int
	current  bool
	pageSize int
}

// NewBrowser creates a browser over pager, which it owns from then on.
func NewBrowser(id string, pager paging.Pager[domain.Item], maxEmptyRounds int) *Browser {
	if maxEmptyRounds < 1 {
		maxEmptyRounds = 1
	}
	return &Browser{
		id:             id,
		pager:          pager,
		maxEmptyRounds: maxEmptyRounds,
		more:           true,
		pageSize:       pager.BatchSize(),
	}
}

// Pager exposes the underlying traversal for status display.
func (b *Browser) Pager() paging.Pager[domain.Item] { return b.pager }

// Next moves to the page after the current one, fetching if the loaded items
// run out. On a fetch error the browser stays on the current page.
func (b *Browser) Next(ctx context.Context) (*PageView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next(ctx)
}

func (b *Browser) next(ctx context.Context) (*PageView, error) {
	nextStart := 0
	if b.current {
		nextStart = b.start + b.shown
	}

	if err := b.fill(ctx, nextStart+b.pageSize); err != nil {
		return nil, err
	}

	if nextStart >= len(b.items) && b.current && !b.more {
		return nil, ErrNoMorePages
	}

	b.start = nextStart
	b.shown = min(b.pageSize, len(b.items)-nextStart)
	b.current = true
	return b.view(), nil
}

// fill fetches until want items are loaded, the source ends, or it keeps
// returning empty pages. Too many empty pages count as the end.
func (b *Browser) fill(ctx context.Context, want int) error {
	empty := 0
	for len(b.items) < want && b.more {
		count := min(want-len(b.items), b.pager.MaxBatchSize())
		page, err := b.pager.FetchNext(ctx, count)
		if err != nil {
			return err
		}
		b.items = append(b.items, page.Items...)
		b.more = page.More

		if len(page.Items)+page.Dropped == 0 {
			empty++
			if empty >= b.maxEmptyRounds {
				b.more = false
				return nil
			}
		} else {
			empty = 0
		}
	}
	return nil
}

// Prev moves to the page before the current one from the loaded items.
func (b *Browser) Prev(ctx context.Context) (*PageView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.current || b.start == 0 {
		return nil, ErrNoPreviousPage
	}
	b.start = max(0, b.start-b.pageSize)
	b.shown = min(b.pageSize, len(b.items)-b.start)
	return b.view(), nil
}

// First discards everything loaded, resets the traversal and fetches the
// first page again.
func (b *Browser) First(ctx context.Context) (*PageView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pager.Reset()
	b.items = nil
	b.more = true
	b.start, b.shown = 0, 0
	b.current = false
	return b.next(ctx)
}

// Current returns the page on screen, or nil before the first fetch.
func (b *Browser) Current() *PageView {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.current {
		return nil
	}
	return b.view()
}

// SetPageSize changes the page size for the pages that follow. The current
// page keeps its position.
func (b *Browser) SetPageSize(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.pager.SetBatchSize(n); err != nil {
		return err
	}
	b.pageSize = n
	return nil
}

func (b *Browser) view() *PageView {
	items := make([]domain.Item, b.shown)
	copy(items, b.items[b.start:b.start+b.shown])
	return &PageView{
		SourceID: b.id,
		Offset:   b.start,
		PageSize: b.pageSize,
		Items:    items,
		HasPrev:  b.start > 0,
		HasNext:  b.start+b.shown < len(b.items) || b.more,
	}
}

// SourceSummary describes one configured source.
type SourceSummary struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	WhoAmI       string    `json:"whoami,omitempty"`
	Filtered     bool      `json:"filtered"`
	MinBatchSize int       `json:"min_batch_size"`
	MaxBatchSize int       `json:"max_batch_size"`
	BatchSize    int       `json:"batch_size"`
	Exhausted    bool      `json:"exhausted"`
	Error        string    `json:"error,omitempty"`
	FirstPage    *PageView `json:"first_page,omitempty"`
}

// GalleryService keeps one Browser per configured source.
type GalleryService struct {
	registry *SourceRegistry
	logger   *logger.Logger

	mu       sync.Mutex
	browsers map[string]*Browser
	order    []string
}

// NewGalleryService creates a browser for every source in the registry.
func NewGalleryService(registry *SourceRegistry, maxEmptyRounds int, log *logger.Logger) (*GalleryService, error) {
	s := &GalleryService{
		registry: registry,
		logger:   log,
		browsers: make(map[string]*Browser),
	}
	for _, entry := range registry.Entries() {
		pager, err := entry.NewPager()
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", entry.ID, err)
		}
		s.browsers[entry.ID] = NewBrowser(entry.ID, pager, maxEmptyRounds)
		s.order = append(s.order, entry.ID)
	}
	return s, nil
}

func (s *GalleryService) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// Browser returns the browser for a source.
func (s *GalleryService) Browser(id string) (*Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.browsers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return b, nil
}

// Overview summarizes every source concurrently. With firstPage set it also
// loads each source's first page without moving its browser. Per-source failures are reported in the
// summary, never as an error.
func (s *GalleryService) Overview(ctx context.Context, firstPage bool) []SourceSummary {
	s.mu.Lock()
	ids := append([]string(nil), s.order...)
	s.mu.Unlock()

	summaries := make([]SourceSummary, len(ids))
	var g errgroup.Group
	g.SetLimit(overviewConcurrency)

	for i, id := range ids {
		g.Go(func() error {
			summaries[i] = s.summarize(ctx, id, firstPage)
			return nil
		})
	}
	_ = g.Wait()
	return summaries
}

func (s *GalleryService) summarize(ctx context.Context, id string, firstPage bool) SourceSummary {
	b, _ := s.Browser(id)
	entry, _ := s.registry.Get(id)
	p := b.Pager()

	sum := SourceSummary{
		ID:           id,
		Type:         entry.Type,
		Name:         p.Name(),
		Filtered:     p.ResultsFiltered(),
		MinBatchSize: p.MinBatchSize(),
		MaxBatchSize: p.MaxBatchSize(),
		BatchSize:    p.BatchSize(),
	}

	who, err := p.WhoAmI(ctx)
	if err != nil {
		s.log(ctx).WithField(logger.FieldSource, id).WithError(err).Warn("Whoami failed")
		sum.Error = errorReason(err)
	}
	sum.WhoAmI = who

	if firstPage && err == nil {
		page, ferr := s.preview(ctx, entry, b)
		if ferr != nil {
			s.log(ctx).WithField(logger.FieldSource, id).WithError(ferr).Warn("First page failed")
			sum.Error = errorReason(ferr)
		}
		sum.FirstPage = page
	}

	sum.Exhausted = p.Exhausted()
	return sum
}

// preview loads a first page on a separate traversal so the source's own
// browser keeps its position.
func (s *GalleryService) preview(ctx context.Context, entry *SourceEntry, b *Browser) (*PageView, error) {
	pager, err := entry.NewPager()
	if err != nil {
		return nil, err
	}
	if err := pager.SetBatchSize(b.Pager().BatchSize()); err != nil {
		return nil, err
	}
	return NewBrowser(entry.ID, pager, b.maxEmptyRounds).Next(ctx)
}

// errorReason returns the platform's message for adapter failures.
func errorReason(err error) string {
	var adapterErr *paging.AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Reason()
	}
	return err.Error()
}
