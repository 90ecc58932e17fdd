package feed

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/source"
	"github.com/timmy/artsync/internal/source/client"
)

const (
	suggestedBatch = 25
	maxBatch       = 200

	// snapshots kept for traversals still paging through an older fetch
	maxSnapshots = 8
)

// Cursor resumes a traversal inside one fetched snapshot of the feed.
type Cursor struct {
	Snapshot uint64
	Index    int
}

// Config holds configuration for a feed adapter.
type Config struct {
	URL           string
	Title         string // display name; defaults to the feed's own title
	RatePerSecond float64
}

// Adapter pages an RSS, Atom or JSON gallery feed. The whole feed is fetched
// once by Start and later pages are served from that snapshot, so a feed that
// changes mid-traversal does not shift items between pages.
type Adapter struct {
	url    string
	title  string
	client *client.Client
	parser *gofeed.Parser

	mu        sync.Mutex
	seq       uint64
	snapshots map[uint64][]*gofeed.Item
	feedTitle string
}

// NewAdapter creates a feed adapter.
func NewAdapter(cfg *Config) *Adapter {
	return &Adapter{
		url:       cfg.URL,
		title:     cfg.Title,
		client:    client.New(&client.Config{RatePerSecond: cfg.RatePerSecond}),
		parser:    gofeed.NewParser(),
		snapshots: make(map[uint64][]*gofeed.Item),
	}
}

// Name returns the configured title, else the feed title once known.
func (a *Adapter) Name() string {
	if a.title != "" {
		return a.title
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.feedTitle != "" {
		return a.feedTitle
	}
	return a.url
}

func (a *Adapter) SuggestedBatchSize() int { return suggestedBatch }
func (a *Adapter) MinBatchSize() int       { return 1 }
func (a *Adapter) MaxBatchSize() int       { return maxBatch }

// WhoAmI returns the feed URL; feeds are anonymous.
func (a *Adapter) WhoAmI(ctx context.Context) (string, error) {
	return a.url, nil
}

// Start fetches the feed and returns its first count items.
func (a *Adapter) Start(ctx context.Context, count int) (source.FetchResult[Cursor, *gofeed.Item], error) {
	id, items, err := a.fetch(ctx)
	if err != nil {
		return source.FetchResult[Cursor, *gofeed.Item]{}, err
	}
	return window(id, items, 0, count), nil
}

// More continues from cursor. If its snapshot has been evicted the feed is
// fetched again and paging continues at the same index.
func (a *Adapter) More(ctx context.Context, cursor Cursor, count int) (source.FetchResult[Cursor, *gofeed.Item], error) {
	a.mu.Lock()
	items, ok := a.snapshots[cursor.Snapshot]
	a.mu.Unlock()

	id := cursor.Snapshot
	if !ok {
		var err error
		id, items, err = a.fetch(ctx)
		if err != nil {
			return source.FetchResult[Cursor, *gofeed.Item]{}, err
		}
	}
	return window(id, items, cursor.Index, count), nil
}

func (a *Adapter) fetch(ctx context.Context) (uint64, []*gofeed.Item, error) {
	body, _, err := a.client.GetBytes(ctx, a.url)
	if err != nil {
		return 0, nil, err
	}
	parsed, err := a.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to parse feed %s: %w", a.url, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	id := a.seq
	a.snapshots[id] = parsed.Items
	delete(a.snapshots, id-maxSnapshots)
	a.feedTitle = parsed.Title
	return id, parsed.Items, nil
}

func window(id uint64, items []*gofeed.Item, start, count int) source.FetchResult[Cursor, *gofeed.Item] {
	page, next, more := source.SliceWindow(items, start, count)
	return source.FetchResult[Cursor, *gofeed.Item]{
		Items:   page,
		Next:    Cursor{Snapshot: id, Index: next},
		HasMore: more,
	}
}

// Normalize converts a feed entry into a ContentItem. Entries without any
// image are rejected.
func Normalize(it *gofeed.Item) (domain.ContentItem, error) {
	if it == nil {
		return domain.ContentItem{}, fmt.Errorf("nil feed item")
	}

	description := it.Content
	if description == "" {
		description = it.Description
	}

	item := domain.ContentItem{
		Title:           strings.TrimSpace(it.Title),
		DescriptionHTML: description,
		Tags:            append([]string(nil), it.Categories...),
		Timestamp:       timestamp(it),
		ViewURL:         it.Link,
		MediaURL:        mediaURL(it),
		ThumbnailURL:    mediaAttr(it, "thumbnail", "url"),
	}

	switch strings.ToLower(mediaText(it, "rating")) {
	case "adult":
		item.Adult = true
	case "mature":
		item.Mature = true
	}

	if err := item.Validate(); err != nil {
		return domain.ContentItem{}, fmt.Errorf("feed item %q: %w", it.GUID, err)
	}
	return item, nil
}

func timestamp(it *gofeed.Item) time.Time {
	if it.PublishedParsed != nil {
		return *it.PublishedParsed
	}
	if it.UpdatedParsed != nil {
		return *it.UpdatedParsed
	}
	return time.Time{}
}

// mediaURL picks the full-size image: media:content, then image enclosures,
// then the item image, then the first <img> in the body.
func mediaURL(it *gofeed.Item) string {
	for _, c := range it.Extensions["media"]["content"] {
		if c.Attrs["medium"] == "image" || strings.HasPrefix(c.Attrs["type"], "image/") {
			if c.Attrs["url"] != "" {
				return c.Attrs["url"]
			}
		}
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	if src := firstImage(it.Content); src != "" {
		return src
	}
	return firstImage(it.Description)
}

func firstImage(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return src
}

func mediaAttr(it *gofeed.Item, name, attr string) string {
	for _, e := range it.Extensions["media"][name] {
		if v := e.Attrs[attr]; v != "" {
			return v
		}
	}
	return ""
}

func mediaText(it *gofeed.Item, name string) string {
	for _, e := range it.Extensions["media"][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}
