package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/paging"
)

const galleryRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
  <title>Sketchbook</title>
  <link>https://example.com/gallery</link>
  <item>
    <title>Fox study</title>
    <link>https://example.com/art/1</link>
    <guid>1</guid>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    <category>fox</category>
    <media:content url="https://cdn.example.com/1.png" medium="image"/>
    <media:thumbnail url="https://cdn.example.com/1t.png"/>
    <media:rating>adult</media:rating>
  </item>
  <item>
    <title>Inline</title>
    <link>https://example.com/art/2</link>
    <guid>2</guid>
    <description><![CDATA[<p>look</p><img src="https://cdn.example.com/2.jpg">]]></description>
  </item>
  <item>
    <title>Words only</title>
    <link>https://example.com/art/3</link>
    <guid>3</guid>
    <description>no pictures here</description>
  </item>
</channel>
</rss>`

func TestAdapter_PagesSnapshotLocally(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(galleryRSS))
	}))
	defer srv.Close()

	a := NewAdapter(&Config{URL: srv.URL})
	e, err := paging.NewEngine[Cursor, *gofeed.Item, domain.ContentItem](a, Normalize, paging.WithName("sketchbook"))
	require.NoError(t, err)
	require.NoError(t, e.SetBatchSize(2))

	page, err := e.FetchNext(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.More)
	assert.Equal(t, "Sketchbook", a.Name())

	fox := page.Items[0]
	assert.Equal(t, "https://cdn.example.com/1.png", fox.MediaURL)
	assert.Equal(t, "https://cdn.example.com/1t.png", fox.Thumbnail())
	assert.True(t, fox.Adult)
	assert.Equal(t, []string{"fox"}, fox.Tags)
	assert.Equal(t, 2024, fox.Timestamp.Year())

	assert.Equal(t, "https://cdn.example.com/2.jpg", page.Items[1].MediaURL)

	page, err = e.FetchNext(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.Dropped)
	assert.False(t, page.More)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "later pages come from the snapshot")
}

func TestAdapter_RefetchesEvictedSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(galleryRSS))
	}))
	defer srv.Close()

	a := NewAdapter(&Config{URL: srv.URL, Title: "Mine"})
	res, err := a.More(context.Background(), Cursor{Snapshot: 99, Index: 2}, 5)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Words only", res.Items[0].Title)
	assert.False(t, res.HasMore)
	assert.Equal(t, "Mine", a.Name())
}

func TestNormalize_RequiresImage(t *testing.T) {
	_, err := Normalize(&gofeed.Item{Title: "t", Link: "https://x"})
	assert.ErrorIs(t, err, domain.ErrMissingMediaURL)

	item, err := Normalize(&gofeed.Item{Title: "t", Link: "https://x", Image: &gofeed.Image{URL: "https://img"}})
	require.NoError(t, err)
	assert.Equal(t, "https://img", item.MediaURL)
	assert.False(t, item.Mature)
}
