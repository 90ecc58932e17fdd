package weasyl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/paging"
)

func newGalleryServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		assert.Equal(t, "key", r.Header.Get(apiKeyHeader))
		switch r.URL.Path {
		case "/api/whoami":
			_, _ = w.Write([]byte(`{"login":"artist","userid":7}`))
		case "/api/users/artist/gallery":
			assert.Equal(t, "2", r.URL.Query().Get("count"))
			if r.URL.Query().Get("nextid") == "" {
				_, _ = w.Write([]byte(`{"submissions":[
					{"submitid":3,"title":"Three","rating":"general","posted_at":"2024-03-01T10:00:00Z","link":"https://www.weasyl.com/~artist/submissions/3/three","tags":["fox"],"media":{"submission":[{"url":"https://cdn/3.png"}],"thumbnail":[{"url":"https://cdn/3t.png"}]}},
					{"submitid":2,"title":"Two","rating":"explicit","posted_at":"2024-02-01T10:00:00Z","link":"https://www.weasyl.com/~artist/submissions/2/two","media":{"submission":[{"url":"https://cdn/2.png"}]}}
				],"nextid":2,"backid":null}`))
				return
			}
			assert.Equal(t, "2", r.URL.Query().Get("nextid"))
			_, _ = w.Write([]byte(`{"submissions":[
				{"submitid":1,"title":"","rating":"mature","posted_at":"2024-01-01T10:00:00Z","link":"https://www.weasyl.com/~artist/submissions/1/x","media":{"submission":[{"url":"https://cdn/1.png"}]}}
			],"nextid":null,"backid":2}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"name":"resourceNotFound"}}`))
		}
	}))
}

func TestAdapter_PagesGalleryThroughEngine(t *testing.T) {
	srv := newGalleryServer(t)
	defer srv.Close()

	a := NewAdapter(&Config{BaseURL: srv.URL, APIKey: "key"})
	e, err := paging.NewEngine[int, Submission, domain.ContentItem](a, Normalize)
	require.NoError(t, err)
	assert.Equal(t, suggestedBatch, e.BatchSize())
	assert.True(t, e.ResultsFiltered())
	require.NoError(t, e.SetBatchSize(2))

	page, err := e.FetchNext(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.More)
	assert.Equal(t, "Three", page.Items[0].Title)
	assert.Equal(t, "https://cdn/3t.png", page.Items[0].Thumbnail())
	assert.False(t, page.Items[0].Mature)
	assert.True(t, page.Items[1].Adult)
	assert.False(t, page.Items[1].Mature)
	assert.Equal(t, "https://cdn/2.png", page.Items[1].Thumbnail())

	cursor, ok := e.Cursor()
	require.True(t, ok)
	assert.Equal(t, 2, cursor)

	page, err = e.FetchNext(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items, "untitled submission is rejected by the normalizer")
	assert.Equal(t, 1, page.Dropped)
	assert.False(t, page.More)
	assert.True(t, e.Exhausted())
}

func TestAdapter_WhoAmI(t *testing.T) {
	srv := newGalleryServer(t)
	defer srv.Close()

	a := NewAdapter(&Config{BaseURL: srv.URL, APIKey: "key", Username: "artist"})
	who, err := a.WhoAmI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "artist", who)
	assert.Equal(t, "Weasyl (artist)", a.Name())
}

func TestAdapter_PlatformErrorSurfacesAsAdapterError(t *testing.T) {
	srv := newGalleryServer(t)
	defer srv.Close()

	a := NewAdapter(&Config{BaseURL: srv.URL, APIKey: "key", Username: "nobody"})
	e, err := paging.NewEngine[int, Submission, domain.ContentItem](a, Normalize)
	require.NoError(t, err)

	_, err = e.FetchNext(context.Background(), 2)
	var adapterErr *paging.AdapterError
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, "resourceNotFound", adapterErr.Reason())
	_, started := e.Cursor()
	assert.False(t, started)
}

func TestNormalize(t *testing.T) {
	posted := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	item, err := Normalize(Submission{SubmitID: 9, Title: "Nine", Rating: "moderate", PostedAt: posted,
		Media: map[string][]Media{"submission": {{URL: "https://cdn/9.png"}}}})
	require.NoError(t, err)
	assert.True(t, item.Mature)
	assert.False(t, item.Adult)
	assert.Equal(t, "https://www.weasyl.com/submission/9", item.ViewURL)
	assert.Equal(t, posted, item.Timestamp)

	_, err = Normalize(Submission{SubmitID: 10, Title: "No media", Link: "https://x"})
	assert.ErrorIs(t, err, domain.ErrMissingMediaURL)
}
