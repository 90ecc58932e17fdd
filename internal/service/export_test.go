package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/logger"
	"github.com/timmy/artsync/internal/repository"
	"github.com/timmy/artsync/internal/storage"
)

type exportFixture struct {
	svc      *ExportService
	archive  *repository.ArchiveRepository
	jobs     *repository.JobRepository
	store    *storage.LocalStorage
	fs       afero.Fs
	registry *SourceRegistry
	media    *httptest.Server
}

func newExportFixture(t *testing.T, adapter *sliceAdapter) *exportFixture {
	t.Helper()
	pngData := tinyPNG(t)
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngData)
	}))
	t.Cleanup(media.Close)

	db := newTestDB(t)
	fs := afero.NewMemMapFs()
	store, err := storage.NewLocalStorage(fs, "/export")
	require.NoError(t, err)

	registry := &SourceRegistry{byID: map[string]*SourceEntry{}}
	require.NoError(t, registry.Register("gallery", "test", sliceFactory(adapter)))

	f := &exportFixture{
		archive:  repository.NewArchiveRepository(db),
		jobs:     repository.NewJobRepository(db),
		store:    store,
		fs:       fs,
		registry: registry,
		media:    media,
	}
	f.svc = NewExportService(registry, f.archive, f.jobs, store, fs, logger.New(nil), &ExportConfig{
		Workers:         2,
		MaxEmptyRounds:  1,
		DownloadTimeout: 5 * time.Second,
	})
	return f
}

func (f *exportFixture) url(p string) string { return f.media.URL + p }

func (f *exportFixture) readSidecar(t *testing.T, key string) domain.ExportRecord {
	t.Helper()
	rc, err := f.store.Download(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	var rec domain.ExportRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func TestExportService_ExportAll(t *testing.T) {
	adapter := newSliceAdapter()
	f := newExportFixture(t, adapter)
	adapter.items = []domain.Item{
		newPost("Sunset Over Hills!", "https://g/1", f.url("/a.png")),
		newJournal("Dev Log", "https://g/j1"),
		newPost("Second", "https://g/2", f.url("/b")),
	}

	ctx := context.Background()
	job, err := f.svc.Export(ctx, "gallery", 0, ExportOptions{All: true})
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.FetchedItems)
	assert.Equal(t, 3, job.ExportedItems)
	assert.Zero(t, job.FailedItems)
	assert.Zero(t, job.Requested)
	require.NotNil(t, job.CompletedAt)

	saved, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, saved.Status)
	assert.Equal(t, 3, saved.ExportedItems)

	row, err := f.archive.GetByViewURL(ctx, "gallery", "https://g/1")
	require.NoError(t, err)
	assert.Equal(t, ArchiveItemID("gallery", "https://g/1"), row.ID)
	assert.Equal(t, "png", row.Format)
	assert.Equal(t, 3, row.Width)
	assert.Equal(t, 2, row.Height)
	assert.Equal(t, job.ID, row.JobID)
	assert.Equal(t, domain.StringArray{"a", "b"}, row.Tags)
	assert.Equal(t, "gallery/20240305-sunset-over-hills-"+row.MD5Hash[:8]+".png", row.StorageKey)
	assert.Equal(t, row.StorageKey+".json", row.SidecarKey)

	exists, err := f.store.Exists(ctx, row.StorageKey)
	require.NoError(t, err)
	assert.True(t, exists)

	rec := f.readSidecar(t, row.SidecarKey)
	assert.Equal(t, domain.KindPost, rec.Kind)
	assert.Equal(t, "Sunset Over Hills!", rec.Title)
	assert.Equal(t, []string{"a", "b"}, rec.Tags)
	assert.Equal(t, "2024-03-05T06:07:08Z", rec.Timestamp)

	// The format comes from the bytes, not the URL.
	second, err := f.archive.GetByViewURL(ctx, "gallery", "https://g/2")
	require.NoError(t, err)
	assert.Equal(t, "png", path.Ext(second.StorageKey)[1:])

	j, err := f.archive.GetByViewURL(ctx, "gallery", "https://g/j1")
	require.NoError(t, err)
	assert.Equal(t, domain.KindJournal, j.Kind)
	assert.Empty(t, j.StorageKey)
	assert.Equal(t, ".json", path.Ext(j.SidecarKey))
	jrec := f.readSidecar(t, j.SidecarKey)
	assert.Equal(t, domain.KindJournal, jrec.Kind)
	assert.Empty(t, jrec.MediaURL)
}

func TestExportService_SkipsAlreadyExported(t *testing.T) {
	adapter := newSliceAdapter()
	f := newExportFixture(t, adapter)
	adapter.items = []domain.Item{
		newPost("One", "https://g/1", f.url("/a.png")),
		newPost("Two", "https://g/2", f.url("/b.png")),
	}
	ctx := context.Background()

	first, err := f.svc.Export(ctx, "gallery", 2, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.ExportedItems)
	assert.Equal(t, 2, first.Requested)

	again, err := f.svc.Export(ctx, "gallery", 2, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.ExportedItems)
	assert.Equal(t, 2, again.SkippedItems)

	forced, err := f.svc.Export(ctx, "gallery", 2, ExportOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, forced.ExportedItems)

	count, err := f.archive.Count(ctx, "gallery")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	row, err := f.archive.GetByViewURL(ctx, "gallery", "https://g/1")
	require.NoError(t, err)
	assert.Equal(t, forced.ID, row.JobID)
}

func TestExportService_LimitStopsEarly(t *testing.T) {
	adapter := newSliceAdapter()
	f := newExportFixture(t, adapter)
	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		adapter.items = append(adapter.items, newPost("Post "+id, "https://g/"+id, f.url("/a.png")))
	}

	job, err := f.svc.Export(context.Background(), "gallery", 3, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, job.FetchedItems)
	assert.Equal(t, 3, job.ExportedItems)
}

func TestExportService_DownloadFailureIsCounted(t *testing.T) {
	adapter := newSliceAdapter()
	f := newExportFixture(t, adapter)
	adapter.items = []domain.Item{
		newPost("Good", "https://g/1", f.url("/a.png")),
		newPost("Gone", "https://g/2", f.url("/missing.png")),
	}

	job, err := f.svc.Export(context.Background(), "gallery", 0, ExportOptions{All: true})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.ExportedItems)
	assert.Equal(t, 1, job.FailedItems)
	assert.Contains(t, job.ErrorLog, "https://g/2")

	exists, err := f.archive.ExistsByViewURL(context.Background(), "gallery", "https://g/2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExportService_LocalFileMedia(t *testing.T) {
	adapter := newSliceAdapter()
	f := newExportFixture(t, adapter)
	require.NoError(t, afero.WriteFile(f.fs, "/staging/art/pic.png", tinyPNG(t), 0o644))
	adapter.items = []domain.Item{newPost("Local", "https://g/local", "file:///staging/art/pic.png")}

	job, err := f.svc.Export(context.Background(), "gallery", 1, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, job.ExportedItems)

	row, err := f.archive.GetByViewURL(context.Background(), "gallery", "https://g/local")
	require.NoError(t, err)
	assert.Equal(t, "png", row.Format)
	assert.Equal(t, int64(len(tinyPNG(t))), row.FileSize)
}

func TestExportService_FetchFailure(t *testing.T) {
	tests := []struct {
		name         string
		partial      bool
		wantExported int
	}{
		{name: "all or nothing", partial: false, wantExported: 0},
		{name: "partial", partial: true, wantExported: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newSliceAdapter()
			adapter.failOn = 2
			f := newExportFixture(t, adapter)
			adapter.items = []domain.Item{
				newPost("One", "https://g/1", f.url("/a.png")),
				newPost("Two", "https://g/2", f.url("/a.png")),
				newPost("Three", "https://g/3", f.url("/a.png")),
			}

			job, err := f.svc.Export(context.Background(), "gallery", 0, ExportOptions{All: true, Partial: tt.partial})
			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusFailed, job.Status)
			assert.Equal(t, tt.wantExported, job.ExportedItems)
			assert.Contains(t, job.ErrorLog, "platform down")
		})
	}
}

func TestExportService_CancelledRunExportsNothing(t *testing.T) {
	adapter := newSliceAdapter()
	f := newExportFixture(t, adapter)
	adapter.items = []domain.Item{newPost("One", "https://g/1", f.url("/a.png"))}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adapter.onCall = cancel

	job, err := f.svc.Export(ctx, "gallery", 0, ExportOptions{All: true})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	assert.Zero(t, job.ExportedItems)
	assert.Equal(t, 1, adapter.callCount())

	saved, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, saved.Status)
}

func TestExportService_InvalidRequests(t *testing.T) {
	f := newExportFixture(t, newSliceAdapter())

	_, err := f.svc.Export(context.Background(), "gallery", 0, ExportOptions{})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = f.svc.Export(context.Background(), "nope", 1, ExportOptions{})
	assert.ErrorIs(t, err, ErrUnknownSource)

	assert.ErrorIs(t, f.svc.Cancel("missing"), ErrJobNotRunning)
}

func TestExportService_StartRunsInBackground(t *testing.T) {
	adapter := newSliceAdapter()
	f := newExportFixture(t, adapter)
	adapter.items = []domain.Item{newPost("One", "https://g/1", f.url("/a.png"))}

	job, err := f.svc.Start(context.Background(), "gallery", 1, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, job.Status)

	require.Eventually(t, func() bool {
		saved, err := f.svc.GetJob(context.Background(), job.ID)
		return err == nil && saved.Finished()
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))

	saved, err := f.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, saved.Status)
	assert.Equal(t, 1, saved.ExportedItems)
}

func TestArchiveItemID(t *testing.T) {
	a := ArchiveItemID("gallery", "https://g/1")
	assert.Equal(t, a, ArchiveItemID("gallery", "https://g/1"))
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, ArchiveItemID("gallery", "https://g/2"))
	assert.NotEqual(t, a, ArchiveItemID("other", "https://g/1"))
}

func TestSlug(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Sunset Over Hills!", "sunset-over-hills"},
		{"  --hello__world--  ", "hello-world"},
		{"Café Ünïcode 42", "café-ünïcode-42"},
		{"!!!", "untitled"},
		{"", "untitled"},
		{"abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz", "abcdefghijklmnopqrstuvwxyzabcdefghijklmn"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.title), tt.title)
	}
}

func TestFileName(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 0, 0, 0, time.FixedZone("X", -2*3600))
	assert.Equal(t, "20240101-new-year-0123abcd.png", FileName(ts, "New Year", "0123abcdef", "png"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpg", extension("jpeg", "", ""))
	assert.Equal(t, "webp", extension("", "image/webp; charset=binary", ""))
	assert.Equal(t, "mp4", extension("", "", "https://x/clip.MP4?x=1"))
	assert.Equal(t, "bin", extension("", "application/octet-stream", "https://x/blob"))
}

func TestAppendErrorLog(t *testing.T) {
	assert.Equal(t, "first", appendErrorLog("", "first"))
	assert.Equal(t, "first\nsecond", appendErrorLog("first", "second"))

	full := strings.Repeat("x", maxErrorLogLen)
	assert.Equal(t, full, appendErrorLog(full, "ignored"))

	// The cap falls inside a two-byte rune.
	got := appendErrorLog(strings.Repeat("a", maxErrorLogLen-2), "éé")
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxErrorLogLen-1)
	assert.True(t, strings.HasSuffix(got, "\n"))
}
