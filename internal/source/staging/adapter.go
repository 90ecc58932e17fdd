package staging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/source"
)

const (
	// ManifestFileName is the JSONL manifest file name in staging sources.
	ManifestFileName = "manifest.jsonl"
	// ImagesDir is the directory name for staged images.
	ImagesDir = "images"

	suggestedBatch = 50
	maxBatch       = 500
)

// ManifestItem represents a line of the manifest.jsonl file.
type ManifestItem struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	DescriptionHTML string   `json:"description_html"`
	Filename        string   `json:"filename"`
	MediaURL        string   `json:"media_url"`
	ThumbnailURL    string   `json:"thumbnail_url"`
	ViewURL         string   `json:"view_url"`
	Tags            []string `json:"tags"`
	Mature          bool     `json:"mature"`
	Adult           bool     `json:"adult"`
	PostedAt        string   `json:"posted_at"`

	// localPath is the resolved path of Filename, set while loading.
	localPath string
}

// Adapter pages a staging directory: <base>/<sourceID>/manifest.jsonl with
// images under <base>/<sourceID>/images. Items are ordered by ID.
type Adapter struct {
	fs       afero.Fs
	basePath string
	sourceID string

	mu    sync.Mutex
	items []ManifestItem
}

// NewAdapter creates a new staging adapter.
// Parameters:
//   - fs: filesystem the staging directory lives on.
//   - basePath: base path to the staging directory.
//   - sourceID: identifier for the staging source.
//
// Returns:
//   - *Adapter: initialized staging adapter.
func NewAdapter(fs afero.Fs, basePath, sourceID string) *Adapter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Adapter{
		fs:       fs,
		basePath: basePath,
		sourceID: sourceID,
	}
}

// Name returns a human-readable name for this source.
func (a *Adapter) Name() string {
	return fmt.Sprintf("Staging (%s)", a.sourceID)
}

func (a *Adapter) SuggestedBatchSize() int { return suggestedBatch }
func (a *Adapter) MinBatchSize() int       { return 1 }
func (a *Adapter) MaxBatchSize() int       { return maxBatch }

// WhoAmI returns the staging source ID.
func (a *Adapter) WhoAmI(ctx context.Context) (string, error) {
	return a.sourceID, nil
}

// Start reloads the manifest and returns the first count items.
func (a *Adapter) Start(ctx context.Context, count int) (source.FetchResult[int, ManifestItem], error) {
	items, err := a.loadItems()
	if err != nil {
		return source.FetchResult[int, ManifestItem]{}, fmt.Errorf("failed to load staging items: %w", err)
	}
	a.mu.Lock()
	a.items = items
	a.mu.Unlock()
	return window(items, 0, count), nil
}

// More returns up to count items starting at index cursor.
func (a *Adapter) More(ctx context.Context, cursor int, count int) (source.FetchResult[int, ManifestItem], error) {
	a.mu.Lock()
	items := a.items
	a.mu.Unlock()

	if items == nil {
		var err error
		if items, err = a.loadItems(); err != nil {
			return source.FetchResult[int, ManifestItem]{}, fmt.Errorf("failed to load staging items: %w", err)
		}
	}
	return window(items, cursor, count), nil
}

func window(items []ManifestItem, start, count int) source.FetchResult[int, ManifestItem] {
	page, next, more := source.SliceWindow(items, start, count)
	return source.FetchResult[int, ManifestItem]{Items: page, Next: next, HasMore: more}
}

// loadItems reads the manifest. Malformed lines and lines whose image is
// missing are skipped.
func (a *Adapter) loadItems() ([]ManifestItem, error) {
	stagingPath := filepath.Join(a.basePath, a.sourceID)
	manifestPath := filepath.Join(stagingPath, ManifestFileName)
	imagesPath := filepath.Join(stagingPath, ImagesDir)

	file, err := a.fs.Open(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest file not found: %s", manifestPath)
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	items := []ManifestItem{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item ManifestItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			continue
		}

		if item.Filename != "" {
			localPath := filepath.Join(imagesPath, item.Filename)
			if _, err := a.fs.Stat(localPath); err != nil {
				continue
			}
			item.localPath = localPath
		}

		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// Normalize converts a manifest line into a ContentItem. A staged image
// takes precedence over media_url and is referenced as a file:// URL.
func Normalize(m ManifestItem) (domain.ContentItem, error) {
	item := domain.ContentItem{
		Title:           m.Title,
		DescriptionHTML: m.DescriptionHTML,
		Mature:          m.Mature,
		Adult:           m.Adult,
		Tags:            append([]string(nil), m.Tags...),
		ViewURL:         m.ViewURL,
		MediaURL:        m.MediaURL,
		ThumbnailURL:    m.ThumbnailURL,
	}
	if m.localPath != "" {
		item.MediaURL = "file://" + filepath.ToSlash(m.localPath)
	}
	if m.PostedAt != "" {
		ts, err := time.Parse(time.RFC3339, m.PostedAt)
		if err != nil {
			return domain.ContentItem{}, fmt.Errorf("staging item %s: bad posted_at: %w", m.ID, err)
		}
		item.Timestamp = ts
	}
	if err := item.Validate(); err != nil {
		return domain.ContentItem{}, fmt.Errorf("staging item %s: %w", m.ID, err)
	}
	return item, nil
}

// ListStagingSources lists the staging sources under basePath.
// Parameters:
//   - fs: filesystem to scan.
//   - basePath: base path to the staging directory.
//
// Returns:
//   - []string: list of staging source IDs.
//   - error: non-nil if reading the directory fails.
func ListStagingSources(fs afero.Fs, basePath string) ([]string, error) {
	entries, err := afero.ReadDir(fs, basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var sources []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(basePath, entry.Name(), ManifestFileName)
		if _, err := fs.Stat(manifestPath); err == nil {
			sources = append(sources, entry.Name())
		}
	}
	return sources, nil
}
