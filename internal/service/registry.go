package service

import (
	"errors"
	"fmt"

	"github.com/mmcdole/gofeed"
	"github.com/spf13/afero"

	"github.com/timmy/artsync/internal/config"
	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/paging"
	"github.com/timmy/artsync/internal/source"
	"github.com/timmy/artsync/internal/source/archive"
	"github.com/timmy/artsync/internal/source/feed"
	"github.com/timmy/artsync/internal/source/furrynetwork"
	"github.com/timmy/artsync/internal/source/staging"
	"github.com/timmy/artsync/internal/source/weasyl"
)

// ErrUnknownSource is returned for a source ID that is not configured.
var ErrUnknownSource = errors.New("unknown source")

// PagerFactory builds a fresh traversal over one source.
type PagerFactory func() (paging.Pager[domain.Item], error)

// SourceEntry is one configured source. Adapters are built once and shared;
// every browser or export run gets its own engine from NewPager.
type SourceEntry struct {
	ID       string
	Type     string
	newPager PagerFactory
}

// NewPager starts a new traversal in the start state.
func (e *SourceEntry) NewPager() (paging.Pager[domain.Item], error) {
	return e.newPager()
}

// SourceRegistry holds the configured sources in configuration order.
type SourceRegistry struct {
	entries []*SourceEntry
	byID    map[string]*SourceEntry
}

// RegistryDeps carries what adapters need beyond their own configuration.
type RegistryDeps struct {
	Archive archive.Lister // required by archive sources
	FS      afero.Fs       // staging filesystem; nil means the OS filesystem
}

// NewSourceRegistry builds adapters for every configured source.
// Parameters:
//   - sources: source configuration entries.
//   - deps: shared dependencies.
//
// Returns:
//   - *SourceRegistry: registry with one entry per source.
//   - error: non-nil if a source cannot be built or its batch size is out of
//     the adapter's bounds.
func NewSourceRegistry(sources []config.SourceConfig, deps RegistryDeps) (*SourceRegistry, error) {
	r := &SourceRegistry{byID: make(map[string]*SourceEntry, len(sources))}
	for _, sc := range sources {
		factory, err := buildFactory(sc, deps)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.ID, err)
		}
		if _, err := factory(); err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.ID, err)
		}
		entry := &SourceEntry{ID: sc.ID, Type: sc.Type, newPager: factory}
		r.entries = append(r.entries, entry)
		r.byID[sc.ID] = entry
	}
	return r, nil
}

// Register adds a source backed by factory. Used for sources built outside
// the configuration.
func (r *SourceRegistry) Register(id, typ string, factory PagerFactory) error {
	if _, dup := r.byID[id]; dup {
		return fmt.Errorf("duplicate source id %q", id)
	}
	entry := &SourceEntry{ID: id, Type: typ, newPager: factory}
	r.entries = append(r.entries, entry)
	r.byID[id] = entry
	return nil
}

// Get returns the entry for id.
func (r *SourceRegistry) Get(id string) (*SourceEntry, error) {
	entry, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return entry, nil
}

// Entries returns the sources in configuration order.
func (r *SourceRegistry) Entries() []*SourceEntry {
	return append([]*SourceEntry(nil), r.entries...)
}

func buildFactory(sc config.SourceConfig, deps RegistryDeps) (PagerFactory, error) {
	switch sc.Type {
	case config.SourceWeasyl:
		a := weasyl.NewAdapter(&weasyl.Config{
			BaseURL:       sc.BaseURL,
			APIKey:        sc.APIKey,
			Username:      sc.Username,
			RatePerSecond: sc.RatePerSecond,
		})
		return bind[int, weasyl.Submission](a, asItem(weasyl.Normalize), sc), nil

	case config.SourceFurryNetwork:
		a := furrynetwork.NewJournalAdapter(&furrynetwork.Config{
			BaseURL:       sc.BaseURL,
			AccessToken:   sc.APIKey,
			Character:     sc.Character,
			Status:        sc.Status,
			RatePerSecond: sc.RatePerSecond,
		})
		return bind[furrynetwork.Cursor, furrynetwork.Journal](a, asItem(furrynetwork.Normalize), sc), nil

	case config.SourceFeed:
		a := feed.NewAdapter(&feed.Config{URL: sc.URL, Title: sc.Name, RatePerSecond: sc.RatePerSecond})
		return bind[feed.Cursor, *gofeed.Item](a, asItem(feed.Normalize), sc), nil

	case config.SourceStaging:
		a := staging.NewAdapter(deps.FS, sc.Path, sc.ID)
		return bind[int, staging.ManifestItem](a, asItem(staging.Normalize), sc), nil

	case config.SourceArchive:
		if deps.Archive == nil {
			return nil, errors.New("archive source needs a database")
		}
		a := archive.NewAdapter(deps.Archive, sc.ArchiveOf, sc.Name)
		return bind[uint64, domain.ArchivedItem](a, archive.Normalize, sc), nil

	default:
		return nil, fmt.Errorf("unknown source type %q", sc.Type)
	}
}

// bind returns a factory of engines over one shared adapter.
func bind[C comparable, R any](a source.Adapter[C, R], normalize paging.Normalizer[R, domain.Item], sc config.SourceConfig) PagerFactory {
	return func() (paging.Pager[domain.Item], error) {
		var opts []paging.Option
		if sc.Name != "" {
			opts = append(opts, paging.WithName(sc.Name))
		}
		e, err := paging.NewEngine(a, normalize, opts...)
		if err != nil {
			return nil, err
		}
		if sc.BatchSize > 0 {
			if err := e.SetBatchSize(sc.BatchSize); err != nil {
				return nil, err
			}
		}
		return e, nil
	}
}

// asItem widens a typed normalizer to the Item interface.
func asItem[R any, T domain.Item](normalize func(R) (T, error)) paging.Normalizer[R, domain.Item] {
	return func(raw R) (domain.Item, error) {
		item, err := normalize(raw)
		if err != nil {
			return nil, err
		}
		return item, nil
	}
}
