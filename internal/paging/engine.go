package paging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/artsync/internal/logger"
	"github.com/timmy/artsync/internal/source"
)

// Normalizer maps one platform item to its normalized form.
// Items it rejects are dropped from the page.
type Normalizer[R, T any] func(R) (T, error)

// Page is one normalized page.
type Page[T any] struct {
	Items   []T
	More    bool
	Dropped int // raw items rejected by the normalizer
}

// Pager is the cursor-agnostic view of an Engine, so callers can hold engines
// over different platforms side by side.
type Pager[T any] interface {
	Name() string
	FetchNext(ctx context.Context, count int) (Page[T], error)
	SetBatchSize(n int) error
	BatchSize() int
	MinBatchSize() int
	MaxBatchSize() int
	Reset()
	Exhausted() bool
	ResultsFiltered() bool
	WhoAmI(ctx context.Context) (string, error)
}

// Engine turns an adapter's Start/More pair into a single FetchNext and owns
// the traversal state: batch size, last cursor and exhaustion.
//
// One traversal is single-flight. A second FetchNext while one is pending
// fails fast with ErrConcurrentFetch instead of queuing.
type Engine[C comparable, R, T any] struct {
	adapter   source.Adapter[C, R]
	normalize Normalizer[R, T]
	name      string
	lo, hi    int

	inFlight atomic.Bool

	mu         sync.Mutex
	batchSize  int
	cursor     C
	started    bool
	exhausted  bool
	generation uint64
}

// Option customizes an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	name string
}

// WithName overrides the engine name used in logs and errors.
func WithName(name string) Option {
	return func(o *engineOptions) { o.name = name }
}

// NewEngine binds an engine to one adapter.
// Parameters:
//   - adapter: platform adapter; shared, not owned.
//   - normalize: converter from platform items to normalized items.
//   - opts: optional settings.
//
// Returns:
//   - *Engine: engine in the start state with the suggested batch size
//     clamped into the adapter's bounds.
//   - error: ErrInvalidConfiguration if the adapter's bounds are unusable.
func NewEngine[C comparable, R, T any](adapter source.Adapter[C, R], normalize Normalizer[R, T], opts ...Option) (*Engine[C, R, T], error) {
	if adapter == nil || normalize == nil {
		return nil, fmt.Errorf("%w: adapter and normalizer are required", ErrInvalidConfiguration)
	}

	o := engineOptions{}
	if named, ok := adapter.(source.Named); ok {
		o.name = named.Name()
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = "source"
	}

	lo, hi := adapter.MinBatchSize(), adapter.MaxBatchSize()
	if lo < 1 || hi < lo {
		return nil, fmt.Errorf("%w: %s declares batch bounds [%d,%d]", ErrInvalidConfiguration, o.name, lo, hi)
	}

	return &Engine[C, R, T]{
		adapter:   adapter,
		normalize: normalize,
		name:      o.name,
		lo:        lo,
		hi:        hi,
		batchSize: clamp(adapter.SuggestedBatchSize(), lo, hi),
	}, nil
}

// Name returns the engine name.
func (e *Engine[C, R, T]) Name() string { return e.name }

// MinBatchSize returns the adapter's lower batch bound.
func (e *Engine[C, R, T]) MinBatchSize() int { return e.lo }

// MaxBatchSize returns the adapter's upper batch bound.
func (e *Engine[C, R, T]) MaxBatchSize() int { return e.hi }

// BatchSize returns the current batch size.
func (e *Engine[C, R, T]) BatchSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batchSize
}

// SetBatchSize changes the batch size used by later fetches.
// Returns ErrInvalidConfiguration, leaving the old size, if n is out of bounds.
func (e *Engine[C, R, T]) SetBatchSize(n int) error {
	if n < e.lo || n > e.hi {
		return fmt.Errorf("%w: batch size %d outside [%d,%d] for %s", ErrInvalidConfiguration, n, e.lo, e.hi, e.name)
	}
	e.mu.Lock()
	e.batchSize = n
	e.mu.Unlock()
	return nil
}

// Exhausted reports whether the traversal has seen its last page.
func (e *Engine[C, R, T]) Exhausted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exhausted
}

// Cursor returns the cursor the next fetch resumes from; ok is false in the
// start state.
func (e *Engine[C, R, T]) Cursor() (cursor C, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor, e.started
}

// ResultsFiltered reports whether the platform may hide items upstream.
// Informational only.
func (e *Engine[C, R, T]) ResultsFiltered() bool {
	if f, ok := e.adapter.(source.Filterer); ok {
		return f.ResultsFiltered()
	}
	return false
}

// WhoAmI returns the adapter's account name.
func (e *Engine[C, R, T]) WhoAmI(ctx context.Context) (string, error) {
	who, err := e.adapter.WhoAmI(ctx)
	if err != nil {
		if ctx.Err() != nil || isContextError(err) {
			return "", cancelled(err)
		}
		return "", &AdapterError{Source: e.name, Op: "whoami", Err: err}
	}
	return who, nil
}

// Reset returns the engine to the start state. The batch size is kept.
// A fetch still in flight when Reset runs does not commit its cursor.
func (e *Engine[C, R, T]) Reset() {
	e.mu.Lock()
	var zero C
	e.cursor = zero
	e.started = false
	e.exhausted = false
	e.generation++
	e.mu.Unlock()
}

// FetchNext fetches the next page of up to count items; count <= 0 uses the
// current batch size.
//
// State advances only when the adapter call succeeds. On failure the error is
// an *AdapterError; on cancellation it matches ErrCancelled. In both cases the
// cursor and exhaustion flag are untouched, so the same call can be retried.
// Once exhausted, FetchNext keeps returning an empty page with More false.
func (e *Engine[C, R, T]) FetchNext(ctx context.Context, count int) (Page[T], error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return Page[T]{}, ErrConcurrentFetch
	}
	defer e.inFlight.Store(false)

	e.mu.Lock()
	if count <= 0 {
		count = e.batchSize
	}
	exhausted, started, cursor, generation := e.exhausted, e.started, e.cursor, e.generation
	e.mu.Unlock()

	if count > e.hi {
		return Page[T]{}, fmt.Errorf("%w: requested %d items, %s allows at most %d", ErrInvalidConfiguration, count, e.name, e.hi)
	}
	if exhausted {
		return Page[T]{Items: []T{}}, nil
	}
	if err := ctx.Err(); err != nil {
		return Page[T]{}, cancelled(err)
	}

	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldSource:    e.name,
		logger.FieldBatchSize: count,
	})

	start := time.Now()
	op := "start"
	var (
		res source.FetchResult[C, R]
		err error
	)
	if started {
		op = "more"
		log = log.WithField(logger.FieldCursor, cursor)
		res, err = e.adapter.More(ctx, cursor, count)
	} else {
		res, err = e.adapter.Start(ctx, count)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.CtxDebug(ctx, "Fetch from %s cancelled, discarding page", e.name)
		return Page[T]{}, cancelled(ctxErr)
	}
	if err != nil {
		if isContextError(err) {
			return Page[T]{}, cancelled(err)
		}
		log.WithError(err).Warn("Source fetch failed")
		return Page[T]{}, &AdapterError{Source: e.name, Op: op, Err: err}
	}
	if len(res.Items) > count {
		log.WithField(logger.FieldCount, len(res.Items)).Warn("Source returned an oversized page")
		return Page[T]{}, &AdapterError{
			Source: e.name,
			Op:     op,
			Err:    fmt.Errorf("%w: asked for %d, got %d", ErrPageOverflow, count, len(res.Items)),
		}
	}

	page := Page[T]{Items: make([]T, 0, len(res.Items)), More: res.HasMore}
	for _, raw := range res.Items {
		item, nerr := e.normalize(raw)
		if nerr != nil {
			page.Dropped++
			log.WithError(nerr).Debug("Dropping item rejected by normalizer")
			continue
		}
		page.Items = append(page.Items, item)
	}

	e.mu.Lock()
	if e.generation == generation {
		if res.HasMore {
			e.cursor = res.Next
			e.started = true
		} else {
			e.exhausted = true
		}
	}
	e.mu.Unlock()

	log.WithFields(logger.Fields{
		logger.FieldCount:      len(page.Items),
		logger.FieldMore:       page.More,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		"dropped":              page.Dropped,
	}).Debug("Fetched page")

	return page, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
