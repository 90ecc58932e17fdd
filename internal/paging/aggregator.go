package paging

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/timmy/artsync/internal/logger"
)

// Status is the terminal outcome of a bulk fetch.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// BulkOptions tunes an Aggregator.
type BulkOptions struct {
	// ReturnPartialOnError keeps already fetched items in Items when a round
	// fails or is cancelled. Otherwise Items is empty and they are only
	// available through Partial.
	ReturnPartialOnError bool

	// MaxEmptyRounds is how many consecutive rounds may return nothing while
	// still reporting more data before the traversal is treated as exhausted.
	// Values below 1 mean 1.
	MaxEmptyRounds int

	// OnPage is called after every successful round with the page and the
	// running total of collected items.
	OnPage func(fetched, total int, more bool)
}

// BulkResult is the outcome of FetchUpTo or FetchAll.
type BulkResult[T any] struct {
	Items   []T    // collected items in fetch order
	Partial []T    // items gathered before a failure or cancellation
	Status  Status // completed, cancelled or failed
	Err     error  // cause when Status is not completed
	Rounds  int    // number of FetchNext calls made
	Dropped int    // raw items rejected by the normalizer
}

// Aggregator drives a Pager across as many pages as needed to collect a
// number of items, or all of them. Items are concatenated in fetch order and
// never sorted or deduplicated.
type Aggregator[T any] struct {
	pager   Pager[T]
	opts    BulkOptions
	running atomic.Bool
}

// NewAggregator creates an aggregator over pager.
// Parameters:
//   - pager: engine to drive; the aggregator does not reset it.
//   - opts: bulk options; nil uses defaults.
//
// Returns:
//   - *Aggregator: aggregator bound to pager.
func NewAggregator[T any](pager Pager[T], opts *BulkOptions) *Aggregator[T] {
	a := &Aggregator[T]{pager: pager}
	if opts != nil {
		a.opts = *opts
	}
	if a.opts.MaxEmptyRounds < 1 {
		a.opts.MaxEmptyRounds = 1
	}
	return a
}

// FetchUpTo collects up to n items, continuing from wherever the engine's
// traversal currently is.
//
// A failed round aborts the run: the returned error is the *AdapterError and
// the result carries StatusFailed. Cancellation is reported as
// StatusCancelled with a nil error.
func (a *Aggregator[T]) FetchUpTo(ctx context.Context, n int) (*BulkResult[T], error) {
	return a.run(ctx, n, false)
}

// FetchAll collects every remaining item of the traversal.
func (a *Aggregator[T]) FetchAll(ctx context.Context) (*BulkResult[T], error) {
	return a.run(ctx, 0, true)
}

func (a *Aggregator[T]) run(ctx context.Context, limit int, unbounded bool) (*BulkResult[T], error) {
	if !a.running.CompareAndSwap(false, true) {
		return &BulkResult[T]{Status: StatusFailed, Err: ErrConcurrentFetch}, ErrConcurrentFetch
	}
	defer a.running.Store(false)

	start := time.Now()
	res := &BulkResult[T]{Items: []T{}}
	remaining := limit
	emptyRounds := 0

	for unbounded || remaining > 0 {
		if a.pager.Exhausted() {
			break
		}

		count := a.pager.BatchSize()
		if !unbounded && remaining < count {
			count = remaining
		}

		page, err := a.pager.FetchNext(ctx, count)
		res.Rounds++
		if err != nil {
			return a.abort(ctx, res, err)
		}

		res.Items = append(res.Items, page.Items...)
		res.Dropped += page.Dropped
		remaining -= len(page.Items)

		if a.opts.OnPage != nil {
			a.opts.OnPage(len(page.Items), len(res.Items), page.More)
		}

		if !page.More {
			break
		}
		if len(page.Items)+page.Dropped == 0 {
			emptyRounds++
			if emptyRounds >= a.opts.MaxEmptyRounds {
				logger.FromContext(ctx).WithFields(logger.Fields{
					logger.FieldSource: a.pager.Name(),
					"rounds":           res.Rounds,
				}).Warn("Source keeps reporting more data without returning any, stopping")
				break
			}
		} else {
			emptyRounds = 0
		}
	}

	res.Status = StatusCompleted
	logger.With(logger.Fields{logger.FieldSource: a.pager.Name()}).
		WithCount(len(res.Items)).
		WithDuration(time.Since(start).Milliseconds()).
		WithStatus(string(res.Status)).
		Info(ctx, "Bulk fetch finished after %d rounds", res.Rounds)
	return res, nil
}

func (a *Aggregator[T]) abort(ctx context.Context, res *BulkResult[T], err error) (*BulkResult[T], error) {
	res.Partial = res.Items
	if !a.opts.ReturnPartialOnError {
		res.Items = []T{}
	}
	res.Err = err

	entry := logger.With(logger.Fields{
		logger.FieldSource: a.pager.Name(),
		logger.FieldCount:  len(res.Partial),
	})

	if IsCancelled(err) {
		res.Status = StatusCancelled
		entry.WithStatus(string(res.Status)).Info(ctx, "Bulk fetch cancelled after %d rounds", res.Rounds)
		return res, nil
	}

	res.Status = StatusFailed
	entry.WithStatus(string(res.Status)).Warn(ctx, "Bulk fetch aborted: %v", err)
	return res, err
}
