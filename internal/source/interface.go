package source

import "context"

// FetchResult is one raw page returned by an adapter.
// When HasMore is false, Next is meaningless and must not be resumed from.
type FetchResult[C comparable, R any] struct {
	Items   []R
	Next    C
	HasMore bool
}

// Adapter is the per-platform fetch contract. C is the adapter's resume
// cursor type and R is the platform item type.
//
// count is advisory: an adapter may return fewer items than requested but
// never more. Two calls with the same cursor and count must be safe to retry.
type Adapter[C comparable, R any] interface {
	// SuggestedBatchSize returns the preferred page size.
	SuggestedBatchSize() int

	// MinBatchSize returns the smallest accepted page size.
	MinBatchSize() int

	// MaxBatchSize returns the largest accepted page size.
	MaxBatchSize() int

	// Start begins a traversal from the first item.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - count: maximum number of items to return.
	// Returns:
	//   - FetchResult: first page and its resume cursor.
	//   - error: non-nil if the platform call fails.
	Start(ctx context.Context, count int) (FetchResult[C, R], error)

	// More resumes a traversal from cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: cursor returned by the previous page.
	//   - count: maximum number of items to return.
	// Returns:
	//   - FetchResult: next page and its resume cursor.
	//   - error: non-nil if the platform call fails.
	More(ctx context.Context, cursor C, count int) (FetchResult[C, R], error)

	// WhoAmI returns the account name the adapter is acting as. Display only.
	WhoAmI(ctx context.Context) (string, error)
}

// Named is implemented by adapters that have a human-readable name.
type Named interface {
	Name() string
}

// Filterer is implemented by adapters whose platform filters results upstream
// (for example hiding mature content) without telling the client.
type Filterer interface {
	ResultsFiltered() bool
}

// SliceWindow pages an in-memory slice by index. It returns the items in
// [start, start+limit), the next index, and whether items remain.
func SliceWindow[R any](all []R, start, limit int) ([]R, int, bool) {
	if start < 0 {
		start = 0
	}
	if start >= len(all) {
		return []R{}, len(all), false
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], end, end < len(all)
}
