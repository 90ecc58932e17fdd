package paging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/artsync/internal/source"
)

func TestFetchAll_ConcatenatesPagesInOrder(t *testing.T) {
	a := newScripted(
		source.FetchResult[int, string]{Items: []string{"A", "B"}, Next: 1, HasMore: true},
		source.FetchResult[int, string]{Items: []string{"C", "D"}, Next: 2, HasMore: true},
		source.FetchResult[int, string]{Items: []string{}, HasMore: false},
	)
	a.suggested = 2
	e := newTestEngine(t, a)

	res, err := NewAggregator[string](e, nil).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []string{"A", "B", "C", "D"}, res.Items)
	assert.Equal(t, 3, res.Rounds)
	assert.True(t, e.Exhausted())
}

func TestFetchAll_TerminatesOnEmptyPagesWithMore(t *testing.T) {
	a := newScripted(source.FetchResult[int, string]{Items: []string{}, Next: 0, HasMore: true})
	e := newTestEngine(t, a)

	res, err := NewAggregator[string](e, nil).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Empty(t, res.Items)
	assert.Equal(t, 1, res.Rounds)
}

func TestFetchAll_MaxEmptyRounds(t *testing.T) {
	a := newScripted(
		source.FetchResult[int, string]{Items: []string{}, Next: 1, HasMore: true},
		source.FetchResult[int, string]{Items: []string{"A"}, Next: 2, HasMore: true},
		source.FetchResult[int, string]{Items: []string{}, Next: 3, HasMore: true},
		source.FetchResult[int, string]{Items: []string{}, Next: 4, HasMore: true},
	)
	e := newTestEngine(t, a)

	res, err := NewAggregator[string](e, &BulkOptions{MaxEmptyRounds: 2}).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.Items)
	assert.Equal(t, 4, res.Rounds)
}

func TestFetchAll_SixtyItemScenario(t *testing.T) {
	a := newScripted(source.FetchResult[int, string]{Items: items("p1-", 50), Next: 1, HasMore: true})
	a.pages[1] = source.FetchResult[int, string]{Items: items("p2-", 10), Next: 2, HasMore: false}
	e := newTestEngine(t, a)
	require.Equal(t, 50, e.BatchSize())

	res, err := NewAggregator[string](e, nil).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Items, 60)
	assert.True(t, e.Exhausted())
	assert.Equal(t, []call{{op: "start", cursor: 0, count: 50}, {op: "more", cursor: 1, count: 50}}, a.recorded())
}

func TestFetchUpTo_RequestsOnlyRemaining(t *testing.T) {
	a := newScripted(
		source.FetchResult[int, string]{Items: items("a", 4), Next: 1, HasMore: true},
		source.FetchResult[int, string]{Items: items("b", 2), Next: 2, HasMore: true},
	)
	a.suggested = 4
	e := newTestEngine(t, a)

	var progress []int
	agg := NewAggregator[string](e, &BulkOptions{OnPage: func(fetched, total int, more bool) {
		progress = append(progress, total)
	}})
	res, err := agg.FetchUpTo(context.Background(), 6)
	require.NoError(t, err)
	assert.Len(t, res.Items, 6)
	assert.Equal(t, []int{4, 6}, progress)
	assert.Equal(t, 2, a.recorded()[1].count)
	assert.False(t, e.Exhausted(), "stopping at the limit must not mark the traversal exhausted")
}

func TestFetchUpTo_NonPositiveLimit(t *testing.T) {
	a := newScripted()
	e := newTestEngine(t, a)

	res, err := NewAggregator[string](e, nil).FetchUpTo(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Empty(t, res.Items)
	assert.Empty(t, a.recorded())
}

func TestFetchAll_FailureIsAllOrNothingByDefault(t *testing.T) {
	a := newScripted(source.FetchResult[int, string]{Items: []string{"A", "B"}, Next: 1, HasMore: true})
	a.failures[1] = errors.New("rate limited")
	e := newTestEngine(t, a)

	res, err := NewAggregator[string](e, nil).FetchAll(context.Background())
	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "rate limited", adapterErr.Reason())
	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, res.Items)
	assert.Equal(t, []string{"A", "B"}, res.Partial)
}

func TestFetchAll_ReturnPartialOnError(t *testing.T) {
	a := newScripted(source.FetchResult[int, string]{Items: []string{"A", "B"}, Next: 1, HasMore: true})
	a.failures[1] = errors.New("rate limited")
	e := newTestEngine(t, a)

	res, err := NewAggregator[string](e, &BulkOptions{ReturnPartialOnError: true}).FetchAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, []string{"A", "B"}, res.Items)
}

func TestFetchAll_CancelledIsNotAnError(t *testing.T) {
	a := newScripted(source.FetchResult[int, string]{Items: []string{"A"}, Next: 1, HasMore: true})
	e := newTestEngine(t, a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewAggregator[string](e, nil).FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.True(t, IsCancelled(res.Err))
	_, started := e.Cursor()
	assert.False(t, started)
}

func TestFetchAll_StopsImmediatelyWhenExhausted(t *testing.T) {
	a := newScripted(source.FetchResult[int, string]{Items: []string{"A"}, HasMore: false})
	e := newTestEngine(t, a)
	agg := NewAggregator[string](e, nil)

	_, err := agg.FetchAll(context.Background())
	require.NoError(t, err)

	res, err := agg.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, 0, res.Rounds)
	assert.Len(t, a.recorded(), 1)
}
