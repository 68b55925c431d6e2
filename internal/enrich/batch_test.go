package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/topper-enrich/internal/model"
)

// trackingEnricher records calls per id and the peak number in flight.
type trackingEnricher struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	calls    map[string]int
	outcomes map[string]Outcome
	errs     map[string]error
	hold     time.Duration
}

func newTrackingEnricher() *trackingEnricher {
	return &trackingEnricher{
		calls:    make(map[string]int),
		outcomes: make(map[string]Outcome),
		errs:     make(map[string]error),
		hold:     20 * time.Millisecond,
	}
}

func (e *trackingEnricher) Enrich(ctx context.Context, t model.Topper, _ *zap.Logger) (Outcome, error) {
	e.mu.Lock()
	e.calls[t.ID]++
	e.inFlight++
	if e.inFlight > e.peak {
		e.peak = e.inFlight
	}
	e.mu.Unlock()

	time.Sleep(e.hold)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight--
	return e.outcomes[t.ID], e.errs[t.ID]
}

func pendingToppers(n int) []model.Topper {
	out := make([]model.Topper, n)
	for i := range out {
		out[i] = model.Topper{ID: fmt.Sprintf("t%d", i+1), FirstName: "Topper", Rank: model.IntPtr(i + 1)}
	}
	return out
}

func TestBatchRun_BoundedConcurrency(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListPending", mock.Anything, 50).Return(pendingToppers(5), nil)
	enricher := newTrackingEnricher()

	sum, err := NewBatch(lister, enricher, 50, 2).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Selected)
	assert.Equal(t, 5, sum.Succeeded)
	assert.NotEmpty(t, sum.RunID)
	assert.LessOrEqual(t, enricher.peak, 2)
	require.Len(t, enricher.calls, 5)
	for id, n := range enricher.calls {
		assert.Equal(t, 1, n, "topper %s processed more than once", id)
	}
}

func TestBatchRun_EmptyBacklog(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListPending", mock.Anything, 10).Return([]model.Topper{}, nil)
	writer := new(mockWriter)
	collector := new(mockCollector)
	generator := new(mockGenerator)
	e := NewEnricher(collector, generator, newTestUpdater(writer), false)

	sum, err := NewBatch(lister, e, 10, 4).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Selected)
	writer.AssertNotCalled(t, "UpdateTopper", mock.Anything, mock.Anything, mock.Anything)
	collector.AssertNotCalled(t, "Collect", mock.Anything, mock.Anything, mock.Anything)
}

func TestBatchRun_ListError(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListPending", mock.Anything, 5).Return(nil, errors.New("db down"))

	_, err := NewBatch(lister, newTrackingEnricher(), 5, 1).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list pending")
}

func TestBatchRun_SummaryCounts(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListPending", mock.Anything, 0).Return(pendingToppers(5), nil)
	enricher := newTrackingEnricher()
	enricher.hold = 0
	enricher.outcomes["t2"] = OutcomeInvalidJSON
	enricher.outcomes["t3"] = OutcomeValidationFailed
	enricher.outcomes["t4"] = OutcomeGenerationFailed
	enricher.errs["t5"] = errors.New("update failed")

	sum, err := NewBatch(lister, enricher, 0, 0).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 3, sum.Failed)
	assert.Equal(t, 1, sum.Errored)
	assert.Equal(t, 0, sum.Skipped)
}

func TestBatchRun_DryRunCountsSkipped(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListPending", mock.Anything, 3).Return(pendingToppers(3), nil)
	enricher := newTrackingEnricher()
	enricher.hold = 0
	for _, tp := range pendingToppers(3) {
		enricher.outcomes[tp.ID] = OutcomeDryRun
	}

	sum, err := NewBatch(lister, enricher, 3, 3).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Skipped)
	assert.Equal(t, 0, sum.Succeeded)
}

func TestBatchRun_CanceledBeforeScheduling(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListPending", mock.Anything, 5).Return(pendingToppers(5), nil)
	enricher := newTrackingEnricher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := NewBatch(lister, enricher, 5, 1).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Selected)
	assert.Empty(t, enricher.calls)
}

func TestNewBatch_ClampsConcurrency(t *testing.T) {
	b := NewBatch(new(mockLister), newTrackingEnricher(), 10, -3)
	assert.Equal(t, 1, b.concurrency)
}
