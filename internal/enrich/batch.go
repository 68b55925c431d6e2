package enrich

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/topper-enrich/internal/model"
)

// PendingLister selects records that still need enrichment.
type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]model.Topper, error)
}

// RecordEnricher processes a single record.
type RecordEnricher interface {
	Enrich(ctx context.Context, t model.Topper, log *zap.Logger) (Outcome, error)
}

// Summary reports the results of one batch run.
type Summary struct {
	RunID     string `json:"run_id"`
	Selected  int    `json:"selected"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Errored   int    `json:"errored"`
	Skipped   int    `json:"skipped"`
}

// Batch enriches the pending backlog with bounded concurrency.
type Batch struct {
	lister      PendingLister
	enricher    RecordEnricher
	limit       int
	concurrency int
}

// NewBatch creates a Batch. Concurrency below 1 is treated as 1.
func NewBatch(l PendingLister, e RecordEnricher, limit, concurrency int) *Batch {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batch{lister: l, enricher: e, limit: limit, concurrency: concurrency}
}

// Run selects up to limit pending records and enriches each exactly once.
// Per-record failures are absorbed; Run returns after every scheduled record
// has finished. Records not scheduled before ctx is canceled stay pending.
func (b *Batch) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.New().String()
	log := zap.L().With(zap.String("run_id", runID))

	toppers, err := b.lister.ListPending(ctx, b.limit)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: list pending")
	}

	sum := &Summary{RunID: runID, Selected: len(toppers)}
	if len(toppers) == 0 {
		log.Info("no pending toppers found")
		return sum, nil
	}

	log.Info("processing batch",
		zap.Int("toppers", len(toppers)),
		zap.Int("concurrency", b.concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	var succeeded, failed, errored, skipped atomic.Int64

	for _, t := range toppers {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rlog := log.With(zap.String("topper_id", t.ID))

			outcome, err := b.enricher.Enrich(gctx, t, rlog)
			if err != nil {
				errored.Add(1)
				rlog.Error("enrichment errored", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			switch outcome {
			case OutcomeSucceeded:
				succeeded.Add(1)
			case OutcomeDryRun:
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			rlog.Debug("record done", zap.Stringer("outcome", outcome))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "enrich: batch processing")
	}

	sum.Succeeded = int(succeeded.Load())
	sum.Failed = int(failed.Load())
	sum.Errored = int(errored.Load())
	sum.Skipped = int(skipped.Load())

	log.Info("batch complete",
		zap.Int("selected", sum.Selected),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("errored", sum.Errored),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}
