// Package enrich runs the per-record enrichment pipeline and the bounded
// concurrency batch over the pending backlog.
package enrich

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topper-enrich/internal/generate"
	"github.com/sells-group/topper-enrich/internal/interpret"
	"github.com/sells-group/topper-enrich/internal/model"
	"github.com/sells-group/topper-enrich/internal/prompt"
	"github.com/sells-group/topper-enrich/internal/validate"
)

// excerptRunes bounds the raw text logged on interpretation failure.
const excerptRunes = 300

// Outcome is the terminal state of one record attempt.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeGenerationFailed
	OutcomeInvalidJSON
	OutcomeValidationFailed
	OutcomeDryRun
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeGenerationFailed:
		return "generation_failed"
	case OutcomeInvalidJSON:
		return "invalid_json"
	case OutcomeValidationFailed:
		return "validation_failed"
	case OutcomeDryRun:
		return "dry_run"
	default:
		return "unknown"
	}
}

// Collector gathers evidence for a record.
type Collector interface {
	Collect(ctx context.Context, t model.Topper, log *zap.Logger) []model.Evidence
}

// Generator produces model text for a compiled prompt.
type Generator interface {
	Generate(ctx context.Context, p prompt.Prompt, log *zap.Logger) (*generate.Result, error)
}

// Enricher runs research, prompt compilation, generation, interpretation,
// validation, and the final record update for one topper.
type Enricher struct {
	collector Collector
	generator Generator
	updater   *Updater
	dryRun    bool
}

// NewEnricher creates an Enricher. With dryRun set, records are researched
// and prompts compiled but nothing is generated or written.
func NewEnricher(c Collector, g Generator, u *Updater, dryRun bool) *Enricher {
	return &Enricher{collector: c, generator: g, updater: u, dryRun: dryRun}
}

// Enrich processes t. Pipeline failures are persisted on the record and
// reported through the Outcome; the returned error is non-nil only when the
// store update fails or ctx is canceled.
func (e *Enricher) Enrich(ctx context.Context, t model.Topper, log *zap.Logger) (Outcome, error) {
	if log == nil {
		log = zap.L()
	}

	evidence := e.collector.Collect(ctx, t, log)
	p := prompt.Compile(t, evidence)

	if e.dryRun {
		log.Info("enrich: dry run",
			zap.Int("evidence", len(evidence)),
			zap.Int("prompt_chars", len(p.User)),
		)
		return OutcomeDryRun, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	res, err := e.generator.Generate(ctx, p, log)
	if err != nil {
		var term *generate.TerminalError
		if !errors.As(err, &term) {
			return 0, eris.Wrap(err, "enrich: generate")
		}
		log.Warn("enrich: generation failed", zap.Int("attempts", term.Attempts), zap.Error(err))
		return OutcomeGenerationFailed, e.updater.GenerationFailed(ctx, t.ID, err)
	}

	out := interpret.Interpret(res.Text)
	if !out.OK() {
		log.Warn("enrich: unparsable model output",
			zap.String("stage", "interpret"),
			zap.String("excerpt", interpret.Excerpt(res.Text, excerptRunes)),
		)
		return OutcomeInvalidJSON, e.updater.InterpretFailed(ctx, t.ID, res.Text)
	}

	enrichment, err := validate.Validate(out.Doc)
	if err != nil {
		var verr *validate.Error
		code := model.ErrCodeInvalidJSON
		if errors.As(err, &verr) {
			code = verr.Code
		}
		log.Warn("enrich: validation failed",
			zap.String("stage", "validate"),
			zap.String("parse_stage", out.Stage.String()),
			zap.String("code", code),
		)
		return OutcomeValidationFailed, e.updater.ValidationFailed(ctx, t.ID, res.Text, code)
	}

	if err := e.updater.Succeeded(ctx, t.ID, res.Text, enrichment); err != nil {
		return OutcomeSucceeded, err
	}
	log.Info("enrich: record enriched",
		zap.String("parse_stage", out.Stage.String()),
		zap.Int("insights", len(enrichment.Insights)),
		zap.Int("attempts", res.Attempts),
	)
	return OutcomeSucceeded, nil
}
