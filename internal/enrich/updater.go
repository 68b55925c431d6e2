package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topper-enrich/internal/model"
	"github.com/sells-group/topper-enrich/internal/resilience"
	"github.com/sells-group/topper-enrich/internal/store"
)

// RecordWriter applies a single-record update.
type RecordWriter interface {
	UpdateTopper(ctx context.Context, id string, u store.Update) error
}

// Updater maps a record's pipeline outcome to exactly one store update.
// A write that fails with a transient error (connection reset, timeout) is
// reissued with the same values.
type Updater struct {
	w     RecordWriter
	now   func() time.Time
	retry resilience.RetryConfig
}

// NewUpdater creates an Updater writing through w.
func NewUpdater(w RecordWriter) *Updater {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("store", "update_topper")
	return &Updater{
		w:     w,
		now:   func() time.Time { return time.Now().UTC() },
		retry: retry,
	}
}

// GenerationFailed records a terminal generation error.
func (u *Updater) GenerationFailed(ctx context.Context, id string, genErr error) error {
	return u.apply(ctx, id, store.Update{Set: map[string]any{
		model.FieldEnriched:      false,
		model.FieldEnrichedError: genErr.Error(),
		model.FieldLastTriedAt:   u.now(),
	}})
}

// InterpretFailed records model output that could not be parsed.
func (u *Updater) InterpretFailed(ctx context.Context, id, raw string) error {
	return u.apply(ctx, id, store.Update{Set: map[string]any{
		model.FieldEnriched:      false,
		model.FieldEnrichedRaw:   raw,
		model.FieldEnrichedError: model.ErrCodeInvalidJSON,
		model.FieldLastTriedAt:   u.now(),
	}})
}

// ValidationFailed records parsed output that failed a content threshold.
func (u *Updater) ValidationFailed(ctx context.Context, id, raw, code string) error {
	return u.apply(ctx, id, store.Update{Set: map[string]any{
		model.FieldEnriched:      false,
		model.FieldEnrichedRaw:   raw,
		model.FieldEnrichedError: code,
		model.FieldLastTriedAt:   u.now(),
	}})
}

// Succeeded commits a validated enrichment and clears any previous error.
func (u *Updater) Succeeded(ctx context.Context, id, raw string, e model.Enrichment) error {
	now := u.now()
	return u.apply(ctx, id, store.Update{
		Set: map[string]any{
			model.FieldBio:         e.Bio,
			model.FieldStrategy:    e.Strategy,
			model.FieldInsights:    e.Insights,
			model.FieldEnriched:    true,
			model.FieldEnrichedAt:  now,
			model.FieldEnrichedRaw: raw,
			model.FieldLastTriedAt: now,
		},
		Unset: []string{model.FieldEnrichedError},
	})
}

func (u *Updater) apply(ctx context.Context, id string, upd store.Update) error {
	err := resilience.Do(ctx, u.retry, func(ctx context.Context) error {
		return u.w.UpdateTopper(ctx, id, upd)
	})
	if err != nil {
		return eris.Wrapf(err, "enrich: update topper %s", id)
	}
	return nil
}
