package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topper-enrich/internal/config"
	"github.com/sells-group/topper-enrich/internal/model"
)

// ErrNotFound is returned when an update targets a record that does not exist.
var ErrNotFound = eris.New("store: topper not found")

// Update describes a single-record mutation. Fields in Set are written and
// fields in Unset are cleared. Keys are canonical field names from model.
type Update struct {
	Set   map[string]any
	Unset []string
}

// Stats summarises the enrichment state of the collection.
type Stats struct {
	Total      int `json:"total"`
	Enriched   int `json:"enriched"`
	Failed     int `json:"failed"`
	NeverTried int `json:"never_tried"`
}

// Store defines the persistence interface for topper records.
type Store interface {
	// ListPending returns records that are not yet enriched, ordered by id.
	// A limit <= 0 returns every pending record.
	ListPending(ctx context.Context, limit int) ([]model.Topper, error)
	// UpdateTopper applies u to the record with the given id atomically.
	UpdateTopper(ctx context.Context, id string, u Update) error

	InsertToppers(ctx context.Context, toppers []model.Topper) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	// ResetEnrichment clears enrichment state. With errorsOnly set only
	// records carrying an enrichedError are reset.
	ResetEnrichment(ctx context.Context, errorsOnly bool) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL, cfg.Table)
	case "", "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Database, cfg.Table, &PoolConfig{MaxConns: cfg.MaxConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

var fieldColumns = map[string]string{
	model.FieldEnriched:      "enriched",
	model.FieldBio:           "bio",
	model.FieldStrategy:      "strategy",
	model.FieldInsights:      "insights",
	model.FieldEnrichedAt:    "enriched_at",
	model.FieldEnrichedRaw:   "enriched_raw",
	model.FieldEnrichedError: "enriched_error",
	model.FieldLastTriedAt:   "last_tried_at",
}

// topperColumns is the column order used by selects and bulk inserts.
var topperColumns = []string{
	"id", "first_name", "last_name", "rank", "year", "optional_subject", "slug",
	"enriched", "bio", "strategy", "insights",
	"enriched_at", "enriched_raw", "enriched_error", "last_tried_at",
}

// assignment is one resolved column write. A nil value writes NULL.
type assignment struct {
	column string
	value  any
}

// plan validates u and resolves it into column assignments ordered by
// model.EnrichmentFields, so the generated SQL is stable for a given update.
func (u Update) plan() ([]assignment, error) {
	if len(u.Set) == 0 && len(u.Unset) == 0 {
		return nil, eris.New("store: empty update")
	}

	unset := make(map[string]bool, len(u.Unset))
	for _, f := range u.Unset {
		if _, ok := fieldColumns[f]; !ok {
			return nil, eris.Errorf("store: unknown field %q", f)
		}
		if _, ok := u.Set[f]; ok {
			return nil, eris.Errorf("store: field %q both set and unset", f)
		}
		unset[f] = true
	}
	for f := range u.Set {
		if _, ok := fieldColumns[f]; !ok {
			return nil, eris.Errorf("store: unknown field %q", f)
		}
	}

	out := make([]assignment, 0, len(u.Set)+len(unset))
	for _, f := range model.EnrichmentFields {
		if unset[f] {
			out = append(out, assignment{column: fieldColumns[f]})
			continue
		}
		v, ok := u.Set[f]
		if !ok {
			continue
		}
		if err := checkType(f, v); err != nil {
			return nil, err
		}
		out = append(out, assignment{column: fieldColumns[f], value: v})
	}
	return out, nil
}

func checkType(field string, v any) error {
	var ok bool
	switch field {
	case model.FieldEnriched:
		_, ok = v.(bool)
	case model.FieldInsights:
		_, ok = v.([]string)
	case model.FieldEnrichedAt, model.FieldLastTriedAt:
		_, ok = v.(time.Time)
	default:
		_, ok = v.(string)
	}
	if !ok {
		return eris.Errorf("store: field %q has unsupported type %T", field, v)
	}
	return nil
}

func encodeInsights(insights []string) ([]byte, error) {
	if insights == nil {
		insights = []string{}
	}
	b, err := json.Marshal(insights)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal insights")
	}
	return b, nil
}

func decodeInsights(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal insights")
	}
	return out, nil
}
