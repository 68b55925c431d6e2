package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topper-enrich/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath, "toppers")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seed(t *testing.T, st *SQLiteStore, toppers ...model.Topper) {
	t.Helper()
	n, err := st.InsertToppers(context.Background(), toppers)
	require.NoError(t, err)
	require.Equal(t, int64(len(toppers)), n)
}

func TestSQLite_ListPending(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seed(t, st,
		model.Topper{ID: "c", FirstName: "Anudeep", Rank: model.IntPtr(1), Year: model.IntPtr(2017)},
		model.Topper{ID: "a", FirstName: "Ishita", Enriched: model.BoolPtr(false)},
		model.Topper{ID: "b", FirstName: "Tina", Enriched: model.BoolPtr(true)},
		model.Topper{ID: "d", FirstName: "Shruti"},
	)

	got, err := st.ListPending(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, tp := range got {
		ids[i] = tp.ID
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids)
	assert.Equal(t, 2017, *got[1].Year)

	got, err = st.ListPending(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLite_UpdateTopper_SuccessRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seed(t, st, model.Topper{ID: "t1", FirstName: "Ishita", Enriched: model.BoolPtr(false)})

	errMsg := "invalid_json"
	require.NoError(t, st.UpdateTopper(ctx, "t1", Update{Set: map[string]any{
		model.FieldEnriched:      false,
		model.FieldEnrichedError: errMsg,
		model.FieldLastTriedAt:   time.Now().UTC(),
	}}))

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpdateTopper(ctx, "t1", Update{
		Set: map[string]any{
			model.FieldEnriched:    true,
			model.FieldBio:         "A short bio.",
			model.FieldStrategy:    "## Strategy",
			model.FieldInsights:    []string{"one", "two", "three"},
			model.FieldEnrichedAt:  now,
			model.FieldEnrichedRaw: `{"bio":"A short bio."}`,
			model.FieldLastTriedAt: now,
		},
		Unset: []string{model.FieldEnrichedError},
	}))

	got, err := st.GetTopper(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got.Enriched)
	assert.True(t, *got.Enriched)
	assert.False(t, got.Eligible())
	assert.Equal(t, []string{"one", "two", "three"}, got.Insights)
	assert.Nil(t, got.EnrichedError)
	require.NotNil(t, got.EnrichedAt)
	assert.True(t, now.Equal(*got.EnrichedAt))

	pending, err := st.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLite_UpdateTopper_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateTopper(context.Background(), "nope", Update{Set: map[string]any{model.FieldEnriched: false}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_GetTopper_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetTopper(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_InsertAssignsIDs(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st, model.Topper{FirstName: "Ishita"})

	got, err := st.ListPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
}

func TestSQLite_StatsAndReset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	tried := time.Now().UTC()
	failed := "bio_too_short"

	seed(t, st,
		model.Topper{ID: "a"},
		model.Topper{ID: "b", Enriched: model.BoolPtr(true), LastTriedAt: &tried},
		model.Topper{ID: "c", Enriched: model.BoolPtr(false), EnrichedError: &failed, LastTriedAt: &tried},
	)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Total: 3, Enriched: 1, Failed: 1, NeverTried: 1}, stats)

	n, err := st.ResetEnrichment(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = st.ResetEnrichment(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	pending, err := st.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}
