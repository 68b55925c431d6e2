package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topper-enrich/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresWithPool(mock, nil, "exams", "toppers"), mock
}

func TestPostgresStore_Ident(t *testing.T) {
	s := newPostgresWithPool(nil, nil, "exams", "toppers")
	assert.Equal(t, `"exams"."toppers"`, s.ident())

	s = newPostgresWithPool(nil, nil, "", `odd"name`)
	assert.Equal(t, `"odd""name"`, s.ident())
}

func TestPostgresStore_ListPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	tried := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(topperColumns).
		AddRow("t1", "Ishita", "Kishore", int64(1), int64(2022), "Political Science", "ishita-kishore",
			nil, nil, nil, nil, nil, nil, nil, nil).
		AddRow("t2", "Garima", nil, nil, nil, nil, nil,
			false, nil, nil, nil, nil, "not json", "invalid_json", tried)

	mock.ExpectQuery(`SELECT id, .*insights::text.* FROM "exams"."toppers" WHERE enriched IS NOT TRUE ORDER BY id LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(rows)

	got, err := s.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Ishita", got[0].FirstName)
	assert.Equal(t, 1, *got[0].Rank)
	assert.Equal(t, 2022, *got[0].Year)
	assert.Nil(t, got[0].Enriched)
	assert.True(t, got[0].Eligible())

	assert.Equal(t, "", got[1].LastName)
	assert.Nil(t, got[1].Rank)
	require.NotNil(t, got[1].Enriched)
	assert.False(t, *got[1].Enriched)
	assert.Equal(t, "invalid_json", *got[1].EnrichedError)
	assert.Equal(t, tried, *got[1].LastTriedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPending_NoLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`ORDER BY id$`).
		WithArgs().
		WillReturnRows(pgxmock.NewRows(topperColumns))

	got, err := s.ListPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPending_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT`).WithArgs(5).WillReturnError(fmt.Errorf("connection reset"))

	_, err := s.ListPending(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list pending")
}

func TestPostgresStore_UpdateTopper_Success(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE "exams"."toppers" SET enriched = \$1, bio = \$2, strategy = \$3, insights = \$4, enriched_at = \$5, enriched_raw = \$6, enriched_error = NULL, last_tried_at = \$7 WHERE id = \$8`).
		WithArgs(true, "bio", "strategy", []byte(`["a","b","c"]`), now, "{}", now, "t1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateTopper(context.Background(), "t1", Update{
		Set: map[string]any{
			model.FieldBio:         "bio",
			model.FieldStrategy:    "strategy",
			model.FieldInsights:    []string{"a", "b", "c"},
			model.FieldEnriched:    true,
			model.FieldEnrichedAt:  now,
			model.FieldEnrichedRaw: "{}",
			model.FieldLastTriedAt: now,
		},
		Unset: []string{model.FieldEnrichedError},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateTopper_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE "exams"."toppers" SET enriched = \$1 WHERE id = \$2`).
		WithArgs(false, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateTopper(context.Background(), "missing", Update{Set: map[string]any{model.FieldEnriched: false}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_UpdateTopper_RejectsUnknownField(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.UpdateTopper(context.Background(), "t1", Update{Set: map[string]any{"about": "x"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertToppers(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"exams", "toppers"}, topperColumns).WillReturnResult(2)

	n, err := s.InsertToppers(context.Background(), []model.Topper{
		{ID: "t1", FirstName: "Ishita"},
		{FirstName: "Garima", Rank: model.IntPtr(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT count\(\*\),`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "enriched", "failed", "never"}).
			AddRow(10, 4, 3, 2))

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Stats{Total: 10, Enriched: 4, Failed: 3, NeverTried: 2}, st)
}

func TestPostgresStore_ResetEnrichment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE "exams"."toppers" SET enriched = NULL, .* WHERE enriched_error IS NOT NULL`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := s.ResetEnrichment(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "exams"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "exams"."toppers"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "idx_toppers_pending"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
