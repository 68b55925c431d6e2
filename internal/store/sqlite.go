package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/topper-enrich/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local runs
// and tests; insights are stored as JSON text.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, table: table}, nil
}

func (s *SQLiteStore) quoted() string {
	return `"` + strings.ReplaceAll(s.table, `"`, `""`) + `"`
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id               TEXT PRIMARY KEY,
	first_name       TEXT,
	last_name        TEXT,
	rank             INTEGER,
	year             INTEGER,
	optional_subject TEXT,
	slug             TEXT,
	enriched         BOOLEAN,
	bio              TEXT,
	strategy         TEXT,
	insights         TEXT,
	enriched_at      DATETIME,
	enriched_raw     TEXT,
	enriched_error   TEXT,
	last_tried_at    DATETIME
);
CREATE INDEX IF NOT EXISTS "idx_%[2]s_enriched" ON %[1]s(enriched);
`, s.quoted(), strings.ReplaceAll(s.table, `"`, ""))
	_, err := s.db.ExecContext(ctx, stmt)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListPending(ctx context.Context, limit int) ([]model.Topper, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE enriched IS NOT 1 ORDER BY id`,
		strings.Join(topperColumns, ", "), s.quoted())
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Topper
	for rows.Next() {
		t, err := scanTopper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate pending")
	}
	return out, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTopper(row scannable) (*model.Topper, error) {
	var (
		t                                     model.Topper
		first, last, subject, slug            sql.NullString
		bio, strategy, insights, raw, errText sql.NullString
		rank, year                            sql.NullInt64
		enriched                              sql.NullBool
		enrichedAt, lastTried                 sql.NullTime
	)
	err := row.Scan(&t.ID, &first, &last, &rank, &year, &subject, &slug,
		&enriched, &bio, &strategy, &insights,
		&enrichedAt, &raw, &errText, &lastTried)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan topper")
	}

	t.FirstName, t.LastName = first.String, last.String
	t.OptionalSubject, t.Slug = subject.String, slug.String
	t.Bio, t.Strategy, t.EnrichedRaw = bio.String, strategy.String, raw.String
	if rank.Valid {
		t.Rank = model.IntPtr(int(rank.Int64))
	}
	if year.Valid {
		t.Year = model.IntPtr(int(year.Int64))
	}
	if enriched.Valid {
		t.Enriched = model.BoolPtr(enriched.Bool)
	}
	if errText.Valid {
		e := errText.String
		t.EnrichedError = &e
	}
	if enrichedAt.Valid {
		ts := enrichedAt.Time
		t.EnrichedAt = &ts
	}
	if lastTried.Valid {
		ts := lastTried.Time
		t.LastTriedAt = &ts
	}
	if t.Insights, err = decodeInsights(insights.String); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTopper loads a single record by id.
func (s *SQLiteStore) GetTopper(ctx context.Context, id string) (*model.Topper, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, strings.Join(topperColumns, ", "), s.quoted()), id)
	t, err := scanTopper(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get topper %s", id)
	}
	return t, err
}

func (s *SQLiteStore) UpdateTopper(ctx context.Context, id string, u Update) error {
	plan, err := u.plan()
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(plan))
	args := make([]any, 0, len(plan)+1)
	for _, a := range plan {
		if a.value == nil {
			sets = append(sets, a.column+" = NULL")
			continue
		}
		v := a.value
		if ins, ok := v.([]string); ok {
			b, err := encodeInsights(ins)
			if err != nil {
				return err
			}
			v = string(b)
		}
		args = append(args, v)
		sets = append(sets, a.column+" = ?")
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, s.quoted(), strings.Join(sets, ", ")), args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update topper %s", id)
	}
	return checkRowsAffected(res, id)
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: update topper %s", id)
	}
	return nil
}

// InsertToppers inserts records in a single transaction. Records without an
// id get a generated UUID.
func (s *SQLiteStore) InsertToppers(ctx context.Context, toppers []model.Topper) (int64, error) {
	if len(toppers) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(topperColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		s.quoted(), strings.Join(topperColumns, ", "), placeholders))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, t := range toppers {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		var insights any
		if t.Insights != nil {
			b, err := encodeInsights(t.Insights)
			if err != nil {
				return 0, err
			}
			insights = string(b)
		}
		_, err := stmt.ExecContext(ctx,
			t.ID, nullText(t.FirstName), nullText(t.LastName), nullInt(t.Rank), nullInt(t.Year),
			nullText(t.OptionalSubject), nullText(t.Slug),
			nullBool(t.Enriched), nullText(t.Bio), nullText(t.Strategy), insights,
			nullTime(t.EnrichedAt), nullText(t.EnrichedRaw), nullString(t.EnrichedError), nullTime(t.LastTriedAt),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert topper %s", t.ID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert")
	}
	return n, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	query := fmt.Sprintf(`SELECT count(*),
	coalesce(sum(CASE WHEN enriched = 1 THEN 1 ELSE 0 END), 0),
	coalesce(sum(CASE WHEN enriched_error IS NOT NULL THEN 1 ELSE 0 END), 0),
	coalesce(sum(CASE WHEN last_tried_at IS NULL THEN 1 ELSE 0 END), 0)
FROM %s`, s.quoted())

	var st Stats
	if err := s.db.QueryRowContext(ctx, query).Scan(&st.Total, &st.Enriched, &st.Failed, &st.NeverTried); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return &st, nil
}

func (s *SQLiteStore) ResetEnrichment(ctx context.Context, errorsOnly bool) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s`, s.quoted(), resetAssignments())
	if errorsOnly {
		query += ` WHERE enriched_error IS NOT NULL`
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset enrichment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
