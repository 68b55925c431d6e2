package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/topper-enrich/internal/db"
	"github.com/sells-group/topper-enrich/internal/model"
)

// PostgresStore implements Store using pgxpool. The configured database name
// maps to a schema and the collection name to a table inside it.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	schema  string
	table   string
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString, schema, table string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool, pool.Close, schema, table), nil
}

func newPostgresWithPool(pool db.Pool, closeFn func(), schema, table string) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: closeFn, schema: schema, table: table}
}

// ident returns the sanitized, schema-qualified table name.
func (s *PostgresStore) ident() string {
	if s.schema == "" {
		return pgx.Identifier{s.table}.Sanitize()
	}
	return pgx.Identifier{s.schema, s.table}.Sanitize()
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	var stmts []string
	if s.schema != "" {
		stmts = append(stmts, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{s.schema}.Sanitize()))
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
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
	insights         JSONB,
	enriched_at      TIMESTAMPTZ,
	enriched_raw     TEXT,
	enriched_error   TEXT,
	last_tried_at    TIMESTAMPTZ
)`, s.ident()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (id) WHERE enriched IS NOT TRUE`,
			pgx.Identifier{"idx_" + s.table + "_pending"}.Sanitize(), s.ident()),
	)
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "postgres: migrate")
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) selectColumns() string {
	cols := make([]string, len(topperColumns))
	copy(cols, topperColumns)
	for i, c := range cols {
		if c == "insights" {
			cols[i] = "insights::text"
		}
	}
	return strings.Join(cols, ", ")
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]model.Topper, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE enriched IS NOT TRUE ORDER BY id`, s.selectColumns(), s.ident())
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending")
	}
	defer rows.Close()

	var out []model.Topper
	for rows.Next() {
		t, err := scanPgTopper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate pending")
	}
	return out, nil
}

func scanPgTopper(row pgx.Row) (*model.Topper, error) {
	var (
		t                                     model.Topper
		first, last, subject, slug            pgtype.Text
		bio, strategy, insights, raw, errText pgtype.Text
		rank, year                            pgtype.Int4
		enriched                              pgtype.Bool
		enrichedAt, lastTried                 pgtype.Timestamptz
	)
	err := row.Scan(&t.ID, &first, &last, &rank, &year, &subject, &slug,
		&enriched, &bio, &strategy, &insights,
		&enrichedAt, &raw, &errText, &lastTried)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan topper")
	}

	t.FirstName, t.LastName = first.String, last.String
	t.OptionalSubject, t.Slug = subject.String, slug.String
	t.Bio, t.Strategy, t.EnrichedRaw = bio.String, strategy.String, raw.String
	if rank.Valid {
		t.Rank = model.IntPtr(int(rank.Int32))
	}
	if year.Valid {
		t.Year = model.IntPtr(int(year.Int32))
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

func (s *PostgresStore) UpdateTopper(ctx context.Context, id string, u Update) error {
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
			if v, err = encodeInsights(ins); err != nil {
				return err
			}
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", a.column, len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, s.ident(), strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update topper %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update topper %s", id)
	}
	return nil
}

// InsertToppers bulk-loads records with COPY. Records without an id get a
// generated UUID.
func (s *PostgresStore) InsertToppers(ctx context.Context, toppers []model.Topper) (int64, error) {
	rows := make([][]any, 0, len(toppers))
	for _, t := range toppers {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		var insights []byte
		if t.Insights != nil {
			b, err := encodeInsights(t.Insights)
			if err != nil {
				return 0, err
			}
			insights = b
		}
		rows = append(rows, []any{
			t.ID, nullText(t.FirstName), nullText(t.LastName), t.Rank, t.Year,
			nullText(t.OptionalSubject), nullText(t.Slug),
			t.Enriched, nullText(t.Bio), nullText(t.Strategy), insights,
			t.EnrichedAt, nullText(t.EnrichedRaw), t.EnrichedError, t.LastTriedAt,
		})
	}
	n, err := db.CopyFrom(ctx, s.pool, s.schema, s.table, topperColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert toppers")
	}
	return n, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	query := fmt.Sprintf(`SELECT count(*),
	count(*) FILTER (WHERE enriched IS TRUE),
	count(*) FILTER (WHERE enriched_error IS NOT NULL),
	count(*) FILTER (WHERE last_tried_at IS NULL)
FROM %s`, s.ident())

	var st Stats
	if err := s.pool.QueryRow(ctx, query).Scan(&st.Total, &st.Enriched, &st.Failed, &st.NeverTried); err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return &st, nil
}

func (s *PostgresStore) ResetEnrichment(ctx context.Context, errorsOnly bool) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s`, s.ident(), resetAssignments())
	if errorsOnly {
		query += ` WHERE enriched_error IS NOT NULL`
	}
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset enrichment")
	}
	return tag.RowsAffected(), nil
}

func resetAssignments() string {
	sets := make([]string, 0, len(model.EnrichmentFields))
	for _, f := range model.EnrichmentFields {
		sets = append(sets, fieldColumns[f]+" = NULL")
	}
	return strings.Join(sets, ", ")
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
