package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlbench/mlbench/record"
)

// Schema creates the tables used by Repository.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	run        TEXT PRIMARY KEY,
	context    JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS results (
	id             BIGSERIAL PRIMARY KEY,
	run            TEXT NOT NULL REFERENCES records (run) ON DELETE CASCADE,
	position       INT NOT NULL,
	name           TEXT NOT NULL,
	function       TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	date           TIMESTAMPTZ NOT NULL,
	value          JSONB,
	error_occurred BOOLEAN NOT NULL DEFAULT false,
	error_message  TEXT NOT NULL DEFAULT '',
	parameters     JSONB NOT NULL DEFAULT '{}',
	tags           TEXT[] NOT NULL DEFAULT '{}',
	time_ns        BIGINT NOT NULL,
	UNIQUE (run, position)
);
CREATE INDEX IF NOT EXISTS results_name_idx ON results (name);
`

// Repository stores benchmark records in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with a connection pool.
func NewRepository(ctx context.Context, connString string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Migrate creates the schema if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// SaveRecord inserts a record and all of its results within a single
// transaction. Saving a run that already exists appends its results.
func (r *Repository) SaveRecord(ctx context.Context, rec *record.Record) error {
	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO records (run, context) VALUES ($1, $2)
		 ON CONFLICT (run) DO UPDATE SET context = records.context || EXCLUDED.context`,
		rec.Run, string(ctxJSON),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	var offset int
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM results WHERE run = $1`, rec.Run).Scan(&offset)
	if err != nil {
		return fmt.Errorf("query result offset: %w", err)
	}

	batch := &pgx.Batch{}
	for i, res := range rec.Benchmarks {
		value, err := json.Marshal(res.Value)
		if err != nil {
			return fmt.Errorf("encode value of %s: %w", res.Name, err)
		}
		params, err := json.Marshal(res.Parameters)
		if err != nil {
			return fmt.Errorf("encode parameters of %s: %w", res.Name, err)
		}
		tags := res.Tags
		if tags == nil {
			tags = []string{}
		}
		batch.Queue(
			`INSERT INTO results
			    (run, position, name, function, description, date, value,
			     error_occurred, error_message, parameters, tags, time_ns)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			rec.Run, offset+i, res.Name, res.Function, res.Description, res.Date, string(value),
			res.ErrorOccurred, res.ErrorMessage, string(params), tags, res.TimeNs,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert result: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetRecord returns a stored record by run ID, or nil if not found.
func (r *Repository) GetRecord(ctx context.Context, run string) (*record.Record, error) {
	var ctxJSON []byte
	err := r.pool.QueryRow(ctx, `SELECT context FROM records WHERE run = $1`, run).Scan(&ctxJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	rec := &record.Record{Run: run, Context: record.Context{}, Benchmarks: []record.Result{}}
	if err := json.Unmarshal(ctxJSON, &rec.Context); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT name, function, description, date, value,
		        error_occurred, error_message, parameters, tags, time_ns
		 FROM results WHERE run = $1 ORDER BY position`, run)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res           record.Result
			value, params []byte
		)
		err := rows.Scan(&res.Name, &res.Function, &res.Description, &res.Date, &value,
			&res.ErrorOccurred, &res.ErrorMessage, &params, &res.Tags, &res.TimeNs)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		if len(value) > 0 {
			if err := json.Unmarshal(value, &res.Value); err != nil {
				return nil, fmt.Errorf("decode value of %s: %w", res.Name, err)
			}
		}
		if err := json.Unmarshal(params, &res.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters of %s: %w", res.Name, err)
		}
		if len(res.Tags) == 0 {
			res.Tags = nil
		}
		rec.Benchmarks = append(rec.Benchmarks, res)
	}
	return rec, rows.Err()
}

// ListRecords returns summaries of stored records matching the filter,
// newest first.
func (r *Repository) ListRecords(ctx context.Context, f RecordFilter) ([]RecordSummary, error) {
	var (
		conditions []string
		args       []any
		argIdx     int
	)

	if f.Benchmark != "" {
		argIdx++
		conditions = append(conditions,
			fmt.Sprintf("EXISTS (SELECT 1 FROM results x WHERE x.run = r.run AND x.name ILIKE $%d)", argIdx))
		args = append(args, "%"+f.Benchmark+"%")
	}
	if !f.Since.IsZero() {
		argIdx++
		conditions = append(conditions, fmt.Sprintf("r.created_at >= $%d", argIdx))
		args = append(args, f.Since)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	argIdx++
	limitClause := fmt.Sprintf("LIMIT $%d", argIdx)
	args = append(args, f.limit())

	offsetClause := ""
	if f.Offset > 0 {
		argIdx++
		offsetClause = fmt.Sprintf("OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	query := fmt.Sprintf(`
		SELECT
			r.run, r.created_at,
			COUNT(res.id),
			COUNT(res.id) FILTER (WHERE res.error_occurred)
		FROM records r
		LEFT JOIN results res ON res.run = r.run
		%s
		GROUP BY r.run, r.created_at
		ORDER BY r.created_at DESC
		%s %s
	`, where, limitClause, offsetClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var items []RecordSummary
	for rows.Next() {
		var item RecordSummary
		if err := rows.Scan(&item.Run, &item.CreatedAt, &item.Benchmarks, &item.Failed); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteRecord removes a record and its results. It reports whether the
// record existed.
func (r *Repository) DeleteRecord(ctx context.Context, run string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM records WHERE run = $1`, run)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
