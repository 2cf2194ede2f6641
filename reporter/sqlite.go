package reporter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mlbench/mlbench/record"
)

const (
	sqliteCreate = `CREATE TABLE IF NOT EXISTS mlbench (
	run       TEXT NOT NULL,
	benchmark TEXT NOT NULL,
	context   TEXT NOT NULL,
	timestamp TEXT NOT NULL
)`
	sqliteInsert = `INSERT INTO mlbench (run, benchmark, context, timestamp) VALUES (?, ?, ?, ?)`
	sqliteSelect = `SELECT run, benchmark, context FROM mlbench ORDER BY rowid`
)

// SQLiteIO stores one row per result in the mlbench table of a SQLite
// database, addressed as sqlite://path/to/file.db.
type SQLiteIO struct {
	// Query replaces the default read query. It must select the run,
	// benchmark and context columns.
	Query string
}

func (s *SQLiteIO) open(ctx context.Context, uri string) (*sql.DB, error) {
	path := stripProtocol(uri, "sqlite")
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path in %q", uri)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Write implements ServiceIO.
func (s *SQLiteIO) Write(ctx context.Context, rec *record.Record, uri string) error {
	db, err := s.open(ctx, uri)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteCreate); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	rows, err := rec.Compact(record.Omit, record.DefaultSep)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, row := range rows {
		delete(row, "run")
		bm, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.Benchmarks[i].Name, err)
		}
		ts := rec.Benchmarks[i].Date.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, rec.Run, string(bm), string(ctxJSON), ts); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return tx.Commit()
}

// Read implements ServiceIO. A "#run" suffix selects a single run.
func (s *SQLiteIO) Read(ctx context.Context, uri string) ([]*record.Record, error) {
	uri, run := splitRun(uri)
	if _, err := os.Stat(stripProtocol(uri, "sqlite")); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	db, err := s.open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := s.Query
	if query == "" {
		query = sqliteSelect
	}
	rs, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rs.Close()

	var rows []map[string]any
	for rs.Next() {
		var runID, bm, ctxJSON string
		if err := rs.Scan(&runID, &bm, &ctxJSON); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if run != "" && runID != run {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(bm), &row); err != nil {
			return nil, fmt.Errorf("decode benchmark: %w", err)
		}
		var c map[string]any
		if err := json.Unmarshal([]byte(ctxJSON), &c); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
		row["run"] = runID
		row["context"] = c
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return record.ExpandAll(rows)
}
