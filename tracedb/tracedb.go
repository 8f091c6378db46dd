// Package tracedb persists evaluation traces in a SQLite database.
package tracedb

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	mortar "github.com/rphilander/mortar/core"
)

const schema = `CREATE TABLE IF NOT EXISTS traces (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source      TEXT NOT NULL,
	result      TEXT,
	error       TEXT,
	started_at  TEXT NOT NULL,
	duration_ns INTEGER NOT NULL
)`

// Record is a stored trace. Result holds the printed value and is empty when
// the evaluation failed.
type Record struct {
	ID       int64
	Source   string
	Result   string
	Error    string
	Start    time.Time
	Duration time.Duration
}

type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Save appends a trace.
func (d *DB) Save(t mortar.Trace) error {
	var result, errText sql.NullString
	if t.Error != "" {
		errText = sql.NullString{String: t.Error, Valid: true}
	} else {
		result = sql.NullString{String: t.Result.String(), Valid: true}
	}
	_, err := d.db.Exec(
		`INSERT INTO traces (source, result, error, started_at, duration_ns) VALUES (?, ?, ?, ?, ?)`,
		t.Source, result, errText, t.Start.UTC().Format(time.RFC3339Nano), t.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("save trace: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first. n <= 0 returns all.
func (d *DB) Recent(n int) ([]Record, error) {
	query := `SELECT id, source, result, error, started_at, duration_ns FROM traces ORDER BY id DESC`
	var args []any
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r             Record
			result, errTx sql.NullString
			started       string
			durationNS    int64
		)
		if err := rows.Scan(&r.ID, &r.Source, &result, &errTx, &started, &durationNS); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		r.Result, r.Error = result.String, errTx.String
		if r.Start, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("trace %d: bad timestamp: %w", r.ID, err)
		}
		r.Duration = time.Duration(durationNS)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) Close() error {
	return d.db.Close()
}
