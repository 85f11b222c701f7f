// Package store persists batch verification outcomes to sqlite or libsql.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type Row struct {
	Identifier       string
	Kind             string
	Success          bool
	Message          string
	FromCache        bool
	ProcessingTimeMS float64
	// DataJSON is the marshalled record, empty for failures.
	DataJSON   string
	VerifiedAt string
	RecordedAt time.Time
}

type Store struct {
	db *sql.DB
}

// Driver picks "libsql" for remote targets and "sqlite" for file paths.
func Driver(target string) string {
	for _, scheme := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(target, scheme) {
			return "libsql"
		}
	}
	return "sqlite"
}

func Open(ctx context.Context, target string) (*Store, error) {
	if target == "" {
		return nil, fmt.Errorf("a database target was not specified")
	}
	driver := Driver(target)
	db, err := sql.Open(driver, target)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		if target != ":memory:" {
			if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
				db.Close()
				return nil, fmt.Errorf("enable wal: %w", err)
			}
		}
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Insert writes rows in one transaction.
func (s *Store) Insert(ctx context.Context, rows ...Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `insert into verification
		(identifier, kind, success, message, from_cache, processing_time_ms, data_json, verified_at, recorded_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		recorded := row.RecordedAt
		if recorded.IsZero() {
			recorded = time.Now()
		}
		_, err := stmt.ExecContext(
			ctx,
			row.Identifier,
			row.Kind,
			row.Success,
			row.Message,
			row.FromCache,
			row.ProcessingTimeMS,
			nullable(row.DataJSON),
			nullable(row.VerifiedAt),
			recorded.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert %s: %w", row.Identifier, err)
		}
	}
	return tx.Commit()
}

// Latest returns the most recent row stored for identifier.
func (s *Store) Latest(ctx context.Context, kind, identifier string) (Row, bool, error) {
	var (
		row        Row
		dataJSON   sql.NullString
		verifiedAt sql.NullString
		recorded   int64
	)
	err := s.db.QueryRowContext(ctx, `select
		identifier, kind, success, message, from_cache, processing_time_ms, data_json, verified_at, recorded_at
		from verification where kind = ? and identifier = ?
		order by id desc limit 1`, kind, identifier).Scan(
		&row.Identifier,
		&row.Kind,
		&row.Success,
		&row.Message,
		&row.FromCache,
		&row.ProcessingTimeMS,
		&dataJSON,
		&verifiedAt,
		&recorded,
	)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("query latest: %w", err)
	}
	row.DataJSON = dataJSON.String
	row.VerifiedAt = verifiedAt.String
	row.RecordedAt = time.Unix(recorded, 0)
	return row, true, nil
}

// Count returns the number of rows of kind, split by success.
func (s *Store) Count(ctx context.Context, kind string) (succeeded, failed int, err error) {
	err = s.db.QueryRowContext(ctx, `select
		coalesce(sum(case when success then 1 else 0 end), 0),
		coalesce(sum(case when success then 0 else 1 end), 0)
		from verification where kind = ?`, kind).Scan(&succeeded, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count: %w", err)
	}
	return succeeded, failed, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
