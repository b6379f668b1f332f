// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// poolIface is the subset of pgxpool.Pool used here; pgxmock satisfies it.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresTimetable implements TimetableStore on PostgreSQL.
type PostgresTimetable struct {
	pool poolIface
}

// NewPostgresTimetable wraps an open pool.
func NewPostgresTimetable(pool poolIface) *PostgresTimetable {
	return &PostgresTimetable{pool: pool}
}

// ConnectOptions tunes Connect's retry loop.
type ConnectOptions struct {
	Attempts uint64
	Backoff  time.Duration
	Logger   *slog.Logger
}

// Connect opens a pool for dsn and pings it, retrying with exponential
// backoff while the database comes up.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	if opts.Attempts == 0 {
		opts.Attempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code(CodeConnectFailed).With("operation", "parse dsn").Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.Attempts-1, retry.NewExponential(opts.Backoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			opts.Logger.Warn("database not reachable", "attempt", attempt, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code(CodeConnectFailed).With("attempts", attempt).Wrap(err)
	}
	return pool, nil
}

// List implements TimetableStore.
func (s *PostgresTimetable) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, time_hh, time_mm, weekday, zones, duration_seconds
		 FROM timetable_entries ORDER BY id`)
	if err != nil {
		return nil, oops.Code(CodeQueryFailed).With("operation", "list timetable").Wrap(err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TimeHH, &e.TimeMM, &e.Weekday, &e.Zones, &e.Duration); err != nil {
			return nil, oops.Code(CodeQueryFailed).With("operation", "scan timetable row").Wrap(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code(CodeQueryFailed).With("operation", "iterate timetable").Wrap(err)
	}

	SortEntries(entries)
	return entries, nil
}

// Add implements TimetableStore. All entries are inserted in one
// transaction.
func (s *PostgresTimetable) Add(ctx context.Context, entries []Entry) (stored []Entry, err error) {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, oops.Code(CodeQueryFailed).With("operation", "begin add").Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // original error takes precedence
		}
	}()

	stored = make([]Entry, len(entries))
	for i, e := range entries {
		e.ID = NewID()
		if _, err = tx.Exec(ctx,
			`INSERT INTO timetable_entries (id, time_hh, time_mm, weekday, zones, duration_seconds)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.TimeHH, e.TimeMM, e.Weekday, e.Zones, e.Duration,
		); err != nil {
			return nil, mapWriteError(err, e.ID)
		}
		stored[i] = e
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, oops.Code(CodeQueryFailed).With("operation", "commit add").Wrap(err)
	}
	return stored, nil
}

// Remove implements TimetableStore.
func (s *PostgresTimetable) Remove(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM timetable_entries WHERE id = $1`, id)
	if err != nil {
		return oops.Code(CodeQueryFailed).With("operation", "remove entry").With("id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return errNotFound(id)
	}
	return nil
}

func mapWriteError(err error, id string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
		return oops.Code(CodeInvalidEntry).
			With("id", id).
			With("constraint", pgErr.ConstraintName).
			Wrap(err)
	}
	return oops.Code(CodeQueryFailed).With("operation", "insert entry").With("id", id).Wrap(err)
}
