// Package sqlite provides a SQLite-backed score store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/iamofff/kvn-scoring-system/internal/adapters/repository"
	"github.com/iamofff/kvn-scoring-system/internal/adapters/repository/sqlite/migrations"
	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
	"github.com/iamofff/kvn-scoring-system/pkg/metrics"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Roster kinds stored in the roster table.
const (
	kindTeam  = "team"
	kindJudge = "judge"
	kindRound = "round"
)

// Store persists score entries and the roster in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ repository.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time keeps upserts and commits strictly ordered.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// LoadAll implements repository.ScoreStore.
func (s *Store) LoadAll(ctx context.Context) ([]model.ScoreEntry, error) {
	defer observe("load_all", time.Now())
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT round, team, judge_id, value, updated_at FROM scores ORDER BY round, team, judge_id`)
	if err != nil {
		return nil, wrap("load all", err)
	}
	defer rows.Close()

	var out []model.ScoreEntry
	for rows.Next() {
		var (
			e       model.ScoreEntry
			updated int64
		)
		if err := rows.Scan(&e.Round, &e.Team, &e.JudgeID, &e.Value, &updated); err != nil {
			return nil, wrap("scan score", err)
		}
		e.UpdatedAt = fromMillis(updated)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate scores", err)
	}
	return out, nil
}

// Upsert implements repository.ScoreStore with a single INSERT .. ON CONFLICT statement.
func (s *Store) Upsert(ctx context.Context, e model.ScoreEntry) error {
	defer observe("upsert", time.Now())
	updated := e.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO scores (round, team, judge_id, value, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (round, team, judge_id) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		e.Round, e.Team, e.JudgeID, e.Value, toMillis(updated),
	)
	if err != nil {
		return wrap("upsert score", err)
	}
	return nil
}

// DeleteAll implements repository.ScoreStore.
func (s *Store) DeleteAll(ctx context.Context) error {
	defer observe("delete_all", time.Now())
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM scores`); err != nil {
		return wrap("delete scores", err)
	}
	metrics.UpdateEntriesTotal(0)
	return nil
}

// Count implements repository.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM scores`).Scan(&n); err != nil {
		return 0, wrap("count scores", err)
	}
	return n, nil
}

// LoadRoster implements repository.Store.
func (s *Store) LoadRoster(ctx context.Context) (model.RosterState, error) {
	var committed int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT committed_at FROM roster_meta WHERE id = 1`).Scan(&committed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RosterState{}, repository.ErrNotFound
	}
	if err != nil {
		return model.RosterState{}, wrap("load roster meta", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT kind, id, name FROM roster ORDER BY kind, position`)
	if err != nil {
		return model.RosterState{}, wrap("load roster", err)
	}
	defer rows.Close()

	var state model.RosterState
	for rows.Next() {
		var kind, id, name string
		if err := rows.Scan(&kind, &id, &name); err != nil {
			return model.RosterState{}, wrap("scan roster", err)
		}
		switch kind {
		case kindTeam:
			state.Teams = append(state.Teams, name)
		case kindJudge:
			state.Judges = append(state.Judges, model.Judge{ID: id, Name: name})
		case kindRound:
			state.Rounds = append(state.Rounds, name)
		}
	}
	if err := rows.Err(); err != nil {
		return model.RosterState{}, wrap("iterate roster", err)
	}
	return state, nil
}

// Commit implements repository.Store inside one transaction.
func (s *Store) Commit(ctx context.Context, roster model.RosterState, entries []model.ScoreEntry) (err error) {
	defer observe("commit", time.Now())
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin commit", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{`DELETE FROM scores`, `DELETE FROM roster`} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return wrap("clear tables", err)
		}
	}

	insertRoster, err := tx.PrepareContext(ctx, `INSERT INTO roster (kind, position, id, name) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return wrap("prepare roster insert", err)
	}
	defer insertRoster.Close()
	for i, name := range roster.Teams {
		if _, err = insertRoster.ExecContext(ctx, kindTeam, i, name, name); err != nil {
			return wrap("insert team", err)
		}
	}
	for i, j := range roster.Judges {
		if _, err = insertRoster.ExecContext(ctx, kindJudge, i, j.ID, j.Name); err != nil {
			return wrap("insert judge", err)
		}
	}
	for i, name := range roster.Rounds {
		if _, err = insertRoster.ExecContext(ctx, kindRound, i, name, name); err != nil {
			return wrap("insert round", err)
		}
	}

	insertScore, err := tx.PrepareContext(ctx,
		`INSERT INTO scores (round, team, judge_id, value, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return wrap("prepare score insert", err)
	}
	defer insertScore.Close()
	now := time.Now()
	for _, e := range entries {
		updated := e.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		if _, err = insertScore.ExecContext(ctx, e.Round, e.Team, e.JudgeID, e.Value, toMillis(updated)); err != nil {
			return wrap("insert score", err)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO roster_meta (id, committed_at) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET committed_at = excluded.committed_at`,
		toMillis(now),
	); err != nil {
		return wrap("stamp roster", err)
	}

	if err = tx.Commit(); err != nil {
		return wrap("commit", err)
	}
	metrics.UpdateEntriesTotal(len(entries))
	return nil
}

// wrap turns a driver error into model.ErrStoreUnavailable, keeping the cause.
func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	metrics.RecordErrorByComponent("sqlite", errorType(err))
	return fmt.Errorf("%w: %s: %w", model.ErrStoreUnavailable, op, err)
}

func errorType(err error) string {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return "busy"
		case sqlite3lib.SQLITE_CONSTRAINT:
			return "constraint"
		case sqlite3lib.SQLITE_FULL, sqlite3lib.SQLITE_IOERR:
			return "io"
		}
	}
	return "query"
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
