package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dagger/internal/core/errors"
	"dagger/internal/core/ports"
	"dagger/internal/engine/graph"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// advisoryLockKey serializes component mutations across processes sharing
// one PostgreSQL database.
const advisoryLockKey int64 = 0x6461676765720001

type Options struct {
	Driver       string
	Path         string
	DSN          string
	BusyTimeout  time.Duration
	MaxOpenConns int
	// LockTimeout bounds the wait for the cross-process advisory lock on
	// PostgreSQL. Zero waits until the caller's context ends.
	LockTimeout time.Duration
}

type Store struct {
	db          *sql.DB
	dialect     Dialect
	now         func() time.Time
	lockTimeout time.Duration
}

var _ ports.ComponentRepository = (*Store)(nil)

// Open connects to the configured backend and applies pending migrations.
func Open(opts Options) (*Store, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(opts.Driver))) {
	case DialectSQLite, "":
		return OpenSQLite(opts.Path, opts.BusyTimeout)
	case DialectPostgres:
		s, err := OpenPostgres(opts.DSN, opts.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		s.SetLockTimeout(opts.LockTimeout)
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}
}

func OpenSQLite(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("database path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("database path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	// Immediate transactions take the write lock at BEGIN, so two writers can
	// never both read a pre-merge state.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_txlock=immediate",
		cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(string(DialectSQLite), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db, DialectSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}
	return FromDB(db, DialectSQLite), nil
}

func OpenPostgres(dsn string, maxOpenConns int) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn must not be empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := EnsureSchema(db, DialectPostgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize postgres schema: %w", err)
	}
	return FromDB(db, DialectPostgres), nil
}

// FromDB wraps an already-migrated database handle.
func FromDB(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the handle so collaborators (the task directory) can share it.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

// SetLockTimeout sets the PostgreSQL lock_timeout applied inside WithinTx.
func (s *Store) SetLockTimeout(d time.Duration) { s.lockTimeout = d }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "ping database")
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx ports.ComponentTx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.dialect == DialectPostgres {
		if s.lockTimeout > 0 {
			// A lock wait past the timeout fails with 55P03, which classify
			// reports as CONFLICT.
			if _, err = tx.ExecContext(ctx, lockTimeoutStatement(s.lockTimeout)); err != nil {
				return classify("set lock timeout", err)
			}
		}
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
			return classify("acquire advisory lock", err)
		}
	}

	if err = fn(&componentTx{tx: tx, dialect: s.dialect, now: s.now}); err != nil {
		return err
	}
	// A caller that went away before commit gets nothing persisted.
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id graph.ComponentID) (graph.Component, error) {
	return getComponent(ctx, s.db, s.dialect, id)
}

func (s *Store) ListByTeam(ctx context.Context, team graph.TeamID) ([]graph.Component, error) {
	query := s.dialect.Rebind(selectComponents + ` WHERE team_id = ? ORDER BY created_at_ms ASC, component_id ASC`)
	rows, err := s.db.QueryContext(ctx, query, team.String())
	if err != nil {
		return nil, classify("list components", err)
	}
	return scanComponents(rows)
}

// classify maps driver errors onto the domain taxonomy. Lock and
// serialization failures become retryable conflicts.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var de *errors.DomainError
	if stderrors.As(err, &de) {
		return err
	}
	if isLockError(err) {
		return errors.Wrap(err, errors.CodeConflict, op)
	}
	return errors.Wrap(err, errors.CodeStorage, op)
}

func isLockError(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	var sqliteErr *sqlite.Error
	if stderrors.As(err, &sqliteErr) {
		// Extended codes such as SQLITE_BUSY_SNAPSHOT keep the primary code
		// in the low byte.
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

// lockTimeoutStatement renders SET LOCAL lock_timeout, which takes no bind
// parameters. Sub-millisecond values round up since 0 disables the timeout.
func lockTimeoutStatement(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)
}
