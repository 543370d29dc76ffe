// Package sqlite provides SQLite-based persistent storage for the
// progression engine. Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/dadbase/dadbase/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements domain.Store and domain.NotificationStore.
type DB struct {
	db *sql.DB
}

var (
	_ domain.Store             = (*DB)(nil)
	_ domain.NotificationStore = (*DB)(nil)
)

// Open creates or opens the SQLite database at dir/progression.db.
// Enables WAL mode, foreign keys, and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "progression.db")
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; every XP increment is serialized through here.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// User record: cumulative xp, derived level, profile, active title.
		`CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL DEFAULT '',
			avatar       TEXT NOT NULL DEFAULT '',
			xp           INTEGER NOT NULL DEFAULT 0 CHECK (xp >= 0),
			level        INTEGER NOT NULL DEFAULT 1,
			active_title TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_xp ON users(xp DESC)`,

		// Per-user activity counters.
		`CREATE TABLE IF NOT EXISTS counters (
			user_id   TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			posts     INTEGER NOT NULL DEFAULT 0,
			comments  INTEGER NOT NULL DEFAULT 0,
			friends   INTEGER NOT NULL DEFAULT 0,
			jokes     INTEGER NOT NULL DEFAULT 0,
			events    INTEGER NOT NULL DEFAULT 0,
			"groups"  INTEGER NOT NULL DEFAULT 0,
			stories   INTEGER NOT NULL DEFAULT 0,
			reactions INTEGER NOT NULL DEFAULT 0
		)`,

		// Append-only XP ledger.
		`CREATE TABLE IF NOT EXISTS xp_events (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			reason     TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			multiplier REAL NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_events_user ON xp_events(user_id, seq)`,

		// Earned badges; seq preserves insertion order for display.
		`CREATE TABLE IF NOT EXISTS user_badges (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			badge_id   TEXT NOT NULL,
			awarded_at INTEGER NOT NULL,
			UNIQUE (user_id, badge_id)
		)`,

		// Special titles granted out-of-band.
		`CREATE TABLE IF NOT EXISTS user_titles (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title_id   TEXT NOT NULL,
			granted_at INTEGER NOT NULL,
			UNIQUE (user_id, title_id)
		)`,

		// One streak document per user; history is a JSON array.
		`CREATE TABLE IF NOT EXISTS streaks (
			user_id           TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			current_streak    INTEGER NOT NULL DEFAULT 0,
			longest_streak    INTEGER NOT NULL DEFAULT 0,
			last_active_date  TEXT NOT NULL DEFAULT '',
			streak_freezes    INTEGER NOT NULL DEFAULT 0 CHECK (streak_freezes >= 0),
			total_active_days INTEGER NOT NULL DEFAULT 0,
			history           TEXT NOT NULL DEFAULT '[]'
		)`,

		// Daily quests, replaced at each roll.
		`CREATE TABLE IF NOT EXISTS quests (
			user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			day          TEXT NOT NULL,
			quest_id     TEXT NOT NULL,
			position     INTEGER NOT NULL,
			category     TEXT NOT NULL,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL,
			action       TEXT NOT NULL,
			target       INTEGER NOT NULL,
			progress     INTEGER NOT NULL DEFAULT 0,
			reward_xp    INTEGER NOT NULL,
			completed    BOOLEAN NOT NULL DEFAULT 0,
			completed_at INTEGER,
			claimed_at   INTEGER,
			PRIMARY KEY (user_id, day, quest_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quests_day ON quests(day)`,

		// Notification log for UI display.
		`CREATE TABLE IF NOT EXISTS notifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			old_level  INTEGER NOT NULL DEFAULT 0,
			new_level  INTEGER NOT NULL DEFAULT 0,
			badge_id   TEXT NOT NULL DEFAULT '',
			quest_id   TEXT NOT NULL DEFAULT '',
			xp         INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			shown      BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_user ON notifications(user_id, shown)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// storeErr tags driver failures as ErrStoreUnavailable. Domain sentinels
// pass through untouched so callers can match them directly.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrQuestNotFound),
		errors.Is(err, domain.ErrUnknownDimension),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
