package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dadbase/dadbase/internal/domain"
)

// ─── Users ──────────────────────────────────────────────────────────────────

// EnsureUser creates the user (xp 0, level 1) with empty counters and streak
// rows if missing. Non-empty name/avatar refresh the profile fields.
func (d *DB) EnsureUser(ctx context.Context, userID, name, avatar string, at time.Time) (domain.UserProgression, error) {
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, name, avatar, xp, level, created_at) VALUES (?, ?, ?, 0, 1, ?)
			 ON CONFLICT(id) DO UPDATE SET
				name   = COALESCE(NULLIF(excluded.name, ''), users.name),
				avatar = COALESCE(NULLIF(excluded.avatar, ''), users.avatar)`,
			userID, name, avatar, at.Unix(),
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO counters (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`, userID,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO streaks (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`, userID,
		)
		return err
	})
	if err != nil {
		return domain.UserProgression{}, storeErr("ensure user", err)
	}
	return d.GetUser(ctx, userID)
}

// GetUser loads the user record with badges (insertion order) and special titles.
func (d *DB) GetUser(ctx context.Context, userID string) (domain.UserProgression, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, avatar, xp, level, active_title, created_at FROM users WHERE id = ?`, userID,
	)
	u, err := scanUser(row)
	if err != nil {
		return domain.UserProgression{}, storeErr("get user", err)
	}

	u.Badges, err = d.listStrings(ctx,
		`SELECT badge_id FROM user_badges WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		return domain.UserProgression{}, storeErr("list badges", err)
	}
	u.SpecialTitles, err = d.listStrings(ctx,
		`SELECT title_id FROM user_titles WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		return domain.UserProgression{}, storeErr("list titles", err)
	}
	return u, nil
}

// ApplyXPGrant atomically adds grant.Amount to xp, persists the recomputed
// level and appends the grant to the ledger in one transaction.
func (d *DB) ApplyXPGrant(ctx context.Context, grant domain.XPGrant, levelOf domain.LevelFunc) (domain.XPChange, error) {
	var change domain.XPChange
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		change, err = applyGrant(ctx, tx, grant, levelOf)
		return err
	})
	return change, storeErr("apply xp grant", err)
}

// AwardBadge inserts a badge and pays grant in one transaction.
// A badge already held returns false and changes nothing.
func (d *DB) AwardBadge(ctx context.Context, userID, badgeID string, grant domain.XPGrant, levelOf domain.LevelFunc) (domain.XPChange, bool, error) {
	var (
		change  domain.XPChange
		awarded bool
	)
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_badges (user_id, badge_id, awarded_at) VALUES (?, ?, ?)`,
			userID, badgeID, grant.CreatedAt.Unix(),
		)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil // already held
		}
		change, err = applyGrant(ctx, tx, grant, levelOf)
		if err != nil {
			return err
		}
		awarded = true
		return nil
	})
	if err != nil {
		return domain.XPChange{}, false, storeErr("award badge", err)
	}
	return change, awarded, nil
}

// SetActiveTitle stores the user's chosen title. Empty clears it.
func (d *DB) SetActiveTitle(ctx context.Context, userID, titleID string) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE users SET active_title = ? WHERE id = ?`, titleID, userID,
	)
	if err != nil {
		return storeErr("set active title", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storeErr("set active title", domain.ErrUserNotFound)
	}
	return nil
}

// AddSpecialTitle records an out-of-band title grant. Returns false if held.
func (d *DB) AddSpecialTitle(ctx context.Context, userID, titleID string) (bool, error) {
	result, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_titles (user_id, title_id, granted_at) VALUES (?, ?, ?)`,
		userID, titleID, time.Now().Unix(),
	)
	if err != nil {
		return false, storeErr("add special title", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// TopByXP returns users ordered by xp descending. Ties keep insertion order.
func (d *DB) TopByXP(ctx context.Context, limit int) ([]domain.UserProgression, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, avatar, xp, level, active_title, created_at
		 FROM users ORDER BY xp DESC, rowid ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, storeErr("top by xp", err)
	}
	defer rows.Close()

	var users []domain.UserProgression
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeErr("top by xp", err)
		}
		users = append(users, u)
	}
	return users, storeErr("top by xp", rows.Err())
}

// ListXPGrants returns the most recent ledger entries for a user.
func (d *DB) ListXPGrants(ctx context.Context, userID string, limit int) ([]domain.XPGrant, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, reason, amount, multiplier, created_at
		 FROM xp_events WHERE user_id = ? ORDER BY seq DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, storeErr("list xp grants", err)
	}
	defer rows.Close()

	var grants []domain.XPGrant
	for rows.Next() {
		var g domain.XPGrant
		var createdAt int64
		if err := rows.Scan(&g.ID, &g.UserID, &g.Reason, &g.Amount, &g.Multiplier, &createdAt); err != nil {
			return nil, storeErr("list xp grants", err)
		}
		g.CreatedAt = time.Unix(createdAt, 0)
		grants = append(grants, g)
	}
	return grants, storeErr("list xp grants", rows.Err())
}

// ─── Internals ──────────────────────────────────────────────────────────────

// applyGrant increments xp in place (never read-modify-write), persists the
// recomputed level and appends the audit event. Must run inside tx.
func applyGrant(ctx context.Context, tx querier, grant domain.XPGrant, levelOf domain.LevelFunc) (domain.XPChange, error) {
	var change domain.XPChange
	err := tx.QueryRowContext(ctx,
		`UPDATE users SET xp = xp + ? WHERE id = ? RETURNING xp, level`,
		grant.Amount, grant.UserID,
	).Scan(&change.NewXP, &change.OldLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return change, domain.ErrUserNotFound
	}
	if err != nil {
		return change, err
	}
	change.OldXP = change.NewXP - grant.Amount
	change.NewLevel = levelOf(change.NewXP)

	if change.NewLevel != change.OldLevel {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET level = ? WHERE id = ?`, change.NewLevel, grant.UserID,
		); err != nil {
			return change, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO xp_events (id, user_id, reason, amount, multiplier, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		grant.ID, grant.UserID, string(grant.Reason), grant.Amount, grant.Multiplier, grant.CreatedAt.Unix(),
	)
	return change, err
}

func scanUser(s scanner) (domain.UserProgression, error) {
	var u domain.UserProgression
	var createdAt int64
	err := s.Scan(&u.UserID, &u.Name, &u.Avatar, &u.XP, &u.Level, &u.ActiveTitle, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, domain.ErrUserNotFound
	}
	if err != nil {
		return u, err
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return u, nil
}

func (d *DB) listStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
