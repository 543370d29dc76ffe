package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/dadbase/dadbase/internal/domain"
)

// ─── Streaks ────────────────────────────────────────────────────────────────

// GetStreak loads the streak document. Never checked in reads as zero state.
func (d *DB) GetStreak(ctx context.Context, userID string) (domain.StreakState, error) {
	var (
		s       domain.StreakState
		history string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT current_streak, longest_streak, last_active_date, streak_freezes, total_active_days, history
		 FROM streaks WHERE user_id = ?`, userID,
	).Scan(&s.CurrentStreak, &s.LongestStreak, &s.LastActiveDate, &s.StreakFreezes, &s.TotalActiveDays, &history)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StreakState{}, nil
	}
	if err != nil {
		return domain.StreakState{}, storeErr("get streak", err)
	}
	if err := json.Unmarshal([]byte(history), &s.History); err != nil {
		return domain.StreakState{}, storeErr("decode streak history", err)
	}
	return s, nil
}

// upsertStreakSQL writes every streak field except streak_freezes.
const upsertStreakSQL = `INSERT INTO streaks (user_id, current_streak, longest_streak, last_active_date, total_active_days, history)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		current_streak    = excluded.current_streak,
		longest_streak    = excluded.longest_streak,
		last_active_date  = excluded.last_active_date,
		total_active_days = excluded.total_active_days,
		history           = excluded.history`

func streakArgs(userID string, s domain.StreakState) ([]any, error) {
	history := s.History
	if history == nil {
		history = []domain.ActivityDay{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return nil, err
	}
	return []any{userID, s.CurrentStreak, s.LongestStreak, s.LastActiveDate, s.TotalActiveDays, string(raw)}, nil
}

// SaveStreak upserts the streak document. Freezes are left alone; they only
// change through ConsumeStreakFreeze and AddStreakFreezes.
func (d *DB) SaveStreak(ctx context.Context, userID string, s domain.StreakState) error {
	args, err := streakArgs(userID, s)
	if err != nil {
		return storeErr("encode streak history", err)
	}
	_, err = d.db.ExecContext(ctx, upsertStreakSQL, args...)
	return storeErr("save streak", err)
}

// SaveCheckIn writes the advanced streak and applies grants in one
// transaction. The streak is only replaced while its last_active_date still
// equals prevDate; if another check-in got there first it returns false and
// changes nothing.
func (d *DB) SaveCheckIn(ctx context.Context, userID, prevDate string, s domain.StreakState, grants []domain.XPGrant, levelOf domain.LevelFunc) ([]domain.XPChange, bool, error) {
	args, err := streakArgs(userID, s)
	if err != nil {
		return nil, false, storeErr("encode streak history", err)
	}

	var (
		changes []domain.XPChange
		saved   bool
	)
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			upsertStreakSQL+` WHERE streaks.last_active_date = ?`, append(args, prevDate)...,
		)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil
		}
		for _, g := range grants {
			change, err := applyGrant(ctx, tx, g, levelOf)
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}
		saved = true
		return nil
	})
	if err != nil {
		return nil, false, storeErr("save check-in", err)
	}
	return changes, saved, nil
}

// ConsumeStreakFreeze decrements the freeze count only if one is available.
func (d *DB) ConsumeStreakFreeze(ctx context.Context, userID string) (int, bool, error) {
	var remaining int
	err := d.db.QueryRowContext(ctx,
		`UPDATE streaks SET streak_freezes = streak_freezes - 1
		 WHERE user_id = ? AND streak_freezes > 0
		 RETURNING streak_freezes`, userID,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeErr("consume streak freeze", err)
	}
	return remaining, true, nil
}

// AddStreakFreezes credits n freezes and returns the new balance.
func (d *DB) AddStreakFreezes(ctx context.Context, userID string, n int) (int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO streaks (user_id, streak_freezes) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET streak_freezes = streak_freezes + excluded.streak_freezes
		 RETURNING streak_freezes`, userID, n,
	).Scan(&total)
	return total, storeErr("add streak freezes", err)
}
