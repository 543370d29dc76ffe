package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dadbase/dadbase/internal/domain"
)

// ─── Daily Quests ───────────────────────────────────────────────────────────

const questColumns = `user_id, day, quest_id, category, title, description, action,
	target, progress, reward_xp, completed, completed_at, claimed_at`

// ReplaceQuests discards the user's quests for day and stores the new roll.
func (d *DB) ReplaceQuests(ctx context.Context, userID, day string, quests []domain.QuestProgress) error {
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM quests WHERE user_id = ? AND day = ?`, userID, day,
		); err != nil {
			return err
		}
		for i, q := range quests {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO quests (user_id, day, quest_id, position, category, title, description,
					action, target, progress, reward_xp, completed, completed_at, claimed_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				userID, day, q.Quest.ID, i, string(q.Quest.Category), q.Quest.Title, q.Quest.Description,
				string(q.Quest.Action), q.Quest.Target, q.Progress, q.Quest.RewardXP, q.Completed,
				nullableUnix(q.CompletedAt), nullableUnix(q.ClaimedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
	return storeErr("replace quests", err)
}

// ListQuests returns the user's quests for day in roll order.
func (d *DB) ListQuests(ctx context.Context, userID, day string) ([]domain.QuestProgress, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+questColumns+` FROM quests WHERE user_id = ? AND day = ? ORDER BY position ASC`,
		userID, day,
	)
	if err != nil {
		return nil, storeErr("list quests", err)
	}
	defer rows.Close()

	var quests []domain.QuestProgress
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, storeErr("list quests", err)
		}
		quests = append(quests, q)
	}
	return quests, storeErr("list quests", rows.Err())
}

// AddQuestProgress raises progress by delta, clamped to target. The first
// update that reaches target stamps completed_at; later ones leave it alone.
func (d *DB) AddQuestProgress(ctx context.Context, userID, day, questID string, delta int, at time.Time) (domain.QuestProgress, error) {
	row := d.db.QueryRowContext(ctx,
		`UPDATE quests SET
			progress     = MIN(progress + ?, target),
			completed    = (MIN(progress + ?, target) >= target),
			completed_at = CASE
				WHEN completed_at IS NULL AND MIN(progress + ?, target) >= target THEN ?
				ELSE completed_at END
		 WHERE user_id = ? AND day = ? AND quest_id = ?
		 RETURNING `+questColumns,
		delta, delta, delta, at.Unix(), userID, day, questID,
	)
	q, err := scanQuest(row)
	return q, storeErr("add quest progress", err)
}

// ClaimQuest stamps claimed_at and pays grant in one transaction, but only
// for a completed quest that has not been claimed yet.
func (d *DB) ClaimQuest(ctx context.Context, userID, day, questID string, grant domain.XPGrant, levelOf domain.LevelFunc) (domain.XPChange, bool, error) {
	var (
		change  domain.XPChange
		claimed bool
	)
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE quests SET claimed_at = ?
			 WHERE user_id = ? AND day = ? AND quest_id = ? AND completed = 1 AND claimed_at IS NULL`,
			grant.CreatedAt.Unix(), userID, day, questID,
		)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil
		}
		change, err = applyGrant(ctx, tx, grant, levelOf)
		if err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return domain.XPChange{}, false, storeErr("claim quest", err)
	}
	return change, claimed, nil
}

// DeleteQuestsBefore drops every quest row older than day.
func (d *DB) DeleteQuestsBefore(ctx context.Context, day string) (int64, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM quests WHERE day < ?`, day)
	if err != nil {
		return 0, storeErr("delete quests", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func scanQuest(s scanner) (domain.QuestProgress, error) {
	var (
		q                    domain.QuestProgress
		category, action     string
		completedAt, claimed sql.NullInt64
	)
	err := s.Scan(&q.UserID, &q.Day, &q.Quest.ID, &category, &q.Quest.Title, &q.Quest.Description,
		&action, &q.Quest.Target, &q.Progress, &q.Quest.RewardXP, &q.Completed, &completedAt, &claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return q, domain.ErrQuestNotFound
	}
	if err != nil {
		return q, err
	}
	q.Quest.Category = domain.QuestCategory(category)
	q.Quest.Action = domain.XPReason(action)
	q.CompletedAt = timePtr(completedAt)
	q.ClaimedAt = timePtr(claimed)
	return q, nil
}
