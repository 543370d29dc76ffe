package sqlite

import (
	"context"
	"time"

	"github.com/dadbase/dadbase/internal/domain"
)

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification stores a notification for later display.
func (d *DB) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, body, old_level, new_level, badge_id, quest_id, xp, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.UserID, string(n.Type), n.Title, n.Body, n.OldLevel, n.NewLevel, n.BadgeID, n.QuestID, n.XP, n.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, storeErr("insert notification", err)
	}
	return result.LastInsertId()
}

// ListPendingNotifications returns unshown notifications, oldest first.
func (d *DB) ListPendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, type, title, body, old_level, new_level, badge_id, quest_id, xp, created_at, shown
		 FROM notifications WHERE user_id = ? AND shown = 0 ORDER BY id ASC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n         domain.Notification
			typ       string
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &n.OldLevel, &n.NewLevel,
			&n.BadgeID, &n.QuestID, &n.XP, &createdAt, &n.Shown); err != nil {
			return nil, storeErr("list notifications", err)
		}
		n.Type = domain.NotificationType(typ)
		n.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, n)
	}
	return out, storeErr("list notifications", rows.Err())
}

// MarkNotificationShown flags a notification as displayed.
func (d *DB) MarkNotificationShown(ctx context.Context, userID string, id int64) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE notifications SET shown = 1 WHERE id = ? AND user_id = ?`, id, userID,
	)
	return storeErr("mark notification shown", err)
}
