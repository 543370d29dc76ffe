package progression

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/dadbase/dadbase/internal/domain"
	"github.com/dadbase/dadbase/internal/infra/metrics"
)

// NotificationService persists signals for display on the user's next visit.
// It is a domain.Notifier sink.
type NotificationService struct {
	store domain.NotificationStore
}

// NewNotificationService creates a store-backed notification service.
func NewNotificationService(store domain.NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// Notify stores the notification as pending.
func (n *NotificationService) Notify(ctx context.Context, notif domain.Notification) error {
	notif.Shown = false
	if _, err := n.store.InsertNotification(ctx, notif); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Pending returns the user's unshown notifications, oldest first.
func (n *NotificationService) Pending(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return n.store.ListPendingNotifications(ctx, userID, limit)
}

// MarkShown marks a notification as displayed.
func (n *NotificationService) MarkShown(ctx context.Context, userID string, id int64) error {
	return n.store.MarkNotificationShown(ctx, userID, id)
}

// LogNotifier writes every signal as a structured log line.
type LogNotifier struct{}

// Notify logs the notification.
func (LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	log.WithFields(log.Fields{
		"user_id":   n.UserID,
		"type":      n.Type,
		"badge_id":  n.BadgeID,
		"quest_id":  n.QuestID,
		"new_level": n.NewLevel,
	}).Info(n.Title)
	return nil
}

// NamedNotifier labels a sink for failure metrics.
type NamedNotifier struct {
	Name string
	domain.Notifier
}

// MultiNotifier fans a signal out to every sink. Every sink is tried; the
// failures are counted and joined into the returned error.
type MultiNotifier []NamedNotifier

// Notify delivers n to all sinks.
func (m MultiNotifier) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			metrics.NotifierFailures.WithLabelValues(sink.Name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
		}
	}
	return errors.Join(errs...)
}
