package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the engine depends on them.

// LevelFunc maps cumulative XP to a level number.
type LevelFunc func(xp int64) int

// UserStore holds per-user cumulative XP, level, badges and titles.
// Every method that changes XP does so with an atomic in-store increment and
// persists the recomputed level and the audit event in the same transaction.
type UserStore interface {
	EnsureUser(ctx context.Context, userID, name, avatar string, at time.Time) (UserProgression, error)
	GetUser(ctx context.Context, userID string) (UserProgression, error)

	// ApplyXPGrant adds grant.Amount to the user's XP and appends the grant.
	ApplyXPGrant(ctx context.Context, grant XPGrant, levelOf LevelFunc) (XPChange, error)

	// AwardBadge inserts the badge and applies grant only if the badge was
	// not already held. Returns false (and no XP change) otherwise.
	AwardBadge(ctx context.Context, userID, badgeID string, grant XPGrant, levelOf LevelFunc) (XPChange, bool, error)

	SetActiveTitle(ctx context.Context, userID, titleID string) error
	AddSpecialTitle(ctx context.Context, userID, titleID string) (bool, error)

	// TopByXP returns users ordered by XP descending, ties in store order.
	TopByXP(ctx context.Context, limit int) ([]UserProgression, error)
	ListXPGrants(ctx context.Context, userID string, limit int) ([]XPGrant, error)
}

// CounterStore holds per-user social/content activity counts.
type CounterStore interface {
	GetCounters(ctx context.Context, userID string) (Counters, error)
	IncrementCounter(ctx context.Context, userID string, c Counter, delta int64) (int64, error)

	// TrackAction bumps c by one and applies grantsFor(newCount) in one
	// transaction. An empty c leaves every counter alone.
	TrackAction(ctx context.Context, userID string, c Counter, grantsFor func(count int64) []XPGrant, levelOf LevelFunc) (int64, []XPChange, error)
}

// StreakStore holds the per-user streak document.
type StreakStore interface {
	// GetStreak returns the zero state when the user has never checked in.
	GetStreak(ctx context.Context, userID string) (StreakState, error)
	SaveStreak(ctx context.Context, userID string, s StreakState) error

	// SaveCheckIn writes s and applies grants in one transaction, but only
	// while the stored last active date still equals prevDate. Returns false
	// (and no XP change) when a concurrent check-in already moved it.
	SaveCheckIn(ctx context.Context, userID, prevDate string, s StreakState, grants []XPGrant, levelOf LevelFunc) ([]XPChange, bool, error)

	// ConsumeStreakFreeze decrements freezes only if at least one remains.
	ConsumeStreakFreeze(ctx context.Context, userID string) (remaining int, ok bool, err error)
	AddStreakFreezes(ctx context.Context, userID string, n int) (int, error)
}

// QuestStore holds per-user, per-day quest progress rows.
type QuestStore interface {
	ReplaceQuests(ctx context.Context, userID, day string, quests []QuestProgress) error
	ListQuests(ctx context.Context, userID, day string) ([]QuestProgress, error)

	// AddQuestProgress raises progress (clamped to target) and flips
	// completion the moment progress reaches target.
	AddQuestProgress(ctx context.Context, userID, day, questID string, delta int, at time.Time) (QuestProgress, error)

	// ClaimQuest sets claimed_at and applies grant only for a completed,
	// unclaimed quest. Returns false (and no XP change) otherwise.
	ClaimQuest(ctx context.Context, userID, day, questID string, grant XPGrant, levelOf LevelFunc) (XPChange, bool, error)

	DeleteQuestsBefore(ctx context.Context, day string) (int64, error)
}

// NotificationStore persists signals for later display.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n Notification) (int64, error)
	ListPendingNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkNotificationShown(ctx context.Context, userID string, id int64) error
}

// Store is everything the engine reads and writes.
type Store interface {
	UserStore
	CounterStore
	StreakStore
	QuestStore
}

// Notifier accepts emitted signals. Implementations must not block for long;
// the engine logs and ignores their errors.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
