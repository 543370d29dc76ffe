// Package progression is the gamification engine: it turns user actions into
// XP, derives levels, tracks daily streaks, awards badges, resolves titles,
// ranks users and runs daily quests.
//
// Authoritative state lives in the store. The engine re-reads what it needs
// for every operation and keeps nothing per-user in memory.
package progression

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dadbase/dadbase/internal/domain"
	"github.com/dadbase/dadbase/internal/infra/metrics"
)

// Defaults applied by New when the matching Config field is zero.
const (
	DefaultLeaderboardSize = 50
	DefaultDailyQuestCount = 3
	DefaultHistoryLimit    = 90
)

// Config tunes an Engine. Zero values fall back to the defaults.
type Config struct {
	Location        *time.Location // calendar-day boundaries; default time.Local
	LeaderboardSize int
	DailyQuestCount int
	HistoryLimit    int
	Notifier        domain.Notifier
	Clock           domain.Clock
	Seed            func() int64 // quest roll seed; default clock nanos
}

// Engine implements every progression operation on top of a domain.Store.
type Engine struct {
	store    domain.Store
	catalog  *Catalog
	levels   LevelTable
	notifier domain.Notifier
	clock    domain.Clock
	loc      *time.Location
	seed     func() int64

	leaderboardSize int
	questCount      int
	historyLimit    int
}

// New validates the catalog and builds an engine. A nil catalog means the
// built-in one.
func New(store domain.Store, catalog *Catalog, cfg Config) (*Engine, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		store:           store,
		catalog:         catalog,
		levels:          LevelTable(catalog.Levels),
		notifier:        cfg.Notifier,
		clock:           cfg.Clock,
		loc:             cfg.Location,
		seed:            cfg.Seed,
		leaderboardSize: cfg.LeaderboardSize,
		questCount:      cfg.DailyQuestCount,
		historyLimit:    cfg.HistoryLimit,
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.clock == nil {
		e.clock = domain.SystemClock{}
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.seed == nil {
		e.seed = func() int64 { return e.clock.Now().UnixNano() }
	}
	if e.leaderboardSize <= 0 {
		e.leaderboardSize = DefaultLeaderboardSize
	}
	if e.questCount <= 0 {
		e.questCount = DefaultDailyQuestCount
	}
	if e.historyLimit <= 0 {
		e.historyLimit = DefaultHistoryLimit
	}
	return e, nil
}

// Catalog returns the engine's read-only catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Levels returns the engine's level table.
func (e *Engine) Levels() LevelTable { return e.levels }

// ─── Users ──────────────────────────────────────────────────────────────────

// EnsureUser creates the progression record for a user on first login.
// Calling it again is a no-op apart from refreshing non-empty profile fields.
func (e *Engine) EnsureUser(ctx context.Context, userID, name, avatar string) (domain.UserProgression, error) {
	if userID == "" {
		return domain.UserProgression{}, fmt.Errorf("ensure user: %w", domain.ErrUserNotFound)
	}
	return e.store.EnsureUser(ctx, userID, name, avatar, e.clock.Now())
}

// Summary is everything a profile page shows about a user's progression.
type Summary struct {
	User            domain.UserProgression   `json:"user"`
	Level           domain.LevelDefinition   `json:"level"`
	NextLevel       *domain.LevelDefinition  `json:"next_level,omitempty"`
	XPToNextLevel   int64                    `json:"xp_to_next_level"`
	ProgressPercent int                      `json:"progress_percent"`
	Badges          []domain.BadgeDefinition `json:"badges"`
	AvailableTitles []domain.TitleDefinition `json:"available_titles"`
	Streak          domain.StreakState       `json:"streak"`
	Counters        domain.Counters          `json:"counters"`
}

// Summary assembles the user's level, badges, titles and streak.
func (e *Engine) Summary(ctx context.Context, userID string) (Summary, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	counters, err := e.store.GetCounters(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	streak, err := e.store.GetStreak(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	titles, err := e.availableTitles(user, snapshot(user, counters, streak))
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		User:            user,
		Level:           e.levels.LevelOf(user.XP),
		XPToNextLevel:   e.levels.XPToNextLevel(user.XP),
		ProgressPercent: e.levels.ProgressPercent(user.XP),
		Badges:          []domain.BadgeDefinition{},
		AvailableTitles: titles,
		Streak:          streak,
		Counters:        counters,
	}
	if next, ok := e.levels.Next(user.XP); ok {
		s.NextLevel = &next
	}
	for _, id := range user.Badges {
		if b, ok := e.catalog.Badge(id); ok {
			s.Badges = append(s.Badges, b)
		}
	}
	return s, nil
}

// History returns the user's most recent XP ledger entries, newest first.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]domain.XPGrant, error) {
	if limit <= 0 {
		limit = 50
	}
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.store.ListXPGrants(ctx, userID, limit)
}

// ─── Action Tracking ────────────────────────────────────────────────────────

// actionCounters maps user actions to the counter they bump.
var actionCounters = map[domain.XPReason]domain.Counter{
	domain.XPPostCreated:   domain.CounterPosts,
	domain.XPCommentAdded:  domain.CounterComments,
	domain.XPReactionGiven: domain.CounterReactions,
	domain.XPFriendAdded:   domain.CounterFriends,
	domain.XPJokePosted:    domain.CounterJokes,
	domain.XPEventCreated:  domain.CounterEvents,
	domain.XPGroupJoined:   domain.CounterGroups,
	domain.XPGroupCreated:  domain.CounterGroups,
	domain.XPStoryShared:   domain.CounterStories,
}

// reservedReasons are granted by the engine itself and cannot be tracked.
var reservedReasons = map[domain.XPReason]bool{
	domain.XPFirstPost:      true,
	domain.XPDailyLogin:     true,
	domain.XPStreakBonus:    true,
	domain.XPBadgeEarned:    true,
	domain.XPQuestCompleted: true,
}

// TrackResult reports what one tracked action changed.
type TrackResult struct {
	Action    domain.XPReason        `json:"action"`
	Counter   domain.Counter         `json:"counter,omitempty"`
	Count     int64                  `json:"count,omitempty"`
	XP        int64                  `json:"xp"`
	LeveledUp bool                   `json:"leveled_up"`
	Quests    []domain.QuestProgress `json:"quests,omitempty"`
	NewBadges []string               `json:"new_badges"`
}

// Track records that the user did something: it bumps the mapped counter
// and grants the action's XP in one store write, then advances today's
// matching quests and runs one badge scan. A user's very first post also
// earns the first_post bonus.
func (e *Engine) Track(ctx context.Context, userID string, action domain.XPReason) (TrackResult, error) {
	if _, ok := baseXP[action]; !ok {
		return TrackResult{}, fmt.Errorf("track %q: %w", action, domain.ErrUnknownReason)
	}
	if reservedReasons[action] {
		return TrackResult{}, fmt.Errorf("track %q: %w", action, domain.ErrReservedReason)
	}
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return TrackResult{}, err
	}

	var grants []domain.XPGrant
	grantsFor := func(count int64) []domain.XPGrant {
		grants = []domain.XPGrant{e.newGrant(userID, action, mustXPAmount(action, 1), 1)}
		if action == domain.XPPostCreated && count == 1 {
			grants = append(grants, e.newGrant(userID, domain.XPFirstPost, mustXPAmount(domain.XPFirstPost, 1), 1))
		}
		return grants
	}
	counter := actionCounters[action]
	count, changes, err := e.store.TrackAction(ctx, userID, counter, grantsFor, e.levels.Level)
	if err != nil {
		return TrackResult{}, err
	}

	res := TrackResult{Action: action, NewBadges: []string{}}
	if counter != "" {
		res.Counter, res.Count = counter, count
	}
	for i, g := range grants {
		e.afterGrant(ctx, g, changes[i])
		res.XP += g.Amount
		res.LeveledUp = res.LeveledUp || changes[i].LeveledUp()
	}

	res.Quests, err = e.RecordAction(ctx, userID, action, 1)
	if err != nil {
		return res, err
	}

	badges, err := e.ScanAndAward(ctx, userID)
	res.NewBadges = append(res.NewBadges, badges...)
	if err != nil {
		return res, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"action":  action,
		"xp":      res.XP,
	}).Debug("action tracked")
	return res, nil
}

// ─── Notifications ──────────────────────────────────────────────────────────

// emit sends a signal to the notifier. Failures are logged, never returned.
func (e *Engine) emit(ctx context.Context, n domain.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = e.clock.Now()
	}
	metrics.NotificationsEmitted.WithLabelValues(string(n.Type)).Inc()
	if err := e.notifier.Notify(ctx, n); err != nil {
		log.WithFields(log.Fields{
			"user_id": n.UserID,
			"type":    n.Type,
		}).WithError(err).Warn("notification dropped")
	}
}

func (e *Engine) emitLevelUp(ctx context.Context, userID string, change domain.XPChange) {
	newLevel, _ := e.levels.ByNumber(change.NewLevel)
	e.emit(ctx, domain.Notification{
		UserID:   userID,
		Type:     domain.NotifyLevelUp,
		Title:    "Level Up!",
		Body:     fmt.Sprintf("You reached level %d: %s", newLevel.Level, newLevel.Name),
		OldLevel: change.OldLevel,
		NewLevel: change.NewLevel,
		XP:       change.NewXP,
	})
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.Notification) error { return nil }
