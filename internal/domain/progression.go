// Package domain holds the progression engine types.
// The progression engine turns user actions into XP, derives levels,
// tracks daily streaks, awards badges, resolves titles, ranks users and
// runs daily quests. Types here are pure; storage lives in infra.
package domain

import (
	"slices"
	"time"
)

// DateLayout is the calendar-day key used for streaks, history and quests.
const DateLayout = "2006-01-02"

// ─── XP Types ───────────────────────────────────────────────────────────────

// XPReason categorizes why XP was granted. Each reason has a fixed base amount.
type XPReason string

const (
	XPPostCreated      XPReason = "post_created"
	XPFirstPost        XPReason = "first_post"
	XPCommentAdded     XPReason = "comment_added"
	XPReactionGiven    XPReason = "reaction_given"
	XPFriendAdded      XPReason = "friend_added"
	XPJokePosted       XPReason = "joke_posted"
	XPEventCreated     XPReason = "event_created"
	XPEventAttended    XPReason = "event_attended"
	XPGroupJoined      XPReason = "group_joined"
	XPGroupCreated     XPReason = "group_created"
	XPStoryShared      XPReason = "story_shared"
	XPPhotoUploaded    XPReason = "photo_uploaded"
	XPProfileCompleted XPReason = "profile_completed"
	XPChoreCompleted   XPReason = "chore_completed"
	XPDailyLogin       XPReason = "daily_login"
	XPStreakBonus      XPReason = "streak_bonus"
	XPBadgeEarned      XPReason = "badge_earned"
	XPQuestCompleted   XPReason = "quest_completed"
	XPReferralBonus    XPReason = "referral_bonus"
)

// XPGrant is one append-only audit entry of the XP ledger.
type XPGrant struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Reason     XPReason  `json:"reason"`
	Amount     int64     `json:"amount"`
	Multiplier float64   `json:"multiplier"`
	CreatedAt  time.Time `json:"created_at"`
}

// XPChange is the store-confirmed result of applying a grant.
type XPChange struct {
	OldXP    int64 `json:"old_xp"`
	NewXP    int64 `json:"new_xp"`
	OldLevel int   `json:"old_level"`
	NewLevel int   `json:"new_level"`
}

// LeveledUp reports whether the change crossed at least one level threshold.
func (c XPChange) LeveledUp() bool {
	return c.NewLevel > c.OldLevel
}

// ─── Level Types ────────────────────────────────────────────────────────────

// LevelDefinition is one row of the static level table.
type LevelDefinition struct {
	Level int    `json:"level" toml:"level"`
	Name  string `json:"name" toml:"name"`
	MinXP int64  `json:"min_xp" toml:"min_xp"`
	Icon  string `json:"icon" toml:"icon"`
	Color string `json:"color" toml:"color"`
}

// ─── User Types ─────────────────────────────────────────────────────────────

// UserProgression is the part of the user record owned by the engine.
type UserProgression struct {
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Avatar        string    `json:"avatar"`
	XP            int64     `json:"xp"`
	Level         int       `json:"level"`
	Badges        []string  `json:"badges"` // insertion order
	ActiveTitle   string    `json:"active_title,omitempty"`
	SpecialTitles []string  `json:"special_titles,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasBadge reports whether the badge is already in the earned set.
func (u UserProgression) HasBadge(id string) bool {
	return slices.Contains(u.Badges, id)
}

// Counter names one per-user social/content activity count.
type Counter string

const (
	CounterPosts     Counter = "posts"
	CounterComments  Counter = "comments"
	CounterFriends   Counter = "friends"
	CounterJokes     Counter = "jokes"
	CounterEvents    Counter = "events"
	CounterGroups    Counter = "groups"
	CounterStories   Counter = "stories"
	CounterReactions Counter = "reactions"
)

// AllCounters lists every counter in storage column order.
var AllCounters = []Counter{
	CounterPosts, CounterComments, CounterFriends, CounterJokes,
	CounterEvents, CounterGroups, CounterStories, CounterReactions,
}

// Counters is a snapshot of the per-user counters store.
type Counters struct {
	Posts     int64 `json:"posts"`
	Comments  int64 `json:"comments"`
	Friends   int64 `json:"friends"`
	Jokes     int64 `json:"jokes"`
	Events    int64 `json:"events"`
	Groups    int64 `json:"groups"`
	Stories   int64 `json:"stories"`
	Reactions int64 `json:"reactions"`
}

// ─── Badge / Title Types ────────────────────────────────────────────────────

// Dimension is a measurable quantity a badge or title threshold applies to.
type Dimension string

const (
	DimPosts     Dimension = "posts"
	DimComments  Dimension = "comments"
	DimFriends   Dimension = "friends"
	DimJokes     Dimension = "jokes"
	DimEvents    Dimension = "events"
	DimGroups    Dimension = "groups"
	DimStories   Dimension = "stories"
	DimReactions Dimension = "reactions"
	DimStreak    Dimension = "streak"
	DimXP        Dimension = "xp"
	DimLevel     Dimension = "level"
	DimSpecial   Dimension = "special" // titles only, granted out-of-band
)

// Rarity grades a badge.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Requirement is a single threshold on one dimension.
// Condition names the out-of-band rule for special titles.
type Requirement struct {
	Dimension Dimension `json:"dimension" toml:"dimension"`
	Threshold int64     `json:"threshold" toml:"threshold"`
	Condition string    `json:"condition,omitempty" toml:"condition"`
}

// BadgeDefinition is one immutable badge catalog entry.
type BadgeDefinition struct {
	ID          string      `json:"id" toml:"id"`
	Name        string      `json:"name" toml:"name"`
	Icon        string      `json:"icon" toml:"icon"`
	Description string      `json:"description" toml:"description"`
	Rarity      Rarity      `json:"rarity" toml:"rarity"`
	Requirement Requirement `json:"requirement" toml:"requirement"`
}

// TitleDefinition is one cosmetic title catalog entry.
type TitleDefinition struct {
	ID          string      `json:"id" toml:"id"`
	Name        string      `json:"name" toml:"name"`
	Icon        string      `json:"icon" toml:"icon"`
	Description string      `json:"description" toml:"description"`
	Rarity      Rarity      `json:"rarity" toml:"rarity"`
	Requirement Requirement `json:"requirement" toml:"requirement"`
}

// Metrics is the snapshot fed to badge and title threshold checks.
type Metrics struct {
	Posts        int64 `json:"posts"`
	Comments     int64 `json:"comments"`
	Friends      int64 `json:"friends"`
	Jokes        int64 `json:"jokes"`
	Events       int64 `json:"events"`
	Groups       int64 `json:"groups"`
	Stories      int64 `json:"stories"`
	Reactions    int64 `json:"reactions"`
	StreakLength int64 `json:"streak_length"` // longest streak
	XP           int64 `json:"xp"`
	Level        int64 `json:"level"`
}

// Value returns the metric named by d.
func (m Metrics) Value(d Dimension) (int64, error) {
	switch d {
	case DimPosts:
		return m.Posts, nil
	case DimComments:
		return m.Comments, nil
	case DimFriends:
		return m.Friends, nil
	case DimJokes:
		return m.Jokes, nil
	case DimEvents:
		return m.Events, nil
	case DimGroups:
		return m.Groups, nil
	case DimStories:
		return m.Stories, nil
	case DimReactions:
		return m.Reactions, nil
	case DimStreak:
		return m.StreakLength, nil
	case DimXP:
		return m.XP, nil
	case DimLevel:
		return m.Level, nil
	}
	return 0, ErrUnknownDimension
}

// ─── Streak Types ───────────────────────────────────────────────────────────

// ActivityDay is one entry of the bounded activity history.
type ActivityDay struct {
	Date     string `json:"date"`
	Active   bool   `json:"active"`
	XPEarned int64  `json:"xp_earned"`
}

// StreakState tracks consecutive active calendar days.
// LastActiveDate is a DateLayout key, empty before the first check-in.
type StreakState struct {
	CurrentStreak   int           `json:"current_streak"`
	LongestStreak   int           `json:"longest_streak"`
	LastActiveDate  string        `json:"last_active_date"`
	StreakFreezes   int           `json:"streak_freezes"`
	TotalActiveDays int           `json:"total_active_days"`
	History         []ActivityDay `json:"activity_history"`
}

// StreakTransition names the outcome of a check-in.
type StreakTransition string

const (
	StreakNoop     StreakTransition = "noop"
	StreakContinue StreakTransition = "continue"
	StreakReset    StreakTransition = "reset"
)

// ─── Leaderboard Types ──────────────────────────────────────────────────────

// LeaderboardType selects the ranking window.
type LeaderboardType string

const (
	LeaderboardWeekly  LeaderboardType = "weekly"
	LeaderboardMonthly LeaderboardType = "monthly"
	LeaderboardAllTime LeaderboardType = "allTime"
)

// ParseLeaderboardType validates a selector. Empty means all-time.
func ParseLeaderboardType(s string) (LeaderboardType, error) {
	switch LeaderboardType(s) {
	case "":
		return LeaderboardAllTime, nil
	case LeaderboardWeekly, LeaderboardMonthly, LeaderboardAllTime:
		return LeaderboardType(s), nil
	}
	return "", ErrUnknownLeaderboardType
}

// LeaderboardEntry is one ranked row. Derived, never stored.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	XP     int64  `json:"xp"`
	Level  int    `json:"level"`
	IsYou  bool   `json:"is_you"`
}

// Leaderboard is a ranked window plus the requester's rank.
// YourRank is 0 and RankKnown false when the requester is outside the window.
type Leaderboard struct {
	Type      LeaderboardType    `json:"type"`
	Entries   []LeaderboardEntry `json:"entries"`
	YourRank  int                `json:"your_rank"`
	RankKnown bool               `json:"rank_known"`
}

// ─── Quest Types ────────────────────────────────────────────────────────────

// QuestCategory groups quests for the daily roll.
type QuestCategory string

const (
	QuestSocial   QuestCategory = "social"
	QuestContent  QuestCategory = "content"
	QuestActivity QuestCategory = "activity"
)

// QuestDefinition is one entry of the quest pool.
type QuestDefinition struct {
	ID          string        `json:"id" toml:"id"`
	Category    QuestCategory `json:"category" toml:"category"`
	Title       string        `json:"title" toml:"title"`
	Description string        `json:"description" toml:"description"`
	Action      XPReason      `json:"action" toml:"action"`
	Target      int           `json:"target" toml:"target"`
	RewardXP    int64         `json:"reward_xp" toml:"reward_xp"`
}

// QuestProgress is a user's progress on one quest for one day.
type QuestProgress struct {
	UserID      string          `json:"user_id"`
	Day         string          `json:"day"`
	Quest       QuestDefinition `json:"quest"`
	Progress    int             `json:"progress"`
	Completed   bool            `json:"completed"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
}

// ProgressPct returns completion percentage (0-100).
func (q QuestProgress) ProgressPct() float64 {
	if q.Quest.Target <= 0 {
		return 100.0
	}
	pct := float64(q.Progress) / float64(q.Quest.Target) * 100.0
	if pct > 100.0 {
		pct = 100.0
	}
	return pct
}

// Claimable reports whether Claim would pay out.
func (q QuestProgress) Claimable() bool {
	return q.Completed && q.ClaimedAt == nil
}

// ─── Notification Types ─────────────────────────────────────────────────────

// NotificationType categorizes emitted signals.
type NotificationType string

const (
	NotifyLevelUp       NotificationType = "level_up"
	NotifyBadgeUnlocked NotificationType = "badge_unlocked"
	NotifyQuestClaimed  NotificationType = "quest_claimed"
)

// Notification is a fire-and-forget signal for the UI.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	OldLevel  int              `json:"old_level,omitempty"`
	NewLevel  int              `json:"new_level,omitempty"`
	BadgeID   string           `json:"badge_id,omitempty"`
	QuestID   string           `json:"quest_id,omitempty"`
	XP        int64            `json:"xp,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Shown     bool             `json:"shown"`
}
