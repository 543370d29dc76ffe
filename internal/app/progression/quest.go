package progression

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dadbase/dadbase/internal/domain"
	"github.com/dadbase/dadbase/internal/infra/metrics"
)

// questCategories is the order categories are guaranteed in a roll.
var questCategories = []domain.QuestCategory{
	domain.QuestSocial,
	domain.QuestContent,
	domain.QuestActivity,
}

// SelectQuests picks count quests from pool: one per category first (when
// the category has any), then the rest from the shuffled pool. No quest is
// picked twice.
func SelectQuests(pool []domain.QuestDefinition, count int, rng *rand.Rand) []domain.QuestDefinition {
	count = min(count, len(pool))
	shuffled := slices.Clone(pool)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	selected := make([]domain.QuestDefinition, 0, count)
	used := make(map[string]bool, count)
	for _, cat := range questCategories {
		if len(selected) == count {
			break
		}
		for _, q := range shuffled {
			if q.Category == cat {
				selected = append(selected, q)
				used[q.ID] = true
				break
			}
		}
	}
	for _, q := range shuffled {
		if len(selected) == count {
			break
		}
		if !used[q.ID] {
			selected = append(selected, q)
			used[q.ID] = true
		}
	}
	return selected
}

// RollDailyQuests replaces the user's quests for today with a fresh roll.
// The selection is reseeded on every call.
func (e *Engine) RollDailyQuests(ctx context.Context, userID string) ([]domain.QuestProgress, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.roll(ctx, userID, e.today())
}

func (e *Engine) roll(ctx context.Context, userID, day string) ([]domain.QuestProgress, error) {
	rng := rand.New(rand.NewSource(e.seed()))
	defs := SelectQuests(e.catalog.Quests, e.questCount, rng)

	quests := make([]domain.QuestProgress, 0, len(defs))
	for _, def := range defs {
		quests = append(quests, domain.QuestProgress{UserID: userID, Day: day, Quest: def})
	}
	if err := e.store.ReplaceQuests(ctx, userID, day, quests); err != nil {
		return nil, err
	}

	metrics.QuestsRolled.Inc()
	log.WithFields(log.Fields{"user_id": userID, "day": day, "count": len(quests)}).Debug("daily quests rolled")
	return quests, nil
}

// DailyQuests returns today's quests, rolling them on the first access of
// the day.
func (e *Engine) DailyQuests(ctx context.Context, userID string) ([]domain.QuestProgress, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	day := e.today()
	quests, err := e.store.ListQuests(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if len(quests) > 0 {
		return quests, nil
	}
	return e.roll(ctx, userID, day)
}

// RecordQuestProgress raises one of today's quests by delta. Progress is
// clamped to the target and completion never reverts.
func (e *Engine) RecordQuestProgress(ctx context.Context, userID, questID string, delta int) (domain.QuestProgress, error) {
	if delta <= 0 {
		return domain.QuestProgress{}, fmt.Errorf("quest %q delta %d: %w", questID, delta, domain.ErrInvalidProgress)
	}
	quests, err := e.DailyQuests(ctx, userID)
	if err != nil {
		return domain.QuestProgress{}, err
	}
	i := slices.IndexFunc(quests, func(q domain.QuestProgress) bool { return q.Quest.ID == questID })
	if i < 0 {
		return domain.QuestProgress{}, fmt.Errorf("quest %q: %w", questID, domain.ErrQuestNotFound)
	}
	return e.advance(ctx, quests[i], delta)
}

// RecordAction advances every incomplete quest of today bound to action and
// returns the advanced quests.
func (e *Engine) RecordAction(ctx context.Context, userID string, action domain.XPReason, delta int) ([]domain.QuestProgress, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("action %q delta %d: %w", action, delta, domain.ErrInvalidProgress)
	}
	quests, err := e.DailyQuests(ctx, userID)
	if err != nil {
		return nil, err
	}

	var advanced []domain.QuestProgress
	for _, q := range quests {
		if q.Quest.Action != action || q.Completed {
			continue
		}
		updated, err := e.advance(ctx, q, delta)
		if err != nil {
			return advanced, err
		}
		advanced = append(advanced, updated)
	}
	return advanced, nil
}

func (e *Engine) advance(ctx context.Context, q domain.QuestProgress, delta int) (domain.QuestProgress, error) {
	updated, err := e.store.AddQuestProgress(ctx, q.UserID, q.Day, q.Quest.ID, delta, e.clock.Now())
	if err != nil {
		return domain.QuestProgress{}, err
	}
	if updated.Completed && !q.Completed {
		metrics.QuestsCompleted.WithLabelValues(string(updated.Quest.Category)).Inc()
		log.WithFields(log.Fields{
			"user_id": q.UserID,
			"quest":   q.Quest.ID,
		}).Info("quest completed")
	}
	return updated, nil
}

// ClaimResult reports the outcome of a quest claim.
type ClaimResult struct {
	Quest     domain.QuestProgress `json:"quest"`
	Claimed   bool                 `json:"claimed"`
	XP        int64                `json:"xp"`
	LeveledUp bool                 `json:"leveled_up"`
	NewBadges []string             `json:"new_badges"`
}

// ClaimQuest pays a completed quest's reward once. Claiming an already
// claimed quest is a no-op with Claimed false; claiming an incomplete one
// fails with ErrQuestNotCompleted.
func (e *Engine) ClaimQuest(ctx context.Context, userID, questID string) (ClaimResult, error) {
	quests, err := e.DailyQuests(ctx, userID)
	if err != nil {
		return ClaimResult{}, err
	}
	i := slices.IndexFunc(quests, func(q domain.QuestProgress) bool { return q.Quest.ID == questID })
	if i < 0 {
		return ClaimResult{}, fmt.Errorf("quest %q: %w", questID, domain.ErrQuestNotFound)
	}
	q := quests[i]
	res := ClaimResult{Quest: q, NewBadges: []string{}}
	if q.ClaimedAt != nil {
		return res, nil
	}
	if !q.Completed {
		return res, fmt.Errorf("quest %q: %w", questID, domain.ErrQuestNotCompleted)
	}

	g := e.newGrant(userID, domain.XPQuestCompleted, q.Quest.RewardXP, 1)
	change, ok, err := e.store.ClaimQuest(ctx, userID, q.Day, questID, g, e.levels.Level)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, nil // claimed concurrently
	}

	claimedAt := time.Unix(g.CreatedAt.Unix(), 0)
	res.Quest.ClaimedAt = &claimedAt
	res.Claimed = true
	res.XP = g.Amount
	res.LeveledUp = change.LeveledUp()

	metrics.QuestsClaimed.WithLabelValues(string(q.Quest.Category)).Inc()
	e.emit(ctx, domain.Notification{
		UserID:  userID,
		Type:    domain.NotifyQuestClaimed,
		Title:   "Quest Complete: " + q.Quest.Title,
		Body:    fmt.Sprintf("+%d XP", g.Amount),
		QuestID: questID,
		XP:      g.Amount,
	})
	e.afterGrant(ctx, g, change)

	res.NewBadges, err = e.ScanAndAward(ctx, userID)
	return res, err
}

// PurgeStaleQuests deletes every quest row from days before today.
func (e *Engine) PurgeStaleQuests(ctx context.Context) (int64, error) {
	n, err := e.store.DeleteQuestsBefore(ctx, e.today())
	if err != nil {
		return 0, err
	}
	metrics.QuestsPurged.Add(float64(n))
	return n, nil
}
