package progression

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dadbase/dadbase/internal/domain"
	"github.com/dadbase/dadbase/internal/infra/metrics"
)

// ScanAndAward checks every badge the user does not hold against a fresh
// metrics snapshot and awards the satisfied ones. Eligible badges are
// collected first and then awarded in catalog order; XP from those awards
// is not rescanned in the same call.
//
// Returns the newly awarded ids, empty when nothing qualified.
func (e *Engine) ScanAndAward(ctx context.Context, userID string) ([]string, error) {
	start := time.Now()
	defer func() { metrics.BadgeScanDuration.Observe(time.Since(start).Seconds()) }()

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	m, err := e.snapshot(ctx, user)
	if err != nil {
		return nil, err
	}

	var eligible []domain.BadgeDefinition
	for _, b := range e.catalog.Badges {
		if user.HasBadge(b.ID) {
			continue
		}
		ok, err := meets(m, b.Requirement)
		if err != nil {
			return nil, fmt.Errorf("badge %q: %w", b.ID, err)
		}
		if ok {
			eligible = append(eligible, b)
		}
	}

	awarded := []string{}
	for _, b := range eligible {
		g := e.newGrant(userID, domain.XPBadgeEarned, mustXPAmount(domain.XPBadgeEarned, 1), 1)
		change, ok, err := e.store.AwardBadge(ctx, userID, b.ID, g, e.levels.Level)
		if err != nil {
			return awarded, fmt.Errorf("award badge %q: %w", b.ID, err)
		}
		if !ok {
			continue // a concurrent scan got there first
		}
		awarded = append(awarded, b.ID)

		metrics.BadgesAwarded.WithLabelValues(b.ID).Inc()
		log.WithFields(log.Fields{
			"user_id": userID,
			"badge":   b.ID,
			"rarity":  b.Rarity,
		}).Info("badge unlocked")
		e.emit(ctx, domain.Notification{
			UserID:  userID,
			Type:    domain.NotifyBadgeUnlocked,
			Title:   "Badge Unlocked: " + b.Name,
			Body:    b.Description,
			BadgeID: b.ID,
			XP:      g.Amount,
		})
		e.afterGrant(ctx, g, change)
	}
	return awarded, nil
}

// Metrics returns the user's current threshold snapshot.
func (e *Engine) Metrics(ctx context.Context, userID string) (domain.Metrics, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return domain.Metrics{}, err
	}
	return e.snapshot(ctx, user)
}

func (e *Engine) snapshot(ctx context.Context, user domain.UserProgression) (domain.Metrics, error) {
	counters, err := e.store.GetCounters(ctx, user.UserID)
	if err != nil {
		return domain.Metrics{}, err
	}
	streak, err := e.store.GetStreak(ctx, user.UserID)
	if err != nil {
		return domain.Metrics{}, err
	}
	return snapshot(user, counters, streak), nil
}

// snapshot builds the metrics a requirement is compared against.
// The streak dimension is the longest streak ever reached.
func snapshot(user domain.UserProgression, c domain.Counters, s domain.StreakState) domain.Metrics {
	return domain.Metrics{
		Posts:        c.Posts,
		Comments:     c.Comments,
		Friends:      c.Friends,
		Jokes:        c.Jokes,
		Events:       c.Events,
		Groups:       c.Groups,
		Stories:      c.Stories,
		Reactions:    c.Reactions,
		StreakLength: int64(s.LongestStreak),
		XP:           user.XP,
		Level:        int64(user.Level),
	}
}

// meets compares the named metric against the threshold. Special
// requirements never match here; they are granted out-of-band.
func meets(m domain.Metrics, r domain.Requirement) (bool, error) {
	if r.Dimension == domain.DimSpecial {
		return false, nil
	}
	v, err := m.Value(r.Dimension)
	if err != nil {
		return false, fmt.Errorf("%w %q", err, r.Dimension)
	}
	return v >= r.Threshold, nil
}
