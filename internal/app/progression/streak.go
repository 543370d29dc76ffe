package progression

import (
	"context"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dadbase/dadbase/internal/domain"
	"github.com/dadbase/dadbase/internal/infra/metrics"
)

// streakBonusCap is the streak length at which the bonus stops growing.
const streakBonusCap = 10

// CheckInResult reports the outcome of a daily check-in.
type CheckInResult struct {
	Transition domain.StreakTransition `json:"transition"`
	Streak     domain.StreakState      `json:"streak"`
	XPEarned   int64                   `json:"xp_earned"`
	LeveledUp  bool                    `json:"leveled_up"`
	NewBadges  []string                `json:"new_badges"`
}

// Changed is false for the second and later check-ins of a day.
func (r CheckInResult) Changed() bool { return r.Transition != domain.StreakNoop }

// CheckInToday counts the user as active on the current local calendar day.
//
// The first check-in of a day continues the streak if the previous active
// day was yesterday and resets it to 1 otherwise, then grants daily_login XP
// and, for a continued streak past day one, a streak_bonus scaled by
// min(streak, 10)/10. The streak and both grants land in one store write.
// Later check-ins the same day change nothing.
func (e *Engine) CheckInToday(ctx context.Context, userID string) (CheckInResult, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return CheckInResult{}, err
	}

	today, yesterday := e.calendarDays()
	prev, err := e.store.GetStreak(ctx, userID)
	if err != nil {
		return CheckInResult{}, err
	}

	next, transition := advanceStreak(prev, today, yesterday, e.historyLimit)
	res := CheckInResult{Transition: transition, Streak: next, NewBadges: []string{}}
	if transition == domain.StreakNoop {
		metrics.CheckIns.WithLabelValues(string(transition)).Inc()
		return res, nil
	}

	login := mustXPAmount(domain.XPDailyLogin, 1)
	grants := []domain.XPGrant{e.newGrant(userID, domain.XPDailyLogin, login, 1)}
	if transition == domain.StreakContinue && next.CurrentStreak > 1 {
		bonusMul := float64(min(next.CurrentStreak, streakBonusCap)) / streakBonusCap
		bonus := mustXPAmount(domain.XPStreakBonus, bonusMul)
		if bonus > 0 {
			grants = append(grants, e.newGrant(userID, domain.XPStreakBonus, bonus, bonusMul))
		}
	}
	var earned int64
	for _, g := range grants {
		earned += g.Amount
	}
	next.History[len(next.History)-1].XPEarned = earned

	changes, saved, err := e.store.SaveCheckIn(ctx, userID, prev.LastActiveDate, next, grants, e.levels.Level)
	if err != nil {
		return CheckInResult{}, err
	}
	if !saved {
		// A concurrent check-in moved the streak first.
		current, err := e.store.GetStreak(ctx, userID)
		if err != nil {
			return CheckInResult{}, err
		}
		res.Transition, res.Streak = domain.StreakNoop, current
		return res, nil
	}
	metrics.CheckIns.WithLabelValues(string(transition)).Inc()
	// Freezes are never written by SaveCheckIn; report the stored balance.
	next.StreakFreezes = prev.StreakFreezes
	res.Streak = next

	log.WithFields(log.Fields{
		"user_id":    userID,
		"transition": transition,
		"streak":     next.CurrentStreak,
		"longest":    next.LongestStreak,
	}).Info("daily check-in")

	for i, g := range grants {
		e.afterGrant(ctx, g, changes[i])
		res.XPEarned += g.Amount
		res.LeveledUp = res.LeveledUp || changes[i].LeveledUp()
	}

	if _, err := e.RecordAction(ctx, userID, domain.XPDailyLogin, 1); err != nil {
		return res, err
	}

	badges, err := e.ScanAndAward(ctx, userID)
	res.NewBadges = append(res.NewBadges, badges...)
	return res, err
}

// Streak returns the user's stored streak state.
func (e *Engine) Streak(ctx context.Context, userID string) (domain.StreakState, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return domain.StreakState{}, err
	}
	return e.store.GetStreak(ctx, userID)
}

// UseStreakFreeze spends one streak freeze and returns the remaining count.
// With none left it fails with ErrInsufficientFreezes and changes nothing.
// It does not itself protect the streak from resetting.
func (e *Engine) UseStreakFreeze(ctx context.Context, userID string) (int, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return 0, err
	}
	remaining, ok, err := e.store.ConsumeStreakFreeze(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrInsufficientFreezes
	}
	metrics.StreakFreezesUsed.Inc()
	log.WithFields(log.Fields{"user_id": userID, "remaining": remaining}).Info("streak freeze used")
	return remaining, nil
}

// AddStreakFreezes credits n freezes and returns the new balance.
func (e *Engine) AddStreakFreezes(ctx context.Context, userID string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("add %d streak freezes: %w", n, domain.ErrInvalidAmount)
	}
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return 0, err
	}
	return e.store.AddStreakFreezes(ctx, userID, n)
}

// calendarDays returns today's and yesterday's DateLayout keys in the
// engine's location. Yesterday is derived from the calendar date, so DST
// shifts never skip or repeat a day.
func (e *Engine) calendarDays() (today, yesterday string) {
	now := e.clock.Now().In(e.loc)
	y, m, d := now.Date()
	prev := time.Date(y, m, d-1, 12, 0, 0, 0, e.loc)
	return now.Format(domain.DateLayout), prev.Format(domain.DateLayout)
}

// today returns the current calendar-day key.
func (e *Engine) today() string {
	today, _ := e.calendarDays()
	return today
}

// advanceStreak applies one check-in for today to s. The input is not
// modified. History holds at most one entry per date and at most limit
// entries, oldest dropped first.
func advanceStreak(s domain.StreakState, today, yesterday string, limit int) (domain.StreakState, domain.StreakTransition) {
	if s.LastActiveDate == today {
		return s, domain.StreakNoop
	}

	next := s
	next.History = slices.Clone(s.History)

	transition := domain.StreakReset
	if s.LastActiveDate == yesterday && s.CurrentStreak > 0 {
		transition = domain.StreakContinue
		next.CurrentStreak = s.CurrentStreak + 1
	} else {
		next.CurrentStreak = 1
	}
	next.LongestStreak = max(s.LongestStreak, next.CurrentStreak)
	next.LastActiveDate = today
	next.TotalActiveDays = s.TotalActiveDays + 1

	if i := slices.IndexFunc(next.History, func(d domain.ActivityDay) bool { return d.Date == today }); i >= 0 {
		// Keep the single entry for today, moved to the end.
		day := next.History[i]
		next.History = append(slices.Delete(next.History, i, i+1), day)
	} else {
		next.History = append(next.History, domain.ActivityDay{Date: today, Active: true})
	}
	if over := len(next.History) - limit; over > 0 {
		next.History = next.History[over:]
	}
	return next, transition
}
