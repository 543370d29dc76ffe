package progression

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dadbase/dadbase/internal/domain"
	"github.com/dadbase/dadbase/internal/infra/metrics"
)

// baseXP is the fixed per-reason amount before any multiplier.
var baseXP = map[domain.XPReason]int64{
	domain.XPPostCreated:      15,
	domain.XPFirstPost:        25,
	domain.XPCommentAdded:     5,
	domain.XPReactionGiven:    2,
	domain.XPFriendAdded:      20,
	domain.XPJokePosted:       10,
	domain.XPEventCreated:     15,
	domain.XPEventAttended:    10,
	domain.XPGroupJoined:      10,
	domain.XPGroupCreated:     20,
	domain.XPStoryShared:      10,
	domain.XPPhotoUploaded:    5,
	domain.XPProfileCompleted: 25,
	domain.XPChoreCompleted:   5,
	domain.XPDailyLogin:       10,
	domain.XPStreakBonus:      5,
	domain.XPBadgeEarned:      50,
	domain.XPQuestCompleted:   25,
	domain.XPReferralBonus:    100,
}

// BaseXP returns the base amount for a reason.
func BaseXP(reason domain.XPReason) (int64, error) {
	base, ok := baseXP[reason]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownReason, reason)
	}
	return base, nil
}

// MaxGrantXP bounds a single grant.
const MaxGrantXP = 1_000_000_000

// XPAmount returns round(base[reason] * multiplier). Negative and
// non-finite multipliers fail with ErrInvalidMultiplier, as does any
// multiplier that pushes the amount past MaxGrantXP.
func XPAmount(reason domain.XPReason, multiplier float64) (int64, error) {
	base, err := BaseXP(reason)
	if err != nil {
		return 0, err
	}
	if multiplier < 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidMultiplier, multiplier)
	}
	amount := math.Round(float64(base) * multiplier)
	if amount > MaxGrantXP {
		return 0, fmt.Errorf("%w: %v yields %.0f XP, over %d", domain.ErrInvalidMultiplier, multiplier, amount, MaxGrantXP)
	}
	return int64(amount), nil
}

// mustXPAmount is XPAmount for reasons and multipliers fixed by the engine
// itself, where an error means the base table is broken.
func mustXPAmount(reason domain.XPReason, multiplier float64) int64 {
	amount, err := XPAmount(reason, multiplier)
	if err != nil {
		panic(fmt.Sprintf("progression: %v", err))
	}
	return amount
}

// GrantResult is the confirmed outcome of one XP grant.
type GrantResult struct {
	Grant     domain.XPGrant  `json:"grant"`
	Change    domain.XPChange `json:"change"`
	NewBadges []string        `json:"new_badges"`
}

// LeveledUp reports whether the grant itself crossed a level threshold.
func (r GrantResult) LeveledUp() bool { return r.Change.LeveledUp() }

// GrantXP credits round(base[reason] * multiplier) XP to the user, appends
// the ledger entry and persists the recomputed level in one store write,
// then runs one badge eligibility scan.
//
// If the grant lands but the scan fails, the result is returned together
// with the scan error.
func (e *Engine) GrantXP(ctx context.Context, userID string, reason domain.XPReason, multiplier float64) (GrantResult, error) {
	res, err := e.grant(ctx, userID, reason, multiplier)
	if err != nil {
		return res, err
	}
	res.NewBadges, err = e.ScanAndAward(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("badge scan after grant: %w", err)
	}
	return res, nil
}

// grant applies one reason-based grant without a badge scan.
func (e *Engine) grant(ctx context.Context, userID string, reason domain.XPReason, multiplier float64) (GrantResult, error) {
	amount, err := XPAmount(reason, multiplier)
	if err != nil {
		return GrantResult{}, err
	}
	g := e.newGrant(userID, reason, amount, multiplier)
	change, err := e.store.ApplyXPGrant(ctx, g, e.levels.Level)
	if err != nil {
		return GrantResult{}, err
	}
	e.afterGrant(ctx, g, change)
	return GrantResult{Grant: g, Change: change, NewBadges: []string{}}, nil
}

func (e *Engine) newGrant(userID string, reason domain.XPReason, amount int64, multiplier float64) domain.XPGrant {
	return domain.XPGrant{
		ID:         uuid.NewString(),
		UserID:     userID,
		Reason:     reason,
		Amount:     amount,
		Multiplier: multiplier,
		CreatedAt:  e.clock.Now(),
	}
}

// afterGrant records metrics and fires the level-up signal once the store
// has confirmed the write.
func (e *Engine) afterGrant(ctx context.Context, g domain.XPGrant, change domain.XPChange) {
	metrics.XPGrants.WithLabelValues(string(g.Reason)).Inc()
	metrics.XPGranted.WithLabelValues(string(g.Reason)).Add(float64(g.Amount))

	fields := log.Fields{
		"user_id": g.UserID,
		"reason":  g.Reason,
		"amount":  g.Amount,
		"xp":      change.NewXP,
	}
	if !change.LeveledUp() {
		log.WithFields(fields).Debug("xp granted")
		return
	}

	fields["old_level"] = change.OldLevel
	fields["new_level"] = change.NewLevel
	log.WithFields(fields).Info("level up")
	metrics.LevelUps.WithLabelValues(strconv.Itoa(change.NewLevel)).Inc()
	e.emitLevelUp(ctx, g.UserID, change)
}
