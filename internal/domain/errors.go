package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Programming / data-integrity errors: fail fast, never coerce.
	ErrUnknownReason          = errors.New("unknown xp reason")
	ErrInvalidMultiplier      = errors.New("xp multiplier must be non-negative")
	ErrUnknownDimension       = errors.New("unknown requirement dimension")
	ErrUnknownLeaderboardType = errors.New("unknown leaderboard type")
	ErrInvalidCatalog         = errors.New("invalid progression catalog")

	// Precondition violations: nothing is applied.
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientFreezes = errors.New("no streak freezes available")
	ErrTitleNotUnlocked    = errors.New("title not unlocked")
	ErrUnknownTitle        = errors.New("title not found in catalog")
	ErrQuestNotFound       = errors.New("quest not found for today")
	ErrQuestNotCompleted   = errors.New("quest not completed yet")
	ErrInvalidProgress     = errors.New("quest progress delta must be positive")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrReservedReason      = errors.New("xp reason is engine-granted and cannot be tracked")

	// Store unavailability: transient, propagated without retry.
	ErrStoreUnavailable = errors.New("progression store unavailable")
)
