package progression

import (
	"math"
	"sort"

	"github.com/dadbase/dadbase/internal/domain"
)

// LevelTable is a validated level table, sorted ascending by MinXP with
// contiguous levels starting at 1 and MinXP 0.
type LevelTable []domain.LevelDefinition

// LevelOf returns the highest level whose MinXP is at most xp.
// Negative xp maps to the first level.
func (t LevelTable) LevelOf(xp int64) domain.LevelDefinition {
	i := sort.Search(len(t), func(i int) bool { return t[i].MinXP > xp })
	if i == 0 {
		return t[0]
	}
	return t[i-1]
}

// Level is LevelOf reduced to the level number. It satisfies domain.LevelFunc.
func (t LevelTable) Level(xp int64) int {
	return t.LevelOf(xp).Level
}

// Next returns the level after the one xp maps to, or false at the max level.
func (t LevelTable) Next(xp int64) (domain.LevelDefinition, bool) {
	cur := t.LevelOf(xp)
	if cur.Level >= len(t) {
		return domain.LevelDefinition{}, false
	}
	return t[cur.Level], true
}

// ByNumber returns the definition of level n.
func (t LevelTable) ByNumber(n int) (domain.LevelDefinition, bool) {
	if n < 1 || n > len(t) {
		return domain.LevelDefinition{}, false
	}
	return t[n-1], true
}

// XPToNextLevel returns the XP still needed for the next level, 0 at max.
func (t LevelTable) XPToNextLevel(xp int64) int64 {
	next, ok := t.Next(xp)
	if !ok {
		return 0
	}
	return next.MinXP - xp
}

// ProgressPercent returns progress through the current level, 0-100.
// The max level always reports 100.
func (t LevelTable) ProgressPercent(xp int64) int {
	next, ok := t.Next(xp)
	if !ok {
		return 100
	}
	cur := t.LevelOf(xp)
	span := float64(next.MinXP - cur.MinXP)
	pct := int(math.Round(100 * float64(xp-cur.MinXP) / span))
	return max(0, min(pct, 100))
}
