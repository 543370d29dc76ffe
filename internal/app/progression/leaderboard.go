package progression

import (
	"context"

	"github.com/dadbase/dadbase/internal/domain"
	"github.com/dadbase/dadbase/internal/infra/metrics"
)

// FetchLeaderboard ranks the top users by cumulative XP.
//
// Every type ranks on all-time XP; weekly and monthly are accepted as
// selectors but have no windowed ledger behind them yet. The requester's
// rank is only known when they fall inside the window.
func (e *Engine) FetchLeaderboard(ctx context.Context, typ domain.LeaderboardType, requesterID string) (domain.Leaderboard, error) {
	typ, err := domain.ParseLeaderboardType(string(typ))
	if err != nil {
		return domain.Leaderboard{}, err
	}
	users, err := e.store.TopByXP(ctx, e.leaderboardSize)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	metrics.LeaderboardFetches.WithLabelValues(string(typ)).Inc()

	board := Rank(users, requesterID)
	board.Type = typ
	return board, nil
}

// Rank assigns positional ranks 1..n to users already sorted by XP
// descending. Equal XP still gets distinct consecutive ranks.
func Rank(users []domain.UserProgression, requesterID string) domain.Leaderboard {
	board := domain.Leaderboard{Entries: make([]domain.LeaderboardEntry, 0, len(users))}
	for i, u := range users {
		entry := domain.LeaderboardEntry{
			Rank:   i + 1,
			UserID: u.UserID,
			Name:   u.Name,
			Avatar: u.Avatar,
			XP:     u.XP,
			Level:  u.Level,
			IsYou:  requesterID != "" && u.UserID == requesterID,
		}
		if entry.IsYou {
			board.YourRank = entry.Rank
			board.RankKnown = true
		}
		board.Entries = append(board.Entries, entry)
	}
	return board
}
