package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dadbase/dadbase/internal/domain"
)

// ─── Counters ───────────────────────────────────────────────────────────────

// counterColumns whitelists the column for each counter. Column names are
// interpolated into SQL, so nothing outside this map is ever accepted.
var counterColumns = map[domain.Counter]string{
	domain.CounterPosts:     `posts`,
	domain.CounterComments:  `comments`,
	domain.CounterFriends:   `friends`,
	domain.CounterJokes:     `jokes`,
	domain.CounterEvents:    `events`,
	domain.CounterGroups:    `"groups"`,
	domain.CounterStories:   `stories`,
	domain.CounterReactions: `reactions`,
}

// GetCounters returns the user's counters. A user without a row reads as zero.
func (d *DB) GetCounters(ctx context.Context, userID string) (domain.Counters, error) {
	var c domain.Counters
	err := d.db.QueryRowContext(ctx,
		`SELECT posts, comments, friends, jokes, events, "groups", stories, reactions
		 FROM counters WHERE user_id = ?`, userID,
	).Scan(&c.Posts, &c.Comments, &c.Friends, &c.Jokes, &c.Events, &c.Groups, &c.Stories, &c.Reactions)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Counters{}, nil
	}
	return c, storeErr("get counters", err)
}

// IncrementCounter adds delta to one counter in place and returns the new value.
func (d *DB) IncrementCounter(ctx context.Context, userID string, c domain.Counter, delta int64) (int64, error) {
	value, err := incrementCounter(ctx, d.db, userID, c, delta)
	return value, storeErr("increment counter", err)
}

// TrackAction bumps counter c by one and applies the grants chosen by
// grantsFor in one transaction. grantsFor sees the new counter value. An
// empty c skips the counter and grantsFor sees 0.
func (d *DB) TrackAction(ctx context.Context, userID string, c domain.Counter, grantsFor func(count int64) []domain.XPGrant, levelOf domain.LevelFunc) (int64, []domain.XPChange, error) {
	var (
		count   int64
		changes []domain.XPChange
	)
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if c != "" {
			var err error
			if count, err = incrementCounter(ctx, tx, userID, c, 1); err != nil {
				return err
			}
		}
		for _, g := range grantsFor(count) {
			change, err := applyGrant(ctx, tx, g, levelOf)
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		return 0, nil, storeErr("track action", err)
	}
	return count, changes, nil
}

func incrementCounter(ctx context.Context, q querier, userID string, c domain.Counter, delta int64) (int64, error) {
	col, ok := counterColumns[c]
	if !ok {
		return 0, fmt.Errorf("counter %q: %w", c, domain.ErrUnknownDimension)
	}

	var value int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE counters SET %[1]s = MAX(%[1]s + ?, 0) WHERE user_id = ? RETURNING %[1]s`, col),
		delta, userID,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	return value, err
}
