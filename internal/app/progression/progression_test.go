package progression_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dadbase/dadbase/internal/app/progression"
	"github.com/dadbase/dadbase/internal/domain"
	"github.com/dadbase/dadbase/internal/infra/sqlite"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) addDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingNotifier) ofType(t domain.NotificationType) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.got {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	db     *sqlite.DB
	engine *progression.Engine
	clock  *testClock
	notes  *recordingNotifier
}

// threeQuestCatalog pins the quest pool to one quest per category so rolls
// are predictable.
func threeQuestCatalog() *progression.Catalog {
	cat := progression.DefaultCatalog()
	cat.Quests = []domain.QuestDefinition{
		{ID: "comment_3", Category: domain.QuestSocial, Title: "Chatty Dad", Action: domain.XPCommentAdded, Target: 3, RewardXP: 20},
		{ID: "post_1", Category: domain.QuestContent, Title: "Share Something", Action: domain.XPPostCreated, Target: 1, RewardXP: 20},
		{ID: "chore_3", Category: domain.QuestActivity, Title: "Honey-Do List", Action: domain.XPChoreCompleted, Target: 3, RewardXP: 30},
	}
	return cat
}

func newFixture(t *testing.T, cat *progression.Catalog, users ...string) *fixture {
	t.Helper()
	f := &fixture{
		db:    testDB(t),
		clock: &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)},
		notes: &recordingNotifier{},
	}
	e, err := progression.New(f.db, cat, progression.Config{
		Location: time.UTC,
		Notifier: f.notes,
		Clock:    f.clock,
		Seed:     func() int64 { return 42 },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f.engine = e
	for _, u := range users {
		if _, err := e.EnsureUser(context.Background(), u, u, ""); err != nil {
			t.Fatalf("ensure %s: %v", u, err)
		}
	}
	return f
}

func (f *fixture) xp(t *testing.T, userID string) int64 {
	t.Helper()
	u, err := f.db.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u.XP
}

// ═══════════════════════════════════════════════════════════════════════════
// Level Table Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestLevelOf_NewUser(t *testing.T) {
	levels := progression.LevelTable(progression.DefaultCatalog().Levels)

	l := levels.LevelOf(0)
	if l.Level != 1 || l.Name != "Rookie Dad" {
		t.Errorf("LevelOf(0) = %d %q, want 1 Rookie Dad", l.Level, l.Name)
	}
	if got := levels.XPToNextLevel(0); got != 100 {
		t.Errorf("XPToNextLevel(0) = %d, want 100", got)
	}
}

func TestLevelOf_Thresholds(t *testing.T) {
	levels := progression.LevelTable(progression.DefaultCatalog().Levels)
	cases := []struct {
		xp    int64
		level int
	}{
		{0, 1}, {99, 1}, {100, 2}, {249, 2}, {250, 3}, {999, 4},
		{1000, 5}, {3500, 7}, {11999, 9}, {12000, 10}, {1_000_000, 10},
	}
	for _, c := range cases {
		if got := levels.Level(c.xp); got != c.level {
			t.Errorf("Level(%d) = %d, want %d", c.xp, got, c.level)
		}
	}
}

func TestLevelOf_Property(t *testing.T) {
	levels := progression.LevelTable(progression.DefaultCatalog().Levels)
	for xp := int64(0); xp <= 15000; xp += 7 {
		l := levels.LevelOf(xp)
		if l.MinXP > xp {
			t.Fatalf("LevelOf(%d).MinXP = %d > xp", xp, l.MinXP)
		}
		if next, ok := levels.Next(xp); ok && xp >= next.MinXP {
			t.Fatalf("LevelOf(%d) = %d but next level starts at %d", xp, l.Level, next.MinXP)
		}
	}
}

func TestLevel_ProgressPercent(t *testing.T) {
	levels := progression.LevelTable(progression.DefaultCatalog().Levels)
	cases := []struct {
		xp   int64
		want int
	}{
		{0, 0}, {50, 50}, {100, 0}, {175, 50}, {12000, 100}, {50000, 100},
	}
	for _, c := range cases {
		if got := levels.ProgressPercent(c.xp); got != c.want {
			t.Errorf("ProgressPercent(%d) = %d, want %d", c.xp, got, c.want)
		}
	}
	if got := levels.XPToNextLevel(12000); got != 0 {
		t.Errorf("XPToNextLevel(max) = %d, want 0", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Ledger Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestXPAmount(t *testing.T) {
	cases := []struct {
		reason domain.XPReason
		mult   float64
		want   int64
	}{
		{domain.XPPostCreated, 1, 15},
		{domain.XPBadgeEarned, 1, 50},
		{domain.XPReferralBonus, 1, 100},
		{domain.XPStreakBonus, 0.7, 4},
		{domain.XPStreakBonus, 0.2, 1},
		{domain.XPStreakBonus, 1, 5},
		{domain.XPPostCreated, 0, 0},
	}
	for _, c := range cases {
		got, err := progression.XPAmount(c.reason, c.mult)
		if err != nil {
			t.Fatalf("XPAmount(%s, %v): %v", c.reason, c.mult, err)
		}
		if got != c.want {
			t.Errorf("XPAmount(%s, %v) = %d, want %d", c.reason, c.mult, got, c.want)
		}
	}
}

func TestXPAmount_Errors(t *testing.T) {
	if _, err := progression.XPAmount("made_up", 1); !errors.Is(err, domain.ErrUnknownReason) {
		t.Errorf("unknown reason err = %v", err)
	}
	if _, err := progression.XPAmount(domain.XPPostCreated, -1); !errors.Is(err, domain.ErrInvalidMultiplier) {
		t.Errorf("negative multiplier err = %v", err)
	}
	if _, err := progression.XPAmount(domain.XPReferralBonus, 1e17); !errors.Is(err, domain.ErrInvalidMultiplier) {
		t.Errorf("overflowing multiplier err = %v", err)
	}
	if got, err := progression.XPAmount(domain.XPReferralBonus, 1e7); err != nil || got != progression.MaxGrantXP {
		t.Errorf("XPAmount at cap = %d, %v", got, err)
	}
}

func TestGrantXP_HugeMultiplierChangesNothing(t *testing.T) {
	f := newFixture(t, nil, "dad")

	_, err := f.engine.GrantXP(context.Background(), "dad", domain.XPReferralBonus, 1e17)
	if !errors.Is(err, domain.ErrInvalidMultiplier) {
		t.Fatalf("err = %v, want ErrInvalidMultiplier", err)
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("bad input reported as store failure: %v", err)
	}
	if got := f.xp(t, "dad"); got != 0 {
		t.Errorf("xp = %d, want 0", got)
	}
}

func TestGrantXP_LevelUp(t *testing.T) {
	f := newFixture(t, nil, "dad")
	ctx := context.Background()

	if _, err := f.engine.GrantXP(ctx, "dad", domain.XPReferralBonus, 0.95); err != nil {
		t.Fatalf("seed grant: %v", err)
	}
	if got := f.xp(t, "dad"); got != 95 {
		t.Fatalf("seed xp = %d, want 95", got)
	}

	res, err := f.engine.GrantXP(ctx, "dad", domain.XPPostCreated, 1)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if res.Change.NewXP != 110 {
		t.Errorf("new xp = %d, want 110", res.Change.NewXP)
	}
	if !res.LeveledUp() || res.Change.OldLevel != 1 || res.Change.NewLevel != 2 {
		t.Errorf("change = %+v, want level 1 -> 2", res.Change)
	}

	ups := f.notes.ofType(domain.NotifyLevelUp)
	if len(ups) != 1 || ups[0].NewLevel != 2 {
		t.Errorf("level-up notifications = %+v", ups)
	}

	u, _ := f.db.GetUser(ctx, "dad")
	if u.Level != 2 {
		t.Errorf("persisted level = %d, want 2", u.Level)
	}
}

func TestGrantXP_NoLevelUp(t *testing.T) {
	f := newFixture(t, nil, "dad")
	res, err := f.engine.GrantXP(context.Background(), "dad", domain.XPCommentAdded, 1)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if res.LeveledUp() {
		t.Error("5 xp should not level up")
	}
	if len(f.notes.ofType(domain.NotifyLevelUp)) != 0 {
		t.Error("unexpected level-up notification")
	}
}

func TestGrantXP_UnknownReasonChangesNothing(t *testing.T) {
	f := newFixture(t, nil, "dad")
	_, err := f.engine.GrantXP(context.Background(), "dad", "made_up", 1)
	if !errors.Is(err, domain.ErrUnknownReason) {
		t.Fatalf("err = %v, want ErrUnknownReason", err)
	}
	if got := f.xp(t, "dad"); got != 0 {
		t.Errorf("xp = %d, want 0", got)
	}
}

func TestGrantXP_UnknownUser(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.GrantXP(context.Background(), "ghost", domain.XPPostCreated, 1)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestGrantXP_ConcurrentGrantsAllLand(t *testing.T) {
	f := newFixture(t, nil, "dad")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.GrantXP(ctx, "dad", domain.XPCommentAdded, 1); err != nil {
				t.Errorf("grant: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.xp(t, "dad"); got != 100 {
		t.Errorf("xp = %d, want 100", got)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	f := newFixture(t, nil, "dad")
	ctx := context.Background()
	f.engine.GrantXP(ctx, "dad", domain.XPCommentAdded, 1)
	f.engine.GrantXP(ctx, "dad", domain.XPFriendAdded, 1)

	grants, err := f.engine.History(ctx, "dad", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("len = %d, want 2", len(grants))
	}
	if grants[0].Reason != domain.XPFriendAdded || grants[1].Reason != domain.XPCommentAdded {
		t.Errorf("order = %s, %s", grants[0].Reason, grants[1].Reason)
	}
	if grants[0].ID == "" || grants[0].ID == grants[1].ID {
		t.Errorf("grant ids not unique: %q %q", grants[0].ID, grants[1].ID)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestCheckIn_FirstEver(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")

	res, err := f.engine.CheckInToday(context.Background(), "dad")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if res.Transition != domain.StreakReset {
		t.Errorf("transition = %s, want reset", res.Transition)
	}
	if res.Streak.CurrentStreak != 1 || res.Streak.LongestStreak != 1 || res.Streak.TotalActiveDays != 1 {
		t.Errorf("streak = %+v", res.Streak)
	}
	if res.XPEarned != 10 {
		t.Errorf("xp earned = %d, want 10 (daily_login only)", res.XPEarned)
	}
	if res.Streak.LastActiveDate != "2024-03-10" {
		t.Errorf("last active = %q", res.Streak.LastActiveDate)
	}
}

func TestCheckIn_SameDayIdempotent(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()

	if _, err := f.engine.CheckInToday(ctx, "dad"); err != nil {
		t.Fatalf("first: %v", err)
	}
	xpBefore := f.xp(t, "dad")

	res, err := f.engine.CheckInToday(ctx, "dad")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Changed() {
		t.Error("second check-in should be a no-op")
	}
	if res.Streak.CurrentStreak != 1 || res.Streak.TotalActiveDays != 1 {
		t.Errorf("streak changed: %+v", res.Streak)
	}
	if got := f.xp(t, "dad"); got != xpBefore {
		t.Errorf("xp %d -> %d on second check-in", xpBefore, got)
	}
}

func TestCheckIn_ContinueEarnsBonusAndBadge(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()

	err := f.db.SaveStreak(ctx, "dad", domain.StreakState{
		CurrentStreak: 6, LongestStreak: 6, LastActiveDate: "2024-03-09", TotalActiveDays: 6,
	})
	if err != nil {
		t.Fatalf("seed streak: %v", err)
	}

	res, err := f.engine.CheckInToday(ctx, "dad")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if res.Transition != domain.StreakContinue || res.Streak.CurrentStreak != 7 {
		t.Fatalf("result = %+v", res)
	}
	if res.XPEarned != 14 {
		t.Errorf("xp earned = %d, want 14 (10 login + 4 bonus)", res.XPEarned)
	}
	if !slices.Equal(res.NewBadges, []string{"week_warrior"}) {
		t.Errorf("new badges = %v, want [week_warrior]", res.NewBadges)
	}
	if got := f.xp(t, "dad"); got != 64 {
		t.Errorf("xp = %d, want 64", got)
	}

	last := res.Streak.History[len(res.Streak.History)-1]
	if last.Date != "2024-03-10" || !last.Active || last.XPEarned != 14 {
		t.Errorf("history tail = %+v", last)
	}
	if len(f.notes.ofType(domain.NotifyBadgeUnlocked)) != 1 {
		t.Error("expected one badge_unlocked notification")
	}
}

// faultyStore breaks the next check-in or tracked action partway through
// its transaction by repeating a grant ID.
type faultyStore struct {
	*sqlite.DB
	failNext bool
}

func (s *faultyStore) SaveCheckIn(ctx context.Context, userID, prevDate string, st domain.StreakState, grants []domain.XPGrant, levelOf domain.LevelFunc) ([]domain.XPChange, bool, error) {
	if s.failNext {
		s.failNext = false
		grants = append(slices.Clone(grants), grants[0])
	}
	return s.DB.SaveCheckIn(ctx, userID, prevDate, st, grants, levelOf)
}

func (s *faultyStore) TrackAction(ctx context.Context, userID string, c domain.Counter, grantsFor func(int64) []domain.XPGrant, levelOf domain.LevelFunc) (int64, []domain.XPChange, error) {
	if s.failNext {
		s.failNext = false
		inner := grantsFor
		grantsFor = func(n int64) []domain.XPGrant {
			g := inner(n)
			return append(slices.Clone(g), g[0])
		}
	}
	return s.DB.TrackAction(ctx, userID, c, grantsFor, levelOf)
}

func newFaultyFixture(t *testing.T) (*fixture, *faultyStore) {
	t.Helper()
	f := &fixture{
		db:    testDB(t),
		clock: &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)},
		notes: &recordingNotifier{},
	}
	store := &faultyStore{DB: f.db}
	e, err := progression.New(store, threeQuestCatalog(), progression.Config{
		Location: time.UTC,
		Notifier: f.notes,
		Clock:    f.clock,
		Seed:     func() int64 { return 42 },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f.engine = e
	if _, err := e.EnsureUser(context.Background(), "dad", "dad", ""); err != nil {
		t.Fatalf("ensure dad: %v", err)
	}
	return f, store
}

func TestCheckIn_FailedWriteCanBeRetried(t *testing.T) {
	f, store := newFaultyFixture(t)
	ctx := context.Background()

	seed := domain.StreakState{CurrentStreak: 6, LongestStreak: 6, LastActiveDate: "2024-03-09", TotalActiveDays: 6}
	if err := f.db.SaveStreak(ctx, "dad", seed); err != nil {
		t.Fatalf("seed streak: %v", err)
	}

	store.failNext = true
	if _, err := f.engine.CheckInToday(ctx, "dad"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("first check in err = %v, want ErrStoreUnavailable", err)
	}
	s, err := f.db.GetStreak(ctx, "dad")
	if err != nil {
		t.Fatalf("get streak: %v", err)
	}
	if s.CurrentStreak != 6 || s.LastActiveDate != "2024-03-09" || s.TotalActiveDays != 6 {
		t.Errorf("streak written by failed check-in: %+v", s)
	}
	if got := f.xp(t, "dad"); got != 0 {
		t.Errorf("xp after failed check-in = %d, want 0", got)
	}

	res, err := f.engine.CheckInToday(ctx, "dad")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Transition != domain.StreakContinue || res.Streak.CurrentStreak != 7 {
		t.Fatalf("retry result = %+v", res)
	}
	if res.XPEarned != 14 {
		t.Errorf("retry xp earned = %d, want 14", res.XPEarned)
	}
	if got := f.xp(t, "dad"); got != 64 {
		t.Errorf("xp = %d, want 64 (14 check-in + 50 week_warrior)", got)
	}
}

func TestTrack_FailedWriteCanBeRetried(t *testing.T) {
	f, store := newFaultyFixture(t)
	ctx := context.Background()

	store.failNext = true
	if _, err := f.engine.Track(ctx, "dad", domain.XPPostCreated); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("first track err = %v, want ErrStoreUnavailable", err)
	}
	c, err := f.db.GetCounters(ctx, "dad")
	if err != nil {
		t.Fatalf("get counters: %v", err)
	}
	if c.Posts != 0 {
		t.Errorf("posts after failed track = %d, want 0", c.Posts)
	}
	if got := f.xp(t, "dad"); got != 0 {
		t.Errorf("xp after failed track = %d, want 0", got)
	}

	res, err := f.engine.Track(ctx, "dad", domain.XPPostCreated)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Count != 1 || res.XP != 40 {
		t.Errorf("retry = count %d xp %d, want 1 and 40", res.Count, res.XP)
	}
	if got := f.xp(t, "dad"); got != 90 {
		t.Errorf("xp = %d, want 90", got)
	}
}

func TestCheckIn_BonusCapsAtTenDays(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()

	f.db.SaveStreak(ctx, "dad", domain.StreakState{
		CurrentStreak: 20, LongestStreak: 40, LastActiveDate: "2024-03-09", TotalActiveDays: 40,
	})
	// Pre-award the streak badges so only check-in XP is counted.
	for _, id := range []string{"week_warrior", "month_master"} {
		f.db.AwardBadge(ctx, "dad", id, domain.XPGrant{ID: id, UserID: "dad", Reason: domain.XPBadgeEarned, CreatedAt: time.Now()}, func(int64) int { return 1 })
	}

	res, err := f.engine.CheckInToday(ctx, "dad")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if res.XPEarned != 15 {
		t.Errorf("xp earned = %d, want 15 (10 login + 5 capped bonus)", res.XPEarned)
	}
}

func TestCheckIn_ResetAfterGap(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()

	f.db.SaveStreak(ctx, "dad", domain.StreakState{
		CurrentStreak: 10, LongestStreak: 12, LastActiveDate: "2024-03-07", TotalActiveDays: 30,
	})

	res, err := f.engine.CheckInToday(ctx, "dad")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if res.Transition != domain.StreakReset {
		t.Errorf("transition = %s, want reset", res.Transition)
	}
	if res.Streak.CurrentStreak != 1 {
		t.Errorf("current = %d, want 1", res.Streak.CurrentStreak)
	}
	if res.Streak.LongestStreak != 12 {
		t.Errorf("longest = %d, want 12 (unchanged)", res.Streak.LongestStreak)
	}
	if res.Streak.TotalActiveDays != 31 {
		t.Errorf("total = %d, want 31", res.Streak.TotalActiveDays)
	}
}

func TestCheckIn_LongestIsHighWaterMark(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()

	observed := 0
	pattern := []int{1, 1, 1, 3, 1, 1, 2, 1} // day gaps between check-ins
	for _, gap := range pattern {
		f.clock.addDays(gap)
		res, err := f.engine.CheckInToday(ctx, "dad")
		if err != nil {
			t.Fatalf("check in: %v", err)
		}
		observed = max(observed, res.Streak.CurrentStreak)
		if res.Streak.LongestStreak < observed {
			t.Fatalf("longest %d < observed current %d", res.Streak.LongestStreak, observed)
		}
	}
}

func TestStreakFreeze(t *testing.T) {
	f := newFixture(t, nil, "dad")
	ctx := context.Background()

	if _, err := f.engine.UseStreakFreeze(ctx, "dad"); !errors.Is(err, domain.ErrInsufficientFreezes) {
		t.Fatalf("err = %v, want ErrInsufficientFreezes", err)
	}

	if n, err := f.engine.AddStreakFreezes(ctx, "dad", 2); err != nil || n != 2 {
		t.Fatalf("add = %d, %v", n, err)
	}
	remaining, err := f.engine.UseStreakFreeze(ctx, "dad")
	if err != nil || remaining != 1 {
		t.Fatalf("use = %d, %v", remaining, err)
	}

	if _, err := f.engine.AddStreakFreezes(ctx, "dad", 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("add 0 err = %v", err)
	}
}

func TestCheckIn_KeepsFreezes(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()
	f.engine.AddStreakFreezes(ctx, "dad", 3)

	res, err := f.engine.CheckInToday(ctx, "dad")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if res.Streak.StreakFreezes != 3 {
		t.Errorf("freezes = %d, want 3", res.Streak.StreakFreezes)
	}
	s, _ := f.engine.Streak(ctx, "dad")
	if s.StreakFreezes != 3 {
		t.Errorf("stored freezes = %d, want 3", s.StreakFreezes)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestScan_NothingAtZero(t *testing.T) {
	f := newFixture(t, nil, "dad")
	got, err := f.engine.ScanAndAward(context.Background(), "dad")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("new user earned %v", got)
	}
}

func TestTrack_FirstPostBadgeOnce(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()

	res, err := f.engine.Track(ctx, "dad", domain.XPPostCreated)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if res.Count != 1 || res.Counter != domain.CounterPosts {
		t.Errorf("counter = %s %d", res.Counter, res.Count)
	}
	if res.XP != 40 {
		t.Errorf("action xp = %d, want 40 (15 post + 25 first post)", res.XP)
	}
	if !slices.Equal(res.NewBadges, []string{"first_post"}) {
		t.Errorf("badges = %v", res.NewBadges)
	}
	if got := f.xp(t, "dad"); got != 90 {
		t.Errorf("xp = %d, want 90", got)
	}

	again, err := f.engine.ScanAndAward(ctx, "dad")
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("rescan awarded %v", again)
	}
	if got := f.xp(t, "dad"); got != 90 {
		t.Errorf("xp after rescan = %d, want 90", got)
	}
}

func TestScan_CollectThenApply(t *testing.T) {
	f := newFixture(t, nil, "dad")
	ctx := context.Background()

	f.engine.GrantXP(ctx, "dad", domain.XPReferralBonus, 9.6) // 960 xp
	f.db.IncrementCounter(ctx, "dad", domain.CounterPosts, 1)

	got, err := f.engine.ScanAndAward(ctx, "dad")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// first_post's 50 XP lifts the user to 1010 / level 5, but the badges
	// that unlocks are left for the next scan.
	if !slices.Equal(got, []string{"first_post"}) {
		t.Fatalf("first scan = %v, want [first_post]", got)
	}

	got, err = f.engine.ScanAndAward(ctx, "dad")
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if !slices.Equal(got, []string{"xp_1000", "level_5"}) {
		t.Errorf("second scan = %v, want [xp_1000 level_5]", got)
	}
}

func TestTrack_Errors(t *testing.T) {
	f := newFixture(t, nil, "dad")
	ctx := context.Background()

	if _, err := f.engine.Track(ctx, "dad", "made_up"); !errors.Is(err, domain.ErrUnknownReason) {
		t.Errorf("unknown action err = %v", err)
	}
	if _, err := f.engine.Track(ctx, "dad", domain.XPBadgeEarned); !errors.Is(err, domain.ErrReservedReason) {
		t.Errorf("reserved action err = %v", err)
	}
	if _, err := f.engine.Track(ctx, "ghost", domain.XPPostCreated); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("ghost err = %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Title Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestUnlockedTitles_ExcludesSpecial(t *testing.T) {
	f := newFixture(t, nil)
	titles, err := f.engine.UnlockedTitles(domain.Metrics{Level: 3, Jokes: 10, XP: 300})
	if err != nil {
		t.Fatalf("unlocked: %v", err)
	}
	var ids []string
	for _, tt := range titles {
		ids = append(ids, tt.ID)
	}
	if !slices.Equal(ids, []string{"grill_sergeant", "joke_dad"}) {
		t.Errorf("titles = %v", ids)
	}
}

func TestSetActiveTitle(t *testing.T) {
	f := newFixture(t, nil, "dad")
	ctx := context.Background()

	if err := f.engine.SetActiveTitle(ctx, "dad", "grill_sergeant"); !errors.Is(err, domain.ErrTitleNotUnlocked) {
		t.Fatalf("locked title err = %v", err)
	}

	f.engine.GrantXP(ctx, "dad", domain.XPReferralBonus, 2.5) // 250 xp, level 3
	if err := f.engine.SetActiveTitle(ctx, "dad", "grill_sergeant"); err != nil {
		t.Fatalf("set: %v", err)
	}
	u, _ := f.db.GetUser(ctx, "dad")
	if u.ActiveTitle != "grill_sergeant" {
		t.Errorf("active = %q", u.ActiveTitle)
	}

	if err := f.engine.SetActiveTitle(ctx, "dad", ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
}

func TestSpecialTitles(t *testing.T) {
	f := newFixture(t, nil, "dad")
	ctx := context.Background()

	if err := f.engine.SetActiveTitle(ctx, "dad", "early_adopter"); !errors.Is(err, domain.ErrTitleNotUnlocked) {
		t.Fatalf("ungranted special err = %v", err)
	}

	added, err := f.engine.GrantSpecialTitle(ctx, "dad", "early_adopter")
	if err != nil || !added {
		t.Fatalf("grant = %v, %v", added, err)
	}
	added, _ = f.engine.GrantSpecialTitle(ctx, "dad", "early_adopter")
	if added {
		t.Error("second grant should report already held")
	}

	if err := f.engine.SetActiveTitle(ctx, "dad", "early_adopter"); err != nil {
		t.Fatalf("set special: %v", err)
	}

	if _, err := f.engine.GrantSpecialTitle(ctx, "dad", "joke_dad"); !errors.Is(err, domain.ErrUnknownTitle) {
		t.Errorf("automatic title grant err = %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboard Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestLeaderboard_TiesInStoreOrder(t *testing.T) {
	f := newFixture(t, nil, "A", "B", "C")
	ctx := context.Background()
	f.engine.GrantXP(ctx, "A", domain.XPReferralBonus, 5)
	f.engine.GrantXP(ctx, "B", domain.XPReferralBonus, 5)
	f.engine.GrantXP(ctx, "C", domain.XPReferralBonus, 3)

	board, err := f.engine.FetchLeaderboard(ctx, domain.LeaderboardAllTime, "C")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []string{"A", "B", "C"}
	for i, e := range board.Entries {
		if e.UserID != want[i] || e.Rank != i+1 {
			t.Errorf("entry %d = %s rank %d, want %s rank %d", i, e.UserID, e.Rank, want[i], i+1)
		}
	}
	if !board.RankKnown || board.YourRank != 3 || !board.Entries[2].IsYou {
		t.Errorf("your rank = %d known=%v", board.YourRank, board.RankKnown)
	}
}

func TestLeaderboard_OutsideWindowUnknown(t *testing.T) {
	f := newFixture(t, nil, "A", "B", "C")
	ctx := context.Background()
	e, err := progression.New(f.db, nil, progression.Config{LeaderboardSize: 2, Clock: f.clock})
	if err != nil {
		t.Fatal(err)
	}
	e.GrantXP(ctx, "A", domain.XPFriendAdded, 1)
	e.GrantXP(ctx, "B", domain.XPCommentAdded, 1)

	board, err := e.FetchLeaderboard(ctx, domain.LeaderboardWeekly, "C")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(board.Entries))
	}
	if board.RankKnown || board.YourRank != 0 {
		t.Errorf("rank = %d known=%v, want unknown", board.YourRank, board.RankKnown)
	}
	if board.Type != domain.LeaderboardWeekly {
		t.Errorf("type = %s", board.Type)
	}
}

func TestLeaderboard_DenseRanks(t *testing.T) {
	users := make([]domain.UserProgression, 0, 60)
	for i := 60; i > 0; i-- {
		users = append(users, domain.UserProgression{UserID: string(rune('a' + i%26)), XP: int64(i * 10)})
	}
	board := progression.Rank(users[:50], "")
	for i, e := range board.Entries {
		if e.Rank != i+1 {
			t.Fatalf("rank gap at %d: %d", i, e.Rank)
		}
		if i > 0 && e.XP >= board.Entries[i-1].XP {
			t.Fatalf("xp not strictly decreasing at rank %d", e.Rank)
		}
	}
}

func TestLeaderboard_UnknownType(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.FetchLeaderboard(context.Background(), "yearly", "")
	if !errors.Is(err, domain.ErrUnknownLeaderboardType) {
		t.Errorf("err = %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Quest Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestSelectQuests_CoversCategories(t *testing.T) {
	pool := progression.DefaultCatalog().Quests
	for seed := int64(0); seed < 50; seed++ {
		got := progression.SelectQuests(pool, 3, rand.New(rand.NewSource(seed)))
		if len(got) != 3 {
			t.Fatalf("seed %d: len = %d", seed, len(got))
		}
		cats := map[domain.QuestCategory]bool{}
		for _, q := range got {
			cats[q.Category] = true
		}
		if len(cats) != 3 {
			t.Fatalf("seed %d: categories = %v", seed, cats)
		}
	}
}

func TestSelectQuests_NoDuplicatesAndClamp(t *testing.T) {
	pool := progression.DefaultCatalog().Quests
	got := progression.SelectQuests(pool, 100, rand.New(rand.NewSource(7)))
	if len(got) != len(pool) {
		t.Fatalf("len = %d, want %d", len(got), len(pool))
	}
	seen := map[string]bool{}
	for _, q := range got {
		if seen[q.ID] {
			t.Fatalf("duplicate quest %s", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestDailyQuests_RolledOncePerDay(t *testing.T) {
	f := newFixture(t, nil, "dad")
	ctx := context.Background()

	first, err := f.engine.DailyQuests(ctx, "dad")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("len = %d, want 3", len(first))
	}
	second, _ := f.engine.DailyQuests(ctx, "dad")
	for i := range first {
		if first[i].Quest.ID != second[i].Quest.ID {
			t.Fatalf("quests re-rolled within the day")
		}
	}
}

func TestQuest_ProgressAndClaim(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()

	if _, err := f.engine.RecordQuestProgress(ctx, "dad", "chore_3", 2); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if _, err := f.engine.ClaimQuest(ctx, "dad", "chore_3"); !errors.Is(err, domain.ErrQuestNotCompleted) {
		t.Fatalf("claim incomplete err = %v", err)
	}

	q, err := f.engine.RecordQuestProgress(ctx, "dad", "chore_3", 1)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if q.Progress != 3 || !q.Completed || q.ClaimedAt != nil {
		t.Fatalf("quest = %+v", q)
	}

	res, err := f.engine.ClaimQuest(ctx, "dad", "chore_3")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !res.Claimed || res.XP != 30 || res.Quest.ClaimedAt == nil {
		t.Fatalf("claim = %+v", res)
	}
	claimedAt := *res.Quest.ClaimedAt

	again, err := f.engine.ClaimQuest(ctx, "dad", "chore_3")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again.Claimed || again.XP != 0 {
		t.Errorf("second claim paid: %+v", again)
	}
	if !again.Quest.ClaimedAt.Equal(claimedAt) {
		t.Errorf("claimed_at moved")
	}
	if got := f.xp(t, "dad"); got != 30 {
		t.Errorf("xp = %d, want 30", got)
	}
	if len(f.notes.ofType(domain.NotifyQuestClaimed)) != 1 {
		t.Error("expected one quest_claimed notification")
	}
}

func TestQuest_ProgressClamped(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	q, err := f.engine.RecordQuestProgress(context.Background(), "dad", "comment_3", 10)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if q.Progress != 3 || q.ProgressPct() != 100 {
		t.Errorf("progress = %d (%v%%)", q.Progress, q.ProgressPct())
	}
}

func TestQuest_Errors(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()

	if _, err := f.engine.RecordQuestProgress(ctx, "dad", "nope", 1); !errors.Is(err, domain.ErrQuestNotFound) {
		t.Errorf("unknown quest err = %v", err)
	}
	if _, err := f.engine.RecordQuestProgress(ctx, "dad", "chore_3", 0); !errors.Is(err, domain.ErrInvalidProgress) {
		t.Errorf("zero delta err = %v", err)
	}
	if _, err := f.engine.ClaimQuest(ctx, "dad", "nope"); !errors.Is(err, domain.ErrQuestNotFound) {
		t.Errorf("claim unknown err = %v", err)
	}
}

func TestTrack_AdvancesMatchingQuests(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()

	res, err := f.engine.Track(ctx, "dad", domain.XPCommentAdded)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if len(res.Quests) != 1 || res.Quests[0].Quest.ID != "comment_3" || res.Quests[0].Progress != 1 {
		t.Errorf("advanced = %+v", res.Quests)
	}
}

func TestPurgeStaleQuests(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()

	if _, err := f.engine.DailyQuests(ctx, "dad"); err != nil {
		t.Fatalf("daily: %v", err)
	}
	f.clock.addDays(1)

	n, err := f.engine.PurgeStaleQuests(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 3 {
		t.Errorf("purged = %d, want 3", n)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Summary / Notification / Catalog Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestSummary(t *testing.T) {
	f := newFixture(t, threeQuestCatalog(), "dad")
	ctx := context.Background()
	f.engine.Track(ctx, "dad", domain.XPPostCreated) // 90 xp, first_post

	s, err := f.engine.Summary(ctx, "dad")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.Level.Level != 1 || s.NextLevel == nil || s.NextLevel.Level != 2 {
		t.Errorf("levels = %+v next %+v", s.Level, s.NextLevel)
	}
	if s.XPToNextLevel != 10 || s.ProgressPercent != 90 {
		t.Errorf("to next = %d pct = %d", s.XPToNextLevel, s.ProgressPercent)
	}
	if len(s.Badges) != 1 || s.Badges[0].ID != "first_post" {
		t.Errorf("badges = %+v", s.Badges)
	}
	if s.Counters.Posts != 1 {
		t.Errorf("posts = %d", s.Counters.Posts)
	}
}

func TestNotificationService_PendingAndShown(t *testing.T) {
	db := testDB(t)
	svc := progression.NewNotificationService(db)
	ctx := context.Background()

	svc.Notify(ctx, domain.Notification{UserID: "dad", Type: domain.NotifyLevelUp, Title: "Level Up!", NewLevel: 2})
	pending, err := svc.Pending(ctx, "dad", 0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if err := svc.MarkShown(ctx, "dad", pending[0].ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	pending, _ = svc.Pending(ctx, "dad", 10)
	if len(pending) != 0 {
		t.Errorf("pending after mark = %d", len(pending))
	}
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, domain.Notification) error {
	return errors.New("sink down")
}

func TestMultiNotifier_DeliversPastFailures(t *testing.T) {
	rec := &recordingNotifier{}
	multi := progression.MultiNotifier{
		{Name: "broken", Notifier: failingNotifier{}},
		{Name: "log", Notifier: progression.LogNotifier{}},
		{Name: "rec", Notifier: rec},
	}
	err := multi.Notify(context.Background(), domain.Notification{UserID: "dad", Type: domain.NotifyBadgeUnlocked})
	if err == nil {
		t.Error("expected joined error from broken sink")
	}
	if len(rec.got) != 1 {
		t.Errorf("recording sink got %d", len(rec.got))
	}
}

func TestEngine_NotifierFailureIsSwallowed(t *testing.T) {
	db := testDB(t)
	e, err := progression.New(db, nil, progression.Config{Notifier: failingNotifier{}})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	e.EnsureUser(ctx, "dad", "", "")
	res, err := e.GrantXP(ctx, "dad", domain.XPReferralBonus, 1)
	if err != nil {
		t.Fatalf("grant with broken notifier: %v", err)
	}
	if !res.LeveledUp() {
		t.Error("expected level up")
	}
}

func TestCatalog_DefaultIsValid(t *testing.T) {
	if err := progression.DefaultCatalog().Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
}

func TestCatalog_ValidationFailures(t *testing.T) {
	cases := map[string]func(c *progression.Catalog){
		"levels not from zero": func(c *progression.Catalog) { c.Levels[0].MinXP = 5 },
		"levels not sorted":    func(c *progression.Catalog) { c.Levels[3].MinXP = 10 },
		"levels gap":           func(c *progression.Catalog) { c.Levels[2].Level = 7 },
		"duplicate badge":      func(c *progression.Catalog) { c.Badges[1].ID = c.Badges[0].ID },
		"zero threshold":       func(c *progression.Catalog) { c.Badges[0].Requirement.Threshold = 0 },
		"special badge":        func(c *progression.Catalog) { c.Badges[0].Requirement.Dimension = domain.DimSpecial },
		"unknown dimension":    func(c *progression.Catalog) { c.Titles[3].Requirement.Dimension = "karma" },
		"unknown quest action": func(c *progression.Catalog) { c.Quests[0].Action = "napping" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := progression.DefaultCatalog()
			mutate(c)
			if err := c.Validate(); !errors.Is(err, domain.ErrInvalidCatalog) {
				t.Errorf("err = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestLoadCatalog_FileOverridesQuests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	content := `
[[quests]]
id = "grill_1"
category = "activity"
title = "Fire It Up"
description = "Attend a cookout"
action = "event_attended"
target = 1
reward_xp = 40
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cat, err := progression.LoadCatalog(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cat.Quests) != 1 || cat.Quests[0].ID != "grill_1" || cat.Quests[0].RewardXP != 40 {
		t.Errorf("quests = %+v", cat.Quests)
	}
	if len(cat.Badges) != len(progression.DefaultCatalog().Badges) {
		t.Error("badges should keep built-ins")
	}
}

func TestLoadCatalog_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	os.WriteFile(path, []byte("[[badges]]\nid = \"x\"\nrarity = \"common\"\n[badges.requirement]\ndimension = \"karma\"\nthreshold = 1\n"), 0644)

	if _, err := progression.LoadCatalog(path); !errors.Is(err, domain.ErrInvalidCatalog) {
		t.Errorf("err = %v, want ErrInvalidCatalog", err)
	}
}
