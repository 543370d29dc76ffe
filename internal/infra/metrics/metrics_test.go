package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestXPMetrics_Registered(t *testing.T) {
	XPGranted.WithLabelValues("post_created").Add(15)
	XPGrants.WithLabelValues("post_created").Inc()
	LevelUps.WithLabelValues("2").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"dadbase_xp_granted_total",
		"dadbase_xp_grants_total",
		"dadbase_level_ups_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestBadgeAndStreakMetrics(t *testing.T) {
	BadgesAwarded.WithLabelValues("week_warrior").Inc()
	BadgeScanDuration.Observe(0.002)
	CheckIns.WithLabelValues("continue").Inc()
	StreakFreezesUsed.Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"dadbase_badges_awarded_total",
		"dadbase_badge_scan_seconds",
		"dadbase_checkins_total",
		"dadbase_streak_freezes_used_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestQuestAndLeaderboardMetrics(t *testing.T) {
	QuestsRolled.Inc()
	QuestsCompleted.WithLabelValues("social").Inc()
	QuestsClaimed.WithLabelValues("social").Inc()
	QuestsPurged.Add(6)
	LeaderboardFetches.WithLabelValues("allTime").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"dadbase_quests_rolled_total",
		"dadbase_quests_completed_total",
		"dadbase_quests_claimed_total",
		"dadbase_quests_purged_total",
		"dadbase_leaderboard_fetches_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestHealthMetrics(t *testing.T) {
	HealthCheckStatus.WithLabelValues("store").Set(1)
	HealthRecoveries.WithLabelValues("store", "success").Inc()
	WebsocketClients.Set(2)

	names := gatheredNames(t)
	if !names["dadbase_health_check_status"] {
		t.Error("dadbase_health_check_status not found")
	}
	if !names["dadbase_health_recoveries_total"] {
		t.Error("dadbase_health_recoveries_total not found")
	}
	if !names["dadbase_websocket_clients"] {
		t.Error("dadbase_websocket_clients not found")
	}
}
