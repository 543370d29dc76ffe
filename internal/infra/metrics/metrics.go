// Package metrics provides Prometheus metrics for the progression engine:
// counters, gauges and histograms for XP grants, levels, badges, streaks,
// quests, leaderboard reads, store latency and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dadbase"

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// XPGranted tracks total XP granted by reason.
var XPGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "xp_granted_total",
	Help:      "Total XP granted.",
}, []string{"reason"})

// XPGrants tracks the number of ledger entries appended by reason.
var XPGrants = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "xp_grants_total",
	Help:      "Total XP ledger entries.",
}, []string{"reason"})

// LevelUps tracks level transitions by the level reached.
var LevelUps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "level_ups_total",
	Help:      "Total level-up transitions.",
}, []string{"level"})

// ─── Badges ─────────────────────────────────────────────────────────────────

// BadgesAwarded tracks newly awarded badges.
var BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "badges_awarded_total",
	Help:      "Total badges awarded.",
}, []string{"badge"})

// BadgeScanDuration tracks eligibility scan duration in seconds.
var BadgeScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "badge_scan_seconds",
	Help:      "Badge eligibility scan duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
})

// ─── Streaks ────────────────────────────────────────────────────────────────

// CheckIns tracks daily check-ins by streak transition (noop, continue, reset).
var CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "checkins_total",
	Help:      "Total daily check-ins by transition.",
}, []string{"transition"})

// StreakFreezesUsed tracks consumed streak freezes.
var StreakFreezesUsed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "streak_freezes_used_total",
	Help:      "Total streak freezes consumed.",
})

// ─── Quests ─────────────────────────────────────────────────────────────────

// QuestsRolled tracks daily quest rolls.
var QuestsRolled = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "quests_rolled_total",
	Help:      "Total daily quest rolls.",
})

// QuestsCompleted tracks quests reaching their target, by category.
var QuestsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "quests_completed_total",
	Help:      "Total quests completed.",
}, []string{"category"})

// QuestsClaimed tracks paid quest claims, by category.
var QuestsClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "quests_claimed_total",
	Help:      "Total quest rewards claimed.",
}, []string{"category"})

// QuestsPurged tracks rows removed by the daily rollover.
var QuestsPurged = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "quests_purged_total",
	Help:      "Total stale quest rows deleted.",
})

// ─── Leaderboard ────────────────────────────────────────────────────────────

// LeaderboardFetches tracks leaderboard reads by type.
var LeaderboardFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "leaderboard_fetches_total",
	Help:      "Total leaderboard fetches.",
}, []string{"type"})

// ─── Notifications ──────────────────────────────────────────────────────────

// NotificationsEmitted tracks emitted signals by type.
var NotificationsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "notifications_emitted_total",
	Help:      "Total notifications emitted.",
}, []string{"type"})

// NotifierFailures tracks swallowed sink errors by sink.
var NotifierFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "notifier_failures_total",
	Help:      "Total notification sink failures.",
}, []string{"sink"})

// NotifierCircuitState tracks each sink's breaker: 0 closed, 1 open, 2 half-open.
var NotifierCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "notifier_circuit_state",
	Help:      "Notification sink circuit breaker state (0=closed, 1=open, 2=half-open).",
}, []string{"sink"})

// WebsocketClients tracks connected live-update clients.
var WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "websocket_clients",
	Help:      "Number of connected websocket clients.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts.",
}, []string{"check", "result"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequestDuration tracks API latency by route pattern and status.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "status"})
