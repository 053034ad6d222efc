package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CompletionsAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "explorer_completions_awarded_total", Help: "Total activity completions credited with XP"},
	)
	CompletionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "explorer_completions_rejected_total", Help: "Total completion submissions rejected, by reason"},
		[]string{"reason"},
	)
	XPAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "explorer_xp_awarded_total", Help: "Total individual XP awarded"},
	)
	TeamXPFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "explorer_team_xp_failures_total", Help: "Team XP increments that failed and were skipped"},
	)
	BadgesAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "explorer_badges_awarded_total", Help: "Total badges awarded"},
	)
	BadgeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "explorer_badge_failures_total", Help: "Badge evaluations that failed"},
	)
	StoreTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "explorer_store_timeouts_total", Help: "Progress store calls that hit their deadline"},
	)
	TeamXPDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "explorer_team_xp_drift", Help: "team_xp minus the sum of member contributions"},
		[]string{"team_id"},
	)
	StuckClaims = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "explorer_stuck_claims_total", Help: "Completion claims left held after the award failed and release gave up"},
	)
	ChaptersAnnounced = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "explorer_chapters_announced_total", Help: "Chapter unlock announcements broadcast"},
	)
)

func Register() {
	prometheus.MustRegister(
		CompletionsAwarded,
		CompletionsRejected,
		XPAwarded,
		TeamXPFailures,
		BadgesAwarded,
		BadgeFailures,
		StoreTimeouts,
		TeamXPDrift,
		StuckClaims,
		ChaptersAnnounced,
	)
}
