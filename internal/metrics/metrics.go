// Package metrics holds the prometheus collectors of the toddler-chat backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toddler_turns_total",
			Help: "Conversation turns by outcome (completed, filtered, ad, ignored).",
		},
		[]string{"outcome"},
	)

	GenerationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toddler_generation_failures_total",
			Help: "Failed calls to generative backends by kind (text, image, speech).",
		},
		[]string{"kind"},
	)

	AdsShownTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toddler_ads_shown_total",
			Help: "Ads shown by variant.",
		},
		[]string{"variant"},
	)

	CoinsAwardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toddler_coins_awarded_total",
		Help: "Coins credited from moods and ads.",
	})

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toddler_purchases_total",
			Help: "Successful store purchases by category.",
		},
		[]string{"category"},
	)

	MilestonesUnlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toddler_milestones_unlocked_total",
			Help: "Milestone unlock transitions by milestone id.",
		},
		[]string{"milestone"},
	)

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "toddler_active_sessions",
		Help: "Play sessions held in memory.",
	})
)
