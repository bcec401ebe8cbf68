// Package metrics registers ChronosOps' Prometheus collectors and exposes a
// nil-safe Recorder each component records through, so a caller that wires no
// metrics server at all (e.g. a unit test) never has to nil-check before
// calling its methods.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	oodaPhaseTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ooda_phase_transitions_total",
		Help: "Total number of OODA state machine phase transitions.",
	}, []string{"from", "to"})

	oodaPhaseDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ooda_phase_duration_seconds",
		Help:    "Time spent in each OODA phase before transitioning out.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	investigationOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "investigation_outcomes_total",
		Help: "Total number of investigations by terminal outcome.",
	}, []string{"result"})

	rollbackDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollback_decisions_total",
		Help: "Total number of rollback decisions by urgency and whether rollback was allowed.",
	}, []string{"urgency", "allowed"})

	editlockAcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "editlock_acquisitions_total",
		Help: "Total number of edit lock acquisition attempts by result.",
	}, []string{"result"})

	buildStageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "build_stage_duration_seconds",
		Help:    "Duration of each build pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	buildOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "build_outcomes_total",
		Help: "Total number of build pipeline runs by outcome.",
	}, []string{"result"})

	patternMatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pattern_matches_total",
		Help: "Total number of learned-pattern matches by pattern type.",
	}, []string{"type"})
)
