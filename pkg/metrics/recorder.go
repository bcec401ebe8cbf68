package metrics

import (
	"strconv"
	"time"
)

// Recorder is the handle components hold to report their own metrics. A nil
// *Recorder is valid and every method on it is a no-op, so components can
// accept one optionally without branching at every call site.
type Recorder struct{}

// NewRecorder returns a Recorder backed by the package's registered
// collectors.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// PhaseTransition records one OODA state machine transition.
func (r *Recorder) PhaseTransition(from, to string) {
	if r == nil {
		return
	}
	oodaPhaseTransitionsTotal.WithLabelValues(from, to).Inc()
}

// PhaseDuration records how long a phase ran before transitioning out.
func (r *Recorder) PhaseDuration(phase string, d time.Duration) {
	if r == nil {
		return
	}
	oodaPhaseDurationSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

// InvestigationOutcome records one investigation's terminal result, e.g.
// "resolved", "failed", "cancelled".
func (r *Recorder) InvestigationOutcome(result string) {
	if r == nil {
		return
	}
	investigationOutcomesTotal.WithLabelValues(result).Inc()
}

// RollbackDecision records one RollbackManager.Decide call's verdict.
func (r *Recorder) RollbackDecision(urgency string, allowed bool) {
	if r == nil {
		return
	}
	rollbackDecisionsTotal.WithLabelValues(urgency, strconv.FormatBool(allowed)).Inc()
}

// EditLockAcquisition records one Acquire attempt's result, e.g. "granted",
// "refreshed", "conflict".
func (r *Recorder) EditLockAcquisition(result string) {
	if r == nil {
		return
	}
	editlockAcquisitionsTotal.WithLabelValues(result).Inc()
}

// BuildStageDuration records one pipeline stage's runtime.
func (r *Recorder) BuildStageDuration(stage string, d time.Duration) {
	if r == nil {
		return
	}
	buildStageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// BuildOutcome records one Build/IncrementalRebuild call's terminal result,
// e.g. "success", "failed".
func (r *Recorder) BuildOutcome(result string) {
	if r == nil {
		return
	}
	buildOutcomesTotal.WithLabelValues(result).Inc()
}

// PatternMatch records one scored match a FindMatching call returned.
func (r *Recorder) PatternMatch(patternType string) {
	if r == nil {
		return
	}
	patternMatchesTotal.WithLabelValues(patternType).Inc()
}
