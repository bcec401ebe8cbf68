// Package ooda implements the Observe-Orient-Decide-Act-Verify state machine:
// phase transitions validated against a fixed table, per-phase retry budgets,
// phase timeouts with race-guarded timers, and crash-resume support.
package ooda

import (
	"strconv"
	"sync"
	"time"

	"github.com/broadcomms/chronosops/internal/errors"
	"github.com/broadcomms/chronosops/internal/logging"
	"github.com/broadcomms/chronosops/pkg/contracts"
	"github.com/sirupsen/logrus"
)

// transitionTable enumerates every (from, to) pair the machine accepts. Anything
// not listed here fails with *errors.InvalidTransitionError.
var transitionTable = map[contracts.OODAState]map[contracts.OODAState]bool{
	contracts.StateIdle: {
		contracts.StateObserving: true,
	},
	contracts.StateObserving: {
		contracts.StateObserving: true,
		contracts.StateOrienting: true,
		contracts.StateFailed:    true,
	},
	contracts.StateOrienting: {
		contracts.StateOrienting: true,
		contracts.StateDeciding:  true,
		contracts.StateObserving: true,
		contracts.StateFailed:    true,
	},
	contracts.StateDeciding: {
		contracts.StateDeciding:  true,
		contracts.StateActing:    true,
		contracts.StateOrienting: true,
		contracts.StateFailed:    true,
	},
	contracts.StateActing: {
		contracts.StateVerifying: true,
		contracts.StateObserving: true,
		contracts.StateFailed:    true,
	},
	contracts.StateVerifying: {
		contracts.StateDone:      true,
		contracts.StateObserving: true,
		contracts.StateFailed:    true,
	},
}

// PhaseTimeouts configures the deadline for each non-terminal phase.
type PhaseTimeouts struct {
	Observing time.Duration
	Orienting time.Duration
	Deciding  time.Duration
	Acting    time.Duration
	Verifying time.Duration
}

// DefaultPhaseTimeouts returns the default per-phase deadlines: ACTING
// gets 300s to allow for slow remediation actions, the others get 60s.
func DefaultPhaseTimeouts() PhaseTimeouts {
	return PhaseTimeouts{
		Observing: 60 * time.Second,
		Orienting: 60 * time.Second,
		Deciding:  60 * time.Second,
		Acting:    300 * time.Second,
		Verifying: 60 * time.Second,
	}
}

func (t PhaseTimeouts) forState(s contracts.OODAState) time.Duration {
	switch s {
	case contracts.StateObserving:
		return t.Observing
	case contracts.StateOrienting:
		return t.Orienting
	case contracts.StateDeciding:
		return t.Deciding
	case contracts.StateActing:
		return t.Acting
	case contracts.StateVerifying:
		return t.Verifying
	default:
		return 0 // IDLE/DONE/FAILED are unbounded
	}
}

// MaxRetries configures the per-phase retry budget.
type MaxRetries map[contracts.OODAState]int

// DefaultMaxRetries returns a retry budget of 3 per transient phase.
func DefaultMaxRetries() MaxRetries {
	return MaxRetries{
		contracts.StateObserving: 3,
		contracts.StateOrienting: 3,
		contracts.StateDeciding:  3,
		contracts.StateActing:    3,
		contracts.StateVerifying: 3,
	}
}

// Config bundles the state machine's tunables.
type Config struct {
	PhaseTimeouts PhaseTimeouts
	MaxRetries    MaxRetries
}

// DefaultConfig returns reasonable defaults for production use.
func DefaultConfig() Config {
	return Config{
		PhaseTimeouts: DefaultPhaseTimeouts(),
		MaxRetries:    DefaultMaxRetries(),
	}
}

// Event is one notification emitted by the state machine. Orchestrator subscribes
// at construction time (callback registration, not mutual ownership) rather than
// the machine holding a reference back to its driver.
type Event struct {
	Kind    string // state:exited, state:changed, state:entered, phase:timeout, incident:resolved, incident:failed
	From    contracts.OODAState
	To      contracts.OODAState
	Reason  string
	Details map[string]interface{}
}

// Listener receives state machine events. Implementations must not block.
type Listener func(Event)

// StateMachine drives one incident's OODA phase transitions. Not safe for use by
// multiple investigations concurrently; one StateMachine per investigation.
type StateMachine struct {
	mu        sync.Mutex
	cfg       Config
	logger    *logrus.Logger
	listeners []Listener

	incidentID   string
	current      contracts.OODAState
	phaseRetries map[contracts.OODAState]int
	failureReason string

	timer      *time.Timer
	armedFor   contracts.OODAState
	armedEpoch uint64
}

// New constructs a StateMachine in IDLE, ready for Start or Resume.
func New(cfg Config, logger *logrus.Logger) *StateMachine {
	if logger == nil {
		logger = logrus.New()
	}
	return &StateMachine{
		cfg:          cfg,
		logger:       logger,
		current:      contracts.StateIdle,
		phaseRetries: map[contracts.OODAState]int{},
	}
}

// Subscribe registers a listener for all future events. Not safe to call
// concurrently with state transitions.
func (m *StateMachine) Subscribe(l Listener) {
	m.listeners = append(m.listeners, l)
}

func (m *StateMachine) emit(e Event) {
	for _, l := range m.listeners {
		l(e)
	}
}

// Current returns the machine's current phase.
func (m *StateMachine) Current() contracts.OODAState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// FailureReason returns the reason recorded when the machine reached FAILED, or
// the empty string if it has not failed.
func (m *StateMachine) FailureReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failureReason
}

// PhaseRetries returns a copy of the per-phase retry counters, for persistence.
func (m *StateMachine) PhaseRetries() map[contracts.OODAState]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[contracts.OODAState]int, len(m.phaseRetries))
	for k, v := range m.phaseRetries {
		out[k] = v
	}
	return out
}

// Start transitions IDLE -> OBSERVING, permitted only from IDLE.
func (m *StateMachine) Start(incidentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != contracts.StateIdle {
		return &errors.InvalidTransitionError{From: string(m.current), To: string(contracts.StateObserving)}
	}
	m.incidentID = incidentID
	return m.transitionLocked(contracts.StateObserving, "incident_triggered")
}

// Resume restores mid-flight state without clearing retries, permitted from IDLE.
// It re-arms the phase timer for the restored state.
func (m *StateMachine) Resume(incidentID string, state contracts.OODAState, phaseRetries map[contracts.OODAState]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != contracts.StateIdle {
		return &errors.InvalidTransitionError{From: string(m.current), To: string(state)}
	}
	m.incidentID = incidentID
	m.current = state
	m.phaseRetries = map[contracts.OODAState]int{}
	for k, v := range phaseRetries {
		m.phaseRetries[k] = v
	}
	m.logger.WithFields(logging.NewFields().Component("ooda").Operation("resume").
		Custom("incident_id", incidentID).Custom("state", string(state)).ToLogrus()).
		Info("resumed investigation")
	m.armPhaseTimerLocked()
	return nil
}

// reasonFor maps an accepted (from,to) pair to its named transition condition.
func reasonFor(from, to contracts.OODAState) string {
	switch {
	case from == to:
		return "retry_on_timeout"
	case from == contracts.StateObserving && to == contracts.StateOrienting:
		return "observations_collected"
	case from == contracts.StateOrienting && to == contracts.StateDeciding:
		return "correlations_found"
	case from == contracts.StateOrienting && to == contracts.StateObserving:
		return "need_more_data"
	case from == contracts.StateDeciding && to == contracts.StateActing:
		return "hypothesis_confirmed"
	case from == contracts.StateDeciding && to == contracts.StateOrienting:
		return "hypothesis_rejected"
	case from == contracts.StateActing && to == contracts.StateVerifying:
		return "action_executed"
	case from == contracts.StateActing && to == contracts.StateObserving:
		return "retry_from_failure"
	case from == contracts.StateVerifying && to == contracts.StateDone:
		return "fix_verified"
	case from == contracts.StateVerifying && to == contracts.StateObserving:
		return "fix_not_working"
	case to == contracts.StateFailed:
		return "max_retries_exceeded"
	default:
		return ""
	}
}

// Transition validates and applies to against the fixed transition table, using
// reason as the event's diagnostic label (defaults to the named condition
// when reason is empty).
func (m *StateMachine) Transition(to contracts.OODAState, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reason == "" {
		reason = reasonFor(m.current, to)
	}
	return m.transitionLocked(to, reason)
}

func (m *StateMachine) transitionLocked(to contracts.OODAState, reason string) error {
	from := m.current
	allowed, ok := transitionTable[from]
	if !ok || !allowed[to] {
		return &errors.InvalidTransitionError{From: string(from), To: string(to)}
	}

	m.stopTimerLocked()
	m.emit(Event{Kind: "state:exited", From: from, To: to, Reason: reason})
	m.current = to
	m.emit(Event{Kind: "state:changed", From: from, To: to, Reason: reason})
	m.emit(Event{Kind: "state:entered", From: from, To: to, Reason: reason})

	switch to {
	case contracts.StateDone:
		m.emit(Event{Kind: "incident:resolved", From: from, To: to, Reason: reason})
	case contracts.StateFailed:
		m.emit(Event{Kind: "incident:failed", From: from, To: to, Reason: reason,
			Details: map[string]interface{}{"failureReason": m.failureReason}})
	default:
		m.armPhaseTimerLocked()
	}
	return nil
}

// CanRetryPhase atomically checks and, if allowed, increments the per-phase
// retry counter for state; returns true iff the budget was not yet exhausted.
func (m *StateMachine) CanRetryPhase(state contracts.OODAState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canRetryPhaseLocked(state)
}

func (m *StateMachine) canRetryPhaseLocked(state contracts.OODAState) bool {
	budget := m.cfg.MaxRetries[state]
	if m.phaseRetries[state] >= budget {
		return false
	}
	m.phaseRetries[state]++
	return true
}

// RetryTarget returns the phase a retry should land on: self-retry for the
// transient AI-driven phases, OBSERVING (fresh evidence) for ACTING/VERIFYING.
func RetryTarget(state contracts.OODAState) contracts.OODAState {
	switch state {
	case contracts.StateObserving, contracts.StateOrienting, contracts.StateDeciding:
		return state
	default:
		return contracts.StateObserving
	}
}

// Fail transitions the current phase to FAILED with the given reason, recording
// it for FailureReason(). Permitted from OBSERVING, ORIENTING, DECIDING,
// ACTING and VERIFYING; from IDLE, DONE or FAILED it returns an
// InvalidTransitionError.
func (m *StateMachine) Fail(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureReason = reason
	return m.transitionLocked(contracts.StateFailed, reason)
}

// armPhaseTimerLocked arms a timer for the current phase. Must hold m.mu.
func (m *StateMachine) armPhaseTimerLocked() {
	timeout := m.cfg.PhaseTimeouts.forState(m.current)
	if timeout <= 0 {
		return
	}
	m.armedFor = m.current
	m.armedEpoch++
	epoch := m.armedEpoch
	phase := m.current
	m.timer = time.AfterFunc(timeout, func() {
		m.onPhaseTimeout(phase, epoch)
	})
}

func (m *StateMachine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// onPhaseTimeout fires when a phase timer elapses. It re-validates that the
// machine is still in the phase it was armed for (race guard: mid-flight
// transitions invalidate queued timeouts) before acting.
func (m *StateMachine) onPhaseTimeout(armedFor contracts.OODAState, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != armedFor || m.armedEpoch != epoch {
		return // stale timer; a transition already happened
	}

	m.emit(Event{Kind: "phase:timeout", From: armedFor, To: armedFor})

	if m.canRetryPhaseLocked(armedFor) {
		target := RetryTarget(armedFor)
		reason := "Phase " + string(armedFor) + " timed out, retrying"
		_ = m.transitionLocked(target, reason)
		return
	}

	budget := m.cfg.MaxRetries[armedFor]
	m.failureReason = "Phase " + string(armedFor) + " timed out after " +
		strconv.Itoa(budget) + " retries"
	_ = m.transitionLocked(contracts.StateFailed, m.failureReason)
}
