// Package investigation implements the InvestigationOrchestrator: it drives one
// incident's pkg/ooda.StateMachine through OBSERVING -> ORIENTING -> DECIDING ->
// ACTING -> VERIFYING, collecting evidence, generating and testing hypotheses,
// executing remediation actions under a cooldown and cap, and verifying recovery.
package investigation

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/broadcomms/chronosops/internal/errors"
	"github.com/broadcomms/chronosops/internal/logging"
	"github.com/broadcomms/chronosops/pkg/contracts"
	"github.com/broadcomms/chronosops/pkg/ooda"
	"github.com/broadcomms/chronosops/pkg/patterns"
	"github.com/broadcomms/chronosops/pkg/resilience"
	"github.com/broadcomms/chronosops/pkg/rollback"
)

// EvidenceCollector gathers evidence for the OBSERVING phase. Concrete log/metric/
// event/video parsing is an external collaborator per the coordination layer's scope.
type EvidenceCollector interface {
	Collect(ctx context.Context, incident *contracts.Incident) ([]contracts.Evidence, error)
}

// PatternMatcher queries the pattern knowledge base for correlations during
// ORIENTING. It is satisfied directly by *patterns.KnowledgeBase.
type PatternMatcher interface {
	FindMatching(input PatternMatchInput, opts PatternMatchOptions) ([]PatternMatch, error)
}

// PatternMatchInput is an alias for patterns.MatchInput.
type PatternMatchInput = patterns.MatchInput

// PatternMatchOptions is an alias for patterns.MatchOptions.
type PatternMatchOptions = patterns.MatchOptions

// PatternMatch is an alias for patterns.Match.
type PatternMatch = patterns.Match

// HypothesisGenerator produces candidate hypotheses during DECIDING, informed by
// evidence and any pattern correlations found in ORIENTING.
type HypothesisGenerator interface {
	Generate(ctx context.Context, incident *contracts.Incident, evidence []contracts.Evidence, matches []PatternMatch) ([]contracts.Hypothesis, error)
}

// RollbackManager is the subset of *rollback.Manager the orchestrator needs.
type RollbackManager interface {
	Decide(ctx context.Context, incidentID string, action contracts.ActionResult, verification contracts.VerificationResult) (RollbackDecision, error)
}

// RollbackDecision is an alias for rollback.Decision so *rollback.Manager
// satisfies RollbackManager directly.
type RollbackDecision = rollback.Decision

// CodeFixEnqueuer hands a code_fix escalation off to the development-cycle
// pipeline instead of executing it synchronously: code_fix is asynchronous,
// so the investigation enqueues it and waits rather than blocking on a
// single Executor.Execute call.
type CodeFixEnqueuer interface {
	EnqueueCodeFix(ctx context.Context, incident *contracts.Incident, hypothesis contracts.Hypothesis) (contracts.ActionResult, error)
}

// Config bundles the orchestrator's tunables.
type Config struct {
	ConfidenceThreshold    float64
	MaxActionsPerIncident  int
	ActionCooldown         time.Duration
	VerificationWait       time.Duration
	MaxVerificationAttempts int
}

// DefaultConfig returns reasonable defaults for production use.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:     0.7,
		MaxActionsPerIncident:   5,
		ActionCooldown:          60 * time.Second,
		VerificationWait:        5 * time.Second,
		MaxVerificationAttempts: 3,
	}
}

// Collaborators bundles every injected dependency the orchestrator drives.
type Collaborators struct {
	Evidence   EvidenceCollector
	Patterns   PatternMatcher
	Hypotheses HypothesisGenerator
	Executor   contracts.Executor
	Verifier   contracts.Verifier
	Rollback   RollbackManager
	Classifier *resilience.Classifier
	CodeFixes  CodeFixEnqueuer
}

// Event is one notification the orchestrator emits while driving an investigation.
type Event struct {
	Kind       string
	IncidentID string
	Details    map[string]interface{}
}

// Listener receives orchestrator events. Implementations must not block.
type Listener func(Event)

// escalationOrder is the remediation latitude order an Executor may use when it
// chooses its own action type: rollback is tried first, code-level
// evolution is the last resort.
var escalationOrder = []string{"rollback", "restart", "scale", "code_fix"}

// Orchestrator drives exactly one incident's investigation.
type Orchestrator struct {
	cfg    Config
	deps   Collaborators
	sm     *ooda.StateMachine
	logger *logrus.Logger

	mu                 sync.Mutex
	listeners          []Listener
	incident           *contracts.Incident
	evidence           []contracts.Evidence
	matches            []PatternMatch
	hypotheses         []contracts.Hypothesis
	chosenHypothesis   *contracts.Hypothesis
	actionsExecuted    int
	lastActionAt       time.Time
	verificationRetries int
	lastAction         contracts.ActionResult
	pendingCodeFix     bool
}

// New constructs an Orchestrator for one incident, registering itself on sm's
// event stream at construction time rather than sm owning the orchestrator.
func New(cfg Config, deps Collaborators, sm *ooda.StateMachine, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	o := &Orchestrator{cfg: cfg, deps: deps, sm: sm, logger: logger}
	sm.Subscribe(o.onStateEvent)
	return o
}

// Subscribe registers a listener for investigation events.
func (o *Orchestrator) Subscribe(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

func (o *Orchestrator) emit(e Event) {
	o.mu.Lock()
	listeners := append([]Listener(nil), o.listeners...)
	o.mu.Unlock()
	for _, l := range listeners {
		l(e)
	}
}

func (o *Orchestrator) onStateEvent(e ooda.Event) {
	if e.Kind != "state:entered" {
		return
	}
	o.emit(Event{Kind: "phase:changed", IncidentID: o.incidentID(), Details: map[string]interface{}{
		"from": string(e.From), "to": string(e.To),
	}})
}

func (o *Orchestrator) incidentID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.incident == nil {
		return ""
	}
	return o.incident.ID
}

// Start begins an investigation of incident, driving it start-to-terminal. Run
// until ctx is cancelled or the state machine reaches DONE/FAILED. The
// investigation is one cancellable task: cancelling ctx closes all pending
// collaborator calls and the loop observes "investigation:failed" with reason
// "cancelled".
func (o *Orchestrator) Start(ctx context.Context, incident *contracts.Incident) error {
	o.mu.Lock()
	o.incident = incident
	o.mu.Unlock()

	incident.IsInvestigating = true
	incident.InvestigationInstanceID = uuid.NewString()
	o.stampHeartbeat()

	o.logger.WithFields(logging.NewFields().Component("investigation").Operation("start").
		Custom("incident_id", incident.ID).Custom("severity", string(incident.Severity)).ToLogrus()).
		Info("investigation started")
	o.emit(Event{Kind: "investigation:started", IncidentID: incident.ID})
	if err := o.sm.Start(incident.ID); err != nil {
		return err
	}
	return o.run(ctx)
}

// Resume continues an interrupted investigation from state with its existing
// retry budget intact (crash recovery).
func (o *Orchestrator) Resume(ctx context.Context, incident *contracts.Incident, state contracts.OODAState) error {
	o.mu.Lock()
	o.incident = incident
	o.mu.Unlock()

	incident.IsInvestigating = true
	incident.InvestigationInstanceID = uuid.NewString()
	o.stampHeartbeat()

	if err := o.sm.Resume(incident.ID, state, incident.PhaseRetries); err != nil {
		return err
	}
	return o.run(ctx)
}

// stampHeartbeat refreshes the incident's investigation heartbeat so the
// crash-recovery scan does not mistake a live investigation for an orphan.
func (o *Orchestrator) stampHeartbeat() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.incident == nil {
		return
	}
	now := time.Now()
	o.incident.InvestigationHeartbeat = &now
}

// run drives the phase loop until a terminal state is reached or ctx is done.
func (o *Orchestrator) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			o.emit(Event{Kind: "investigation:failed", IncidentID: o.incidentID(),
				Details: map[string]interface{}{"reason": "cancelled"}})
			return ctx.Err()
		default:
		}

		o.stampHeartbeat()

		phase := o.sm.Current()
		if phase.IsTerminal() {
			if phase == contracts.StateDone {
				o.emit(Event{Kind: "investigation:completed", IncidentID: o.incidentID()})
			} else {
				o.emit(Event{Kind: "investigation:failed", IncidentID: o.incidentID(),
					Details: map[string]interface{}{"reason": o.sm.FailureReason()}})
			}
			o.mu.Lock()
			if o.incident != nil {
				o.incident.IsInvestigating = false
			}
			o.mu.Unlock()
			return nil
		}

		if err := o.step(ctx, phase); err != nil {
			return err
		}
	}
}

// step executes the collaborator work for the current phase and drives the next
// transition. A transient error is converted to a CanRetryPhase decision; a
// permanent error sets failureReason and fails the phase immediately.
func (o *Orchestrator) step(ctx context.Context, phase contracts.OODAState) error {
	var err error
	switch phase {
	case contracts.StateObserving:
		err = o.observe(ctx)
	case contracts.StateOrienting:
		err = o.orient(ctx)
	case contracts.StateDeciding:
		err = o.decide(ctx)
	case contracts.StateActing:
		err = o.act(ctx)
	case contracts.StateVerifying:
		err = o.verify(ctx)
	default:
		return nil
	}

	if err == nil {
		return nil
	}
	return o.handlePhaseError(phase, err)
}

func (o *Orchestrator) handlePhaseError(phase contracts.OODAState, err error) error {
	classification := resilience.Transient

	var permanent *errors.PermanentCollaboratorError
	var transient *errors.TransientCollaboratorError
	switch {
	case stderrors.As(err, &permanent):
		classification = resilience.Permanent
	case stderrors.As(err, &transient):
		// Typed transient, but the classifier can still overrule it when the
		// collaborator's circuit breaker has tripped open.
		if o.deps.Classifier != nil {
			classification = o.deps.Classifier.Classify("investigation", err)
		}
	default:
		if o.deps.Classifier != nil {
			classification = o.deps.Classifier.Classify("investigation", err)
		} else if !errors.IsRetryable(err) {
			classification = resilience.Permanent
		}
	}

	if classification == resilience.Permanent {
		return o.sm.Fail(err.Error())
	}

	if o.sm.CanRetryPhase(phase) {
		return o.sm.Transition(ooda.RetryTarget(phase), "")
	}
	return o.sm.Fail(fmt.Sprintf("%s: %s", phase, err.Error()))
}

func (o *Orchestrator) observe(ctx context.Context) error {
	if o.deps.Evidence == nil {
		return o.sm.Transition(contracts.StateOrienting, "")
	}
	ev, err := o.deps.Evidence.Collect(ctx, o.incident)
	if err != nil {
		return errors.NewTransientCollaboratorError("collect evidence", "evidence", err)
	}
	o.mu.Lock()
	o.evidence = append(o.evidence, ev...)
	o.mu.Unlock()
	o.emit(Event{Kind: "observation:collected", IncidentID: o.incidentID(),
		Details: map[string]interface{}{"count": len(ev)}})
	return o.sm.Transition(contracts.StateOrienting, "")
}

func (o *Orchestrator) orient(ctx context.Context) error {
	if o.deps.Patterns == nil {
		return o.sm.Transition(contracts.StateDeciding, "")
	}
	input := PatternMatchInput{AffectedService: o.incident.Namespace}
	for _, e := range o.evidence {
		input.Logs = append(input.Logs, e.Summary)
	}
	matches, err := o.deps.Patterns.FindMatching(input, PatternMatchOptions{MinScore: 0.3, MaxResults: 10})
	if err != nil {
		return errors.NewTransientCollaboratorError("query pattern kb", "patterns", err)
	}

	o.mu.Lock()
	o.matches = matches
	o.mu.Unlock()

	if len(matches) == 0 {
		// The knowledge base is static for the life of one investigation, so
		// an empty match set can only terminate through the ORIENTING retry
		// budget; an unbounded need_more_data loop would otherwise cycle
		// OBSERVING/ORIENTING forever on a fresh deployment with no learned
		// patterns.
		if o.sm.CanRetryPhase(contracts.StateOrienting) {
			return o.sm.Transition(contracts.StateObserving, "")
		}
		return o.sm.Fail(string(contracts.StateOrienting) + ": max_retries_exceeded")
	}
	return o.sm.Transition(contracts.StateDeciding, "")
}

func (o *Orchestrator) decide(ctx context.Context) error {
	if o.deps.Hypotheses == nil {
		return o.sm.Fail("no_viable_hypothesis")
	}
	candidates, err := o.deps.Hypotheses.Generate(ctx, o.incident, o.evidence, o.matches)
	if err != nil {
		return errors.NewTransientCollaboratorError("generate hypotheses", "hypotheses", err)
	}

	best := bestHypothesis(candidates)
	if best == nil || best.Confidence < o.cfg.ConfidenceThreshold {
		return o.sm.Fail("no_viable_hypothesis")
	}

	o.mu.Lock()
	o.hypotheses = candidates
	o.chosenHypothesis = best
	o.mu.Unlock()

	o.emit(Event{Kind: "hypothesis:generated", IncidentID: o.incidentID(),
		Details: map[string]interface{}{"confidence": best.Confidence, "rootCause": best.RootCause}})
	return o.sm.Transition(contracts.StateActing, "")
}

func bestHypothesis(candidates []contracts.Hypothesis) *contracts.Hypothesis {
	var best *contracts.Hypothesis
	for i := range candidates {
		if best == nil || candidates[i].Confidence > best.Confidence {
			best = &candidates[i]
		}
	}
	return best
}

func (o *Orchestrator) act(ctx context.Context) error {
	o.mu.Lock()
	if o.actionsExecuted >= o.cfg.MaxActionsPerIncident {
		o.mu.Unlock()
		return o.sm.Fail((&errors.BudgetExceededError{Budget: "maxActionsPerIncident", Limit: o.cfg.MaxActionsPerIncident}).Error())
	}
	if !o.lastActionAt.IsZero() && time.Since(o.lastActionAt) < o.cfg.ActionCooldown {
		o.mu.Unlock()
		return errors.NewTransientCollaboratorError("enforce action cooldown", "executor",
			fmt.Errorf("cooldown active"))
	}
	hyp := o.chosenHypothesis
	o.mu.Unlock()

	if hyp == nil {
		return o.sm.Fail("no_viable_hypothesis")
	}

	actionType := firstAvailableAction(ctx, o.deps.Executor)
	action := contracts.Action{
		ID:         uuid.NewString(),
		IncidentID: o.incident.ID,
		Type:       actionType,
		Target:     o.incident.Namespace,
	}

	if actionType == "code_fix" && o.deps.CodeFixes != nil {
		result, err := o.deps.CodeFixes.EnqueueCodeFix(ctx, o.incident, *hyp)
		if err != nil {
			return errors.NewTransientCollaboratorError("enqueue code fix", "code_fix", err)
		}

		o.mu.Lock()
		o.actionsExecuted++
		o.lastActionAt = time.Now()
		o.lastAction = result
		o.pendingCodeFix = true
		o.mu.Unlock()

		o.emit(Event{Kind: "action:executed", IncidentID: o.incidentID(),
			Details: map[string]interface{}{"mode": "async"}})

		// code_fix is asynchronous: the development cycle it enqueued runs on
		// its own pipeline, so VERIFYING checks on it directly instead of
		// waiting out the fixed verificationWaitMs pause meant for a
		// synchronous action.
		return o.sm.Transition(contracts.StateVerifying, "")
	}

	result, err := o.deps.Executor.Execute(ctx, action)
	if err != nil {
		return errors.NewTransientCollaboratorError("execute action", "executor", err)
	}
	if !result.Success {
		return o.sm.Fail("action_failed: " + result.Error)
	}

	o.mu.Lock()
	o.actionsExecuted++
	o.lastActionAt = time.Now()
	o.lastAction = result
	o.pendingCodeFix = false
	o.mu.Unlock()

	o.emit(Event{Kind: "action:executed", IncidentID: o.incidentID(),
		Details: map[string]interface{}{"mode": result.Mode}})

	select {
	case <-time.After(o.cfg.VerificationWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	return o.sm.Transition(contracts.StateVerifying, "")
}

// firstAvailableAction picks the first action type from the escalation order
// that the executor reports it can currently run. Errors checking availability
// fall back to "restart", the safest default.
func firstAvailableAction(ctx context.Context, exec contracts.Executor) string {
	avail, err := exec.CheckAvailability(ctx)
	if err != nil {
		return "restart"
	}
	modes := map[string]bool{}
	for _, m := range avail.Modes {
		modes[m] = true
	}
	for _, a := range escalationOrder {
		if modes[a] {
			return a
		}
	}
	return "restart"
}

func (o *Orchestrator) verify(ctx context.Context) error {
	o.mu.Lock()
	pending := o.pendingCodeFix
	o.mu.Unlock()

	result, err := o.deps.Verifier.Verify(ctx, contracts.Action{IncidentID: o.incident.ID}, o.cfg.VerificationWait)
	if err != nil {
		return errors.NewTransientCollaboratorError("verify action", "verifier", err)
	}

	o.emit(Event{Kind: "verification:completed", IncidentID: o.incidentID(),
		Details: map[string]interface{}{"success": result.Success}})

	if result.Success {
		o.mu.Lock()
		o.pendingCodeFix = false
		o.mu.Unlock()
		return o.sm.Transition(contracts.StateDone, "")
	}

	// verificationRetries is cumulative across OBSERVING re-entries and is
	// never reset, so a flapping fix can't reset its own attempt budget by
	// cycling back through observation.
	o.mu.Lock()
	o.verificationRetries++
	attempts := o.verificationRetries
	o.mu.Unlock()

	// A code_fix escalation is already the last resort in escalationOrder:
	// rolling it back makes no sense while its development cycle is still
	// in flight, so a pending code fix never triggers a rollback decision.
	shouldRollback := false
	if !pending && o.deps.Rollback != nil {
		decision, derr := o.deps.Rollback.Decide(ctx, o.incident.ID, o.lastAction, result)
		if derr == nil {
			shouldRollback = decision.ShouldRollback
		}
	}

	if attempts <= o.cfg.MaxVerificationAttempts && !shouldRollback {
		return o.sm.Transition(contracts.StateObserving, "")
	}

	o.mu.Lock()
	o.pendingCodeFix = false
	o.mu.Unlock()

	reason := "verification_failed"
	if shouldRollback {
		reason = "verification_failed: rollback requested"
	}
	return o.sm.Fail(reason)
}
