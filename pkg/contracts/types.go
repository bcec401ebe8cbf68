// Package contracts holds the entity types and collaborator interfaces shared by
// every ChronosOps core component, so pkg/ooda, pkg/investigation, pkg/rollback,
// pkg/editlock, pkg/build, pkg/patterns, and pkg/timeline depend on one definition
// each rather than redeclaring the data model locally.
package contracts

import "time"

// OODAState is a phase of the Observe-Orient-Decide-Act-Verify loop.
type OODAState string

const (
	StateIdle      OODAState = "IDLE"
	StateObserving OODAState = "OBSERVING"
	StateOrienting OODAState = "ORIENTING"
	StateDeciding  OODAState = "DECIDING"
	StateActing    OODAState = "ACTING"
	StateVerifying OODAState = "VERIFYING"
	StateDone      OODAState = "DONE"
	StateFailed    OODAState = "FAILED"
)

// IsTerminal reports whether s is a terminal OODA state.
func (s OODAState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Severity is an incident severity level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IncidentStatus is the lifecycle status of an incident.
type IncidentStatus string

const (
	IncidentActive        IncidentStatus = "active"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentClosed        IncidentStatus = "closed"
)

// Incident is the identity of a failure under investigation.
type Incident struct {
	ID                      string
	Severity                Severity
	Status                  IncidentStatus
	State                   OODAState
	Namespace               string
	StartedAt               time.Time
	ResolvedAt              *time.Time
	IsInvestigating         bool
	InvestigationInstanceID string
	InvestigationHeartbeat  *time.Time
	PhaseRetries            map[OODAState]int
}

// Orphaned reports whether the incident's investigation heartbeat is older than
// staleThreshold, meaning the process that owned it likely died.
func (i *Incident) Orphaned(now time.Time, staleThreshold time.Duration) bool {
	if !i.IsInvestigating || i.InvestigationHeartbeat == nil {
		return false
	}
	return now.Sub(*i.InvestigationHeartbeat) > staleThreshold
}

// HypothesisStatus is the lifecycle status of a Hypothesis.
type HypothesisStatus string

const (
	HypothesisProposed  HypothesisStatus = "proposed"
	HypothesisTesting   HypothesisStatus = "testing"
	HypothesisConfirmed HypothesisStatus = "confirmed"
	HypothesisRejected  HypothesisStatus = "rejected"
)

// Evidence is an immutable observation attached to an incident.
type Evidence struct {
	ID         string
	IncidentID string
	Source     string // logs, metrics, events, video
	Summary    string
	Raw        map[string]interface{}
	CollectedAt time.Time
}

// Hypothesis is a candidate root-cause explanation with a confidence score.
type Hypothesis struct {
	ID          string
	IncidentID  string
	Description string
	RootCause   string
	Confidence  float64 // [0,1]
	Status      HypothesisStatus
	ProposedAt  time.Time
}

// Action is a remediation action to execute against a target.
type Action struct {
	ID         string
	IncidentID string
	Type       string // restart, scale, rollback, code_fix
	Target     string
	Parameters map[string]interface{}
}

// ActionResult is the outcome of executing an Action.
type ActionResult struct {
	Success    bool
	Mode       string // simulated, live, ...
	DurationMs int64
	Message    string
	Error      string
}

// HealthCheck summarizes pod health observed during verification.
type HealthCheck struct {
	Healthy       bool
	ReadyPods     int
	TotalPods     int
	UnhealthyPods []string
}

// VerificationResult is the outcome of verifying a remediation action.
type VerificationResult struct {
	Success        bool
	Confidence     float64
	ChecksPerformed int
	ChecksPassed   int
	ChecksFailed   int
	ShouldRetry    bool
	HealthCheck    *HealthCheck
}

// PatternType classifies a LearnedPattern.
type PatternType string

const (
	PatternDetection  PatternType = "detection"
	PatternDiagnostic PatternType = "diagnostic"
	PatternResolution PatternType = "resolution"
	PatternPrevention PatternType = "prevention"
)

// LearnedPattern is a reusable (triggers -> actions) rule extracted from resolved
// incidents. confidence < 0.3 MUST be rejected at ingest (enforced by callers).
type LearnedPattern struct {
	ID                 string
	Type               PatternType
	Name               string
	Description        string
	TriggerConditions  []string
	RecommendedActions []string
	Exceptions         []string
	Confidence         float64
	TimesMatched       int
	TimesApplied       int
	SuccessRate        *float64
	IsActive           bool
	SourceIncidentID   string
}

// Validate reports the invariants a pattern must satisfy to be ingested.
func (p *LearnedPattern) Validate() error {
	if p.Name == "" {
		return errValidation("name must not be empty")
	}
	if p.Description == "" {
		return errValidation("description must not be empty")
	}
	if len(p.TriggerConditions) == 0 {
		return errValidation("triggerConditions must not be empty")
	}
	if len(p.RecommendedActions) == 0 {
		return errValidation("recommendedActions must not be empty")
	}
	if p.Confidence < 0.3 || p.Confidence > 1 {
		return errValidation("confidence must be in [0.3, 1]")
	}
	return nil
}

// LockStatus is the lifecycle status of an EditLock.
type LockStatus string

const (
	LockActive   LockStatus = "active"
	LockExpired  LockStatus = "expired"
	LockReleased LockStatus = "released"
)

// LockType distinguishes an interactive edit from an automated evolution.
type LockType string

const (
	LockTypeEdit      LockType = "edit"
	LockTypeEvolution LockType = "evolution"
)

// LockScope bounds an EditLock to one file or the whole project.
type LockScope string

const (
	LockScopeFile    LockScope = "file"
	LockScopeProject LockScope = "project"
)

// EditLock serializes mutation of a development cycle's workspace.
type EditLock struct {
	ID                string
	DevelopmentCycleID string
	LockedBy          string
	Type              LockType
	Scope             LockScope
	Files             []string
	ExpiresAt         time.Time
	LastHeartbeat     time.Time
	ExtensionCount    int
	Status            LockStatus
	LockedFiles       []string
	LocalBackup       map[string]string
}

// Usable reports whether the lock can currently be used by its holder.
func (l *EditLock) Usable(now time.Time) bool {
	return l.Status == LockActive && l.ExpiresAt.After(now)
}

// DevelopmentCyclePhase is a phase of the build/deploy pipeline driving a cycle.
type DevelopmentCyclePhase string

const (
	CycleIdle      DevelopmentCyclePhase = "IDLE"
	CycleCompleted DevelopmentCyclePhase = "COMPLETED"
	CycleFailed    DevelopmentCyclePhase = "FAILED"
)

// DevelopmentCycle tracks one requirement-to-deployed-service pipeline run.
type DevelopmentCycle struct {
	ID            string
	Phase         DevelopmentCyclePhase
	ServiceType   string
	Requirement   string
	Iterations    int
	PhaseRetries  map[string]int
	CompletedAt   *time.Time
}

// Interrupted reports whether the cycle died mid-flight and is resume-eligible.
func (c *DevelopmentCycle) Interrupted() bool {
	if c.CompletedAt != nil {
		return false
	}
	return c.Phase != CycleIdle && c.Phase != CycleCompleted && c.Phase != CycleFailed
}

// BuildStage is a stage of the BuildOrchestrator pipeline.
type BuildStage string

const (
	StageInstalling BuildStage = "installing"
	StageLinting    BuildStage = "linting"
	StageTesting    BuildStage = "testing"
	StageBuilding   BuildStage = "building"
	StagePushing    BuildStage = "pushing"
	StageComplete   BuildStage = "complete"
	StageFailed     BuildStage = "failed"
)

// BuildContext is the working state of one build pipeline run.
type BuildContext struct {
	ID        string
	AppName   string
	Files     map[string]string
	WorkDir   string
	Stage     BuildStage
	StartedAt time.Time
	Logs      []string
}

func errValidation(msg string) error {
	return &validationError{msg}
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
