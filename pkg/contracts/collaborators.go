package contracts

import (
	"context"
	"time"
)

// TriggerCondition is one element of a learned pattern's trigger set, as proposed
// by an AI extractor before it is flattened into LearnedPattern.TriggerConditions.
type TriggerCondition struct {
	Signal    string
	Threshold string
	Source    string
}

// RecommendedAction is one element of a learned pattern's recommended-action set,
// as proposed by an AI extractor.
type RecommendedAction struct {
	Action string
	When   string
}

// ProposedPattern is the AI extractor's raw proposal before KB ingest validation.
type ProposedPattern struct {
	Type               PatternType
	Name               string
	Description        string
	TriggerConditions  []TriggerCondition
	RecommendedActions []RecommendedAction
	Confidence         float64
	Applicability       string
	Exceptions          []string
}

// IncidentContext is the evidence bundle handed to the AI extractor.
type IncidentContext struct {
	IncidentID      string
	Severity        Severity
	Namespace       string
	ErrorMessages   []string
	Logs            []string
	Events          []EventObservation
	MetricAnomalies []MetricAnomaly
	AffectedService string
	Symptoms        []string
}

// EventObservation is one Kubernetes-shaped event surfaced to the extractor.
type EventObservation struct {
	Type    string
	Reason  string
	Message string
}

// MetricAnomaly is one anomalous metric reading surfaced to the extractor.
type MetricAnomaly struct {
	Metric    string
	Deviation float64
}

// ExtractResult is the AI extractor's pattern-extraction output.
type ExtractResult struct {
	Patterns []ProposedPattern
}

// RawIncidentData is unparsed material fed to ReconstructIncident.
type RawIncidentData struct {
	IncidentID string
	Payload    map[string]interface{}
}

// RootCause is the extractor's best explanation for a reconstructed incident.
type RootCause struct {
	Description string
	Confidence  float64
	Evidence    []string
}

// Reconstruction is the AI extractor's narrative reconstruction of an incident.
type Reconstruction struct {
	Timeline        []string
	CausalChain     []string
	RootCause       RootCause
	Recommendations []string
	Narrative       string
	DataQuality     string
}

// Extractor is the injected AI collaborator used in ORIENTING/DECIDING and by the
// pattern learner. Errors are transient unless tagged permanent (see pkg/resilience).
type Extractor interface {
	ExtractPatterns(ctx context.Context, incidentCtx IncidentContext) (ExtractResult, error)
	ReconstructIncident(ctx context.Context, rawData RawIncidentData) (Reconstruction, error)
}

// AvailabilityResult reports which execution modes a collaborator can currently use.
type AvailabilityResult struct {
	Modes []string
}

// CooldownResult reports whether an action is currently allowed under cooldown.
type CooldownResult struct {
	Allowed      bool
	RemainingMs  int64
}

// Executor is the injected remediation collaborator used in ACTING.
type Executor interface {
	Execute(ctx context.Context, action Action) (ActionResult, error)
	CheckAvailability(ctx context.Context) (AvailabilityResult, error)
	CheckCooldown(ctx context.Context, action Action) (CooldownResult, error)
}

// Verifier is the injected health-check collaborator used in VERIFYING.
type Verifier interface {
	Verify(ctx context.Context, action Action, wait time.Duration) (VerificationResult, error)
}

// ClusterSnapshotter lazily captures cluster state for a rollback's audit trail.
// A nil ClusterSnapshotter is valid; RollbackManager treats its absence as "no
// snapshot available" rather than an error.
type ClusterSnapshotter interface {
	Snapshot(ctx context.Context, namespace, deployment string) (map[string]interface{}, error)
}
