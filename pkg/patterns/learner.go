package patterns

import (
	"context"
	"strings"

	"github.com/broadcomms/chronosops/pkg/contracts"
)

// IncidentForLearning bundles the material the learner hands to the injected
// AI extractor: the resolved incident, the evidence gathered while
// investigating it, the confirmed hypothesis and executed action, and
// (optionally) a narrative reconstruction produced separately by
// Extractor.ReconstructIncident.
type IncidentForLearning struct {
	Incident   *contracts.Incident
	Evidence   []contracts.Evidence
	Hypothesis contracts.Hypothesis
	Action     contracts.Action
	Narrative  string
}

// Learner derives LearnedPatterns from a resolved incident via an injected
// Extractor and ingests whichever of them survive the knowledge base's
// dedup and validation rules.
type Learner struct {
	kb        *KnowledgeBase
	extractor contracts.Extractor
}

// NewLearner constructs a Learner backed by kb, sourcing candidate patterns
// from extractor.
func NewLearner(kb *KnowledgeBase, extractor contracts.Extractor) *Learner {
	return &Learner{kb: kb, extractor: extractor}
}

// LearnFromResolution asks the extractor for patterns implied by in, then
// ingests every proposal that passes LearnedPattern.Validate and the
// knowledge base's own deduplication check. Proposals the extractor returns
// that fail validation are skipped, not surfaced as an error: one malformed
// suggestion must not sink the rest of the batch.
func (l *Learner) LearnFromResolution(ctx context.Context, in IncidentForLearning) ([]*contracts.LearnedPattern, error) {
	incidentCtx := contracts.IncidentContext{
		IncidentID:      in.Incident.ID,
		Severity:        in.Incident.Severity,
		Namespace:       in.Incident.Namespace,
		AffectedService: in.Incident.Namespace,
	}
	for _, e := range in.Evidence {
		if e.Summary != "" {
			incidentCtx.Symptoms = append(incidentCtx.Symptoms, e.Summary)
		}
	}
	if in.Hypothesis.RootCause != "" {
		incidentCtx.ErrorMessages = append(incidentCtx.ErrorMessages, in.Hypothesis.RootCause)
	}
	if in.Narrative != "" {
		incidentCtx.Symptoms = append(incidentCtx.Symptoms, in.Narrative)
	}

	result, err := l.extractor.ExtractPatterns(ctx, incidentCtx)
	if err != nil {
		return nil, err
	}

	var learned []*contracts.LearnedPattern
	for _, proposed := range result.Patterns {
		candidate := flattenProposed(proposed, in.Incident.ID)
		stored, _, err := l.kb.Ingest(candidate)
		if err != nil {
			continue
		}
		learned = append(learned, stored)
	}
	return learned, nil
}

// flattenProposed lowers an extractor's structured ProposedPattern into the
// flat string-list shape LearnedPattern stores: each TriggerCondition and
// RecommendedAction collapses to one descriptive string, since the knowledge
// base's matching and dedup logic only needs free text, not the extractor's
// richer per-field breakdown.
func flattenProposed(p contracts.ProposedPattern, incidentID string) contracts.LearnedPattern {
	triggers := make([]string, 0, len(p.TriggerConditions))
	for _, tc := range p.TriggerConditions {
		triggers = append(triggers, joinNonEmpty(tc.Signal, tc.Threshold, tc.Source))
	}
	actions := make([]string, 0, len(p.RecommendedActions))
	for _, ra := range p.RecommendedActions {
		actions = append(actions, joinNonEmpty(ra.Action, ra.When))
	}
	return contracts.LearnedPattern{
		Type:               p.Type,
		Name:               p.Name,
		Description:        p.Description,
		TriggerConditions:  triggers,
		RecommendedActions: actions,
		Exceptions:         append([]string(nil), p.Exceptions...),
		Confidence:         p.Confidence,
		SourceIncidentID:   incidentID,
	}
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

