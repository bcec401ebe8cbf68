// Package timeline implements the TimelineBuilder and the repository
// contracts every other ChronosOps core component persists through:
// incidents, patterns, evidence, hypotheses, actions, edit locks,
// development cycles, postmortems, and the append-only timeline event log
// itself. The core depends only on these interfaces; concrete storage
// (Postgres via pgx/sqlx, or the in-memory Store used by tests and
// single-process deployments) is swappable behind them.
package timeline

import (
	"context"
	"time"

	"github.com/broadcomms/chronosops/pkg/contracts"
)

// Filter is a generic bag of equality constraints a List call narrows by.
// Concrete repositories interpret keys relevant to their own entity (e.g.
// "namespace", "status", "incidentId") and ignore the rest.
type Filter map[string]interface{}

// Event is one append-only record in an incident's or development cycle's
// timeline: a phase transition, an observation, a build stage change, a
// rollback decision, anything worth replaying later for a postmortem or a
// UI. Immutable once written.
type Event struct {
	ID                 string
	IncidentID         string
	DevelopmentCycleID string
	Kind               string
	Message            string
	Details            map[string]interface{}
	OccurredAt         time.Time
}

// Postmortem is the narrative record produced once an incident resolves:
// root cause, recommendations, and the extractor's reconstruction of what
// happened, kept for the pattern learner and for human review.
type Postmortem struct {
	ID              string
	IncidentID      string
	Narrative       string
	RootCause       string
	Recommendations []string
	CreatedAt       time.Time
}

// IncidentRepository persists Incident records.
type IncidentRepository interface {
	Create(ctx context.Context, incident *contracts.Incident) error
	GetByID(ctx context.Context, id string) (*contracts.Incident, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]contracts.Incident, error)
	Update(ctx context.Context, incident *contracts.Incident) error
	Delete(ctx context.Context, id string) error
	// GetInterruptedInvestigations returns incidents whose investigation is
	// marked in-flight (isInvestigating) with a heartbeat older than
	// staleThreshold, for the crash-recovery scan run on startup.
	GetInterruptedInvestigations(ctx context.Context, staleThreshold time.Duration) ([]contracts.Incident, error)
}

// PatternRepository persists LearnedPattern records alongside the
// in-memory pkg/patterns.KnowledgeBase used for live scoring.
type PatternRepository interface {
	Create(ctx context.Context, pattern *contracts.LearnedPattern) error
	GetByID(ctx context.Context, id string) (*contracts.LearnedPattern, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]contracts.LearnedPattern, error)
	Update(ctx context.Context, pattern *contracts.LearnedPattern) error
	Delete(ctx context.Context, id string) error
	RecordMatch(ctx context.Context, id string) error
	RecordApplication(ctx context.Context, id string, success bool) error
}

// EvidenceRepository persists Evidence records attached to incidents.
type EvidenceRepository interface {
	Create(ctx context.Context, evidence *contracts.Evidence) error
	GetByID(ctx context.Context, id string) (*contracts.Evidence, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]contracts.Evidence, error)
	Update(ctx context.Context, evidence *contracts.Evidence) error
	Delete(ctx context.Context, id string) error
}

// HypothesisRepository persists Hypothesis records.
type HypothesisRepository interface {
	Create(ctx context.Context, hypothesis *contracts.Hypothesis) error
	GetByID(ctx context.Context, id string) (*contracts.Hypothesis, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]contracts.Hypothesis, error)
	Update(ctx context.Context, hypothesis *contracts.Hypothesis) error
	Delete(ctx context.Context, id string) error
}

// ActionRepository persists executed Action records.
type ActionRepository interface {
	Create(ctx context.Context, action *contracts.Action) error
	GetByID(ctx context.Context, id string) (*contracts.Action, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]contracts.Action, error)
	Update(ctx context.Context, action *contracts.Action) error
	Delete(ctx context.Context, id string) error
}

// EditLockRepository persists EditLock records independent of
// pkg/editlock.Manager's own Redis-backed working copy; this is the
// durable audit trail an administrator or postmortem can query.
type EditLockRepository interface {
	Create(ctx context.Context, lock *contracts.EditLock) error
	GetByID(ctx context.Context, id string) (*contracts.EditLock, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]contracts.EditLock, error)
	Update(ctx context.Context, lock *contracts.EditLock) error
	Delete(ctx context.Context, id string) error
	// ExpireStale transitions every active-but-past-expiry lock to Expired
	// and returns the count transitioned. Idempotent after convergence.
	ExpireStale(ctx context.Context) (int, error)
}

// DevelopmentCycleRepository persists DevelopmentCycle records.
type DevelopmentCycleRepository interface {
	Create(ctx context.Context, cycle *contracts.DevelopmentCycle) error
	GetByID(ctx context.Context, id string) (*contracts.DevelopmentCycle, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]contracts.DevelopmentCycle, error)
	Update(ctx context.Context, cycle *contracts.DevelopmentCycle) error
	Delete(ctx context.Context, id string) error
	// GetInterrupted returns cycles with no CompletedAt whose phase is not
	// IDLE/COMPLETED/FAILED, for the crash-recovery scan run on startup.
	GetInterrupted(ctx context.Context) ([]contracts.DevelopmentCycle, error)
}

// PostmortemRepository persists Postmortem records.
type PostmortemRepository interface {
	Create(ctx context.Context, postmortem *Postmortem) error
	GetByID(ctx context.Context, id string) (*Postmortem, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]Postmortem, error)
	Update(ctx context.Context, postmortem *Postmortem) error
	Delete(ctx context.Context, id string) error
}

// TimelineEventRepository persists the append-only Event log. There is no
// Update or Delete: once written, a timeline event is immutable.
type TimelineEventRepository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error)
}

// Repositories bundles every persistence contract the core consumes, so
// callers wire one struct instead of nine separate constructor arguments.
type Repositories struct {
	Incidents         IncidentRepository
	Patterns          PatternRepository
	Evidence          EvidenceRepository
	Hypotheses        HypothesisRepository
	Actions           ActionRepository
	EditLocks         EditLockRepository
	DevelopmentCycles DevelopmentCycleRepository
	Postmortems       PostmortemRepository
	TimelineEvents    TimelineEventRepository
}
