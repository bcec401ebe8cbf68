package investigation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/broadcomms/chronosops/internal/errors"
	"github.com/broadcomms/chronosops/internal/logging"
	"github.com/broadcomms/chronosops/pkg/contracts"
)

// DefaultStaleThreshold is how old an investigation heartbeat may be before
// the investigation counts as orphaned.
const DefaultStaleThreshold = 60 * time.Second

// InterruptedIncidentSource is the slice of the incident repository the
// recovery scan needs. Satisfied by pkg/timeline's IncidentRepository.
type InterruptedIncidentSource interface {
	GetInterruptedInvestigations(ctx context.Context, staleThreshold time.Duration) ([]contracts.Incident, error)
	Update(ctx context.Context, incident *contracts.Incident) error
}

// InterruptedCycleSource is the slice of the development-cycle repository the
// recovery scan needs. Satisfied by pkg/timeline's DevelopmentCycleRepository.
type InterruptedCycleSource interface {
	GetInterrupted(ctx context.Context) ([]contracts.DevelopmentCycle, error)
}

// RecoveryReport is the outcome of one startup recovery scan.
type RecoveryReport struct {
	// ResumableIncidents are orphaned investigations left mid-flight in an
	// active phase; each is a candidate for Orchestrator.Resume with its
	// persisted state and retry counters.
	ResumableIncidents []contracts.Incident
	// ClearedIncidents counts orphaned investigations found already in a
	// terminal state; their isInvestigating flag was cleared in place.
	ClearedIncidents int
	// InterruptedCycles are development cycles with no completion timestamp
	// stuck in a non-terminal phase, eligible for pipeline resume.
	InterruptedCycles []contracts.DevelopmentCycle
}

// RecoveryScanner performs the startup crash-recovery scan: it finds
// investigations whose owning process died (stale heartbeat) and development
// cycles interrupted mid-pipeline. Terminal-state investigations are cleared;
// active-state ones are handed back for Resume, retry counters intact.
type RecoveryScanner struct {
	incidents      InterruptedIncidentSource
	cycles         InterruptedCycleSource
	staleThreshold time.Duration
	logger         *logrus.Logger
}

// NewRecoveryScanner builds a scanner over the given repositories. A zero
// staleThreshold uses DefaultStaleThreshold. cycles may be nil when the
// deployment runs no development pipeline.
func NewRecoveryScanner(incidents InterruptedIncidentSource, cycles InterruptedCycleSource, staleThreshold time.Duration, logger *logrus.Logger) *RecoveryScanner {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RecoveryScanner{
		incidents:      incidents,
		cycles:         cycles,
		staleThreshold: staleThreshold,
		logger:         logger,
	}
}

// Scan runs one recovery pass and returns what it found. Clearing a
// terminal-state orphan never resets its retry counters; resumable incidents
// keep theirs for Resume.
func (s *RecoveryScanner) Scan(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	orphaned, err := s.incidents.GetInterruptedInvestigations(ctx, s.staleThreshold)
	if err != nil {
		return report, errors.FailedToWithDetails("scan interrupted investigations", "recovery", "", err)
	}

	for i := range orphaned {
		inc := orphaned[i]
		if inc.State.IsTerminal() {
			inc.IsInvestigating = false
			if err := s.incidents.Update(ctx, &inc); err != nil {
				return report, errors.FailedToWithDetails("clear terminal investigation", "recovery", inc.ID, err)
			}
			report.ClearedIncidents++
			continue
		}
		report.ResumableIncidents = append(report.ResumableIncidents, inc)
	}

	if s.cycles != nil {
		interrupted, err := s.cycles.GetInterrupted(ctx)
		if err != nil {
			return report, errors.FailedToWithDetails("scan interrupted cycles", "recovery", "", err)
		}
		report.InterruptedCycles = interrupted
	}

	s.logger.WithFields(logging.NewFields().Component("recovery").Operation("scan").
		Custom("resumable", len(report.ResumableIncidents)).
		Custom("cleared", report.ClearedIncidents).
		Custom("interrupted_cycles", len(report.InterruptedCycles)).ToLogrus()).
		Info("crash-recovery scan complete")

	return report, nil
}
