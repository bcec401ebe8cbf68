package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/broadcomms/chronosops/pkg/build"
	"github.com/broadcomms/chronosops/pkg/investigation"
	"github.com/broadcomms/chronosops/pkg/ooda"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Builder is an async, buffered writer that turns the event streams emitted
// by the OODA state machine, the investigation orchestrator, and the build
// orchestrator into a single append-only Event log. Callers wire its
// Handle* methods as Listeners on each component; Builder never blocks the
// caller that raised the event.
type Builder struct {
	repo    TimelineEventRepository
	logger  *logrus.Logger
	entries chan Event
	wg      sync.WaitGroup
}

// NewBuilder constructs a Builder over repo. Call Start to begin the
// background flush loop.
func NewBuilder(repo TimelineEventRepository, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Builder{
		repo:    repo,
		logger:  logger,
		entries: make(chan Event, bufferSize),
	}
}

// Start begins the background goroutine that persists buffered events and
// returns immediately. The goroutine exits once ctx is cancelled or Close is
// called, after flushing every event already buffered.
func (b *Builder) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx)
	}()
}

// Close stops accepting new events and waits for the background loop to
// drain and flush everything already buffered.
func (b *Builder) Close() {
	close(b.entries)
	b.wg.Wait()
}

// enqueue buffers an event for async persistence. It never blocks the
// caller: a full buffer drops the event and logs a warning, matching the
// orchestrators' own "listeners must not block" contract.
func (b *Builder) enqueue(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	select {
	case b.entries <- e:
	default:
		b.logger.WithFields(logrus.Fields{
			"kind":       e.Kind,
			"incidentId": e.IncidentID,
		}).Warn("timeline buffer full, dropping event")
	}
}

// IncidentBuilder scopes a Builder to one incident's OODA event stream, so
// HandleOODAEvent can stamp events the state machine has no other way of
// attributing (ooda.Event carries no incident identity of its own).
type IncidentBuilder struct {
	b          *Builder
	incidentID string
}

// ForIncident scopes b to one incident's OODA event stream.
func (b *Builder) ForIncident(incidentID string) *IncidentBuilder {
	return &IncidentBuilder{b: b, incidentID: incidentID}
}

// HandleOODAEvent adapts an ooda.Listener callback into a timeline Event.
func (ib *IncidentBuilder) HandleOODAEvent(e ooda.Event) {
	ib.b.enqueue(Event{
		IncidentID: ib.incidentID,
		Kind:       "ooda:" + e.Kind,
		Message:    e.Reason,
		Details: map[string]interface{}{
			"from":    string(e.From),
			"to":      string(e.To),
			"details": e.Details,
		},
	})
}

// HandleInvestigationEvent adapts an investigation.Listener callback into a
// timeline Event.
func (b *Builder) HandleInvestigationEvent(e investigation.Event) {
	b.enqueue(Event{
		IncidentID: e.IncidentID,
		Kind:       "investigation:" + e.Kind,
		Details:    e.Details,
	})
}

// HandleBuildEvent adapts a build.Listener callback into a timeline Event,
// scoped to a development cycle rather than an incident.
func (b *Builder) HandleBuildEvent(developmentCycleID string, e build.Event) {
	b.enqueue(Event{
		DevelopmentCycleID: developmentCycleID,
		Kind:               "build:" + e.Kind,
		Message:            e.Message,
		Details: map[string]interface{}{
			"appName": e.AppName,
			"buildId": e.BuildID,
			"stage":   string(e.Stage),
		},
	})
}

// run drains the entries channel, flushing in timed or size-triggered
// batches, and drains whatever remains once ctx is cancelled or Close is
// called.
func (b *Builder) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		b.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-b.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-b.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush persists a batch of events, logging (not failing) individual write
// errors so one bad record doesn't stall the rest of the batch.
func (b *Builder) flush(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := range batch {
		e := batch[i]
		if err := b.repo.Create(ctx, &e); err != nil {
			b.logger.WithFields(logrus.Fields{
				"kind":       e.Kind,
				"incidentId": e.IncidentID,
				"error":      err,
			}).Error("persisting timeline event")
		}
	}
}
