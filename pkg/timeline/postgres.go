package timeline

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const timelineEventColumns = `id, incident_id, development_cycle_id, kind, message, details, occurred_at`

// eventRow mirrors the timeline_events table layout for sqlx scanning;
// Details is stored as a jsonb column and (de)serialized through
// decodeJSONColumn/encodeJSONColumn rather than relying on sqlx's own
// struct-tag JSON handling.
type eventRow struct {
	ID                 string `db:"id"`
	IncidentID         string `db:"incident_id"`
	DevelopmentCycleID string `db:"development_cycle_id"`
	Kind               string `db:"kind"`
	Message            string `db:"message"`
	Details            []byte `db:"details"`
	OccurredAt         string `db:"occurred_at"`
}

// PostgresEventRepository is the durable TimelineEventRepository, backed by
// a *sqlx.DB opened against the pgx stdlib driver.
type PostgresEventRepository struct {
	db *sqlx.DB
}

// NewPostgresEventRepository wraps db as a TimelineEventRepository. db must
// have been opened with the "pgx" driver (as cmd/chronosops does).
func NewPostgresEventRepository(db *sqlx.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

func toRow(e *Event) eventRow {
	return eventRow{
		ID:                 e.ID,
		IncidentID:         e.IncidentID,
		DevelopmentCycleID: e.DevelopmentCycleID,
		Kind:               e.Kind,
		Message:            e.Message,
		Details:            encodeJSONColumn(e.Details),
		OccurredAt:         e.OccurredAt.UTC().Format(timestampLayout),
	}
}

func fromRow(r eventRow) Event {
	e := Event{
		ID:                 r.ID,
		IncidentID:         r.IncidentID,
		DevelopmentCycleID: r.DevelopmentCycleID,
		Kind:               r.Kind,
		Message:            r.Message,
	}
	var details map[string]interface{}
	if decodeJSONColumn(r.Details, &details) {
		e.Details = details
	}
	if t, err := parseTimestamp(r.OccurredAt); err == nil {
		e.OccurredAt = t
	}
	return e
}

// Create inserts event, assigning it an ID if it has none.
func (p *PostgresEventRepository) Create(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = newUUID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = nowUTC()
	}
	row := toRow(event)
	query := `INSERT INTO timeline_events (` + timelineEventColumns + `)
		VALUES (:id, :incident_id, :development_cycle_id, :kind, :message, :details, :occurred_at)`
	if _, err := p.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("inserting timeline event: %w", err)
	}
	return nil
}

// GetByID returns the event with the given id, or an error if none exists.
func (p *PostgresEventRepository) GetByID(ctx context.Context, id string) (*Event, error) {
	var row eventRow
	query := `SELECT ` + timelineEventColumns + ` FROM timeline_events WHERE id = $1`
	if err := p.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, fmt.Errorf("fetching timeline event %s: %w", id, err)
	}
	e := fromRow(row)
	return &e, nil
}

// List returns events matching filter's "incidentId" and/or
// "developmentCycleId" constraints, newest first, paginated by limit/offset.
func (p *PostgresEventRepository) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	query := `SELECT ` + timelineEventColumns + ` FROM timeline_events WHERE 1=1`
	args := map[string]interface{}{"limit": limit, "offset": offset}

	if incidentID, ok := filter["incidentId"]; ok {
		query += ` AND incident_id = :incident_id`
		args["incident_id"] = incidentID
	}
	if cycleID, ok := filter["developmentCycleId"]; ok {
		query += ` AND development_cycle_id = :development_cycle_id`
		args["development_cycle_id"] = cycleID
	}
	query += ` ORDER BY occurred_at DESC`
	if limit > 0 {
		query += ` LIMIT :limit OFFSET :offset`
	}

	stmt, err := p.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing timeline event list query: %w", err)
	}
	defer stmt.Close()

	var rows []eventRow
	if err := stmt.SelectContext(ctx, &rows, args); err != nil {
		return nil, fmt.Errorf("listing timeline events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, fromRow(r))
	}
	return events, nil
}
