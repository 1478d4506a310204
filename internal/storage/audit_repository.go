package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/types"
)

// AuditRepository appends certificate lifecycle events to ClickHouse.
// Writes happen after the Postgres transaction commits and are best
// effort; the registry state is never held hostage to the event log.
type AuditRepository struct {
	db *ClickHouseDB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *ClickHouseDB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends one event
func (r *AuditRepository) Record(ctx context.Context, event *models.CertificateEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	query := `
		INSERT INTO certificate_events (id, event_type, serial_number, actor, counterparty, amount, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.db.Exec(ctx, query,
		event.ID,
		string(event.EventType),
		event.SerialNumber,
		event.Actor,
		event.Counterparty,
		event.Amount,
		event.Detail,
		event.OccurredAt,
	)
}

// History returns the events for a serial number in time order
func (r *AuditRepository) History(ctx context.Context, serialNumber string, limit int) ([]*models.CertificateEvent, error) {
	query := `
		SELECT id, event_type, serial_number, actor, counterparty, amount, detail, occurred_at
		FROM certificate_events
		WHERE serial_number = ?
		ORDER BY occurred_at ASC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, serialNumber, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.CertificateEvent
	for rows.Next() {
		var event models.CertificateEvent
		var eventType string
		if err := rows.Scan(&event.ID, &eventType, &event.SerialNumber, &event.Actor, &event.Counterparty, &event.Amount, &event.Detail, &event.OccurredAt); err != nil {
			return nil, err
		}
		event.EventType = types.EventType(eventType)
		events = append(events, &event)
	}

	return events, rows.Err()
}
