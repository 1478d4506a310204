package models

import (
	"time"

	"github.com/cert-registry/internal/types"
)

// CertificateEvent is an append-only audit record written to ClickHouse
// after a state change commits. Best effort: a failed write is logged and
// never rolls back the registry change.
type CertificateEvent struct {
	ID           string          `json:"id" ch:"id"`
	EventType    types.EventType `json:"eventType" ch:"event_type"`
	SerialNumber string          `json:"serialNumber" ch:"serial_number"`
	Actor        string          `json:"actor" ch:"actor"`
	Counterparty string          `json:"counterparty,omitempty" ch:"counterparty"`
	Amount       uint64          `json:"amount" ch:"amount"`
	Detail       string          `json:"detail,omitempty" ch:"detail"`
	OccurredAt   time.Time       `json:"occurredAt" ch:"occurred_at"`
}
