package models

import (
	"time"

	"github.com/cert-registry/internal/types"
)

// CertificationRequest is a pending application for a certificate,
// assigned to a specific certifier. The tier fee is escrowed against the
// request's derived address until the certifier resolves it.
type CertificationRequest struct {
	Address           string                  `json:"address" db:"address"`
	Requester         string                  `json:"requester" db:"requester"`
	AssignedCertifier string                  `json:"assignedCertifier" db:"assigned_certifier"`
	SerialNumber      string                  `json:"serialNumber" db:"serial_number"`
	Brand             string                  `json:"brand" db:"brand"`
	Model             string                  `json:"model" db:"model"`
	CertificationType types.CertificationType `json:"certificationType" db:"certification_type"`
	EstimatedValue    uint64                  `json:"estimatedValue" db:"estimated_value"`
	MetadataURI       string                  `json:"metadataUri" db:"metadata_uri"`
	Status            types.RequestStatus     `json:"status" db:"status"`
	EscrowAmount      uint64                  `json:"escrowAmount" db:"escrow_amount"`
	RejectionReason   string                  `json:"rejectionReason,omitempty" db:"rejection_reason"`
	SubmittedAt       time.Time               `json:"submittedAt" db:"submitted_at"`
	ResolvedAt        *time.Time              `json:"resolvedAt,omitempty" db:"resolved_at"`
	Version           int64                   `json:"-" db:"version"`
}

// ProcessingTime returns how long the request sat pending, or zero while
// it is still unresolved.
func (r *CertificationRequest) ProcessingTime() time.Duration {
	if r.ResolvedAt == nil {
		return 0
	}
	return r.ResolvedAt.Sub(r.SubmittedAt)
}

// Resolve moves the request into a terminal status at the given instant.
func (r *CertificationRequest) Resolve(status types.RequestStatus, now time.Time) {
	r.Status = status
	t := now
	r.ResolvedAt = &t
}
