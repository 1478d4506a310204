package models

import (
	"time"

	"github.com/cert-registry/internal/types"
)

// Certificate is the authenticity record for a single watch, keyed by
// derived address and unique by serial number. PreviousOwners is the
// provenance chain, oldest first, capped at types.MaxPreviousOwners.
type Certificate struct {
	Address           string                  `json:"address" db:"address"`
	SerialNumber      string                  `json:"serialNumber" db:"serial_number"`
	Brand             string                  `json:"brand" db:"brand"`
	Model             string                  `json:"model" db:"model"`
	CertificationType types.CertificationType `json:"certificationType" db:"certification_type"`
	EstimatedValue    uint64                  `json:"estimatedValue" db:"estimated_value"`
	MetadataURI       string                  `json:"metadataUri" db:"metadata_uri"`
	Certifier         string                  `json:"certifier" db:"certifier"`
	Owner             string                  `json:"owner" db:"owner"`
	PreviousOwners    []string                `json:"previousOwners" db:"previous_owners"`
	TransferCount     uint64                  `json:"transferCount" db:"transfer_count"`
	IssuedAt          time.Time               `json:"issuedAt" db:"issued_at"`
	LockedUntil       time.Time               `json:"lockedUntil" db:"locked_until"`
	LastTransferAt    *time.Time              `json:"lastTransferAt,omitempty" db:"last_transfer_at"`
	Version           int64                   `json:"-" db:"version"`
}

// Locked reports whether the certificate is still inside its transfer
// lock window at the given instant.
func (c *Certificate) Locked(now time.Time) bool {
	return now.Before(c.LockedUntil)
}

// RecordTransfer moves ownership to newOwner, appends the outgoing owner
// to the provenance chain, and re-arms the lock for lockPeriod from now.
// Provenance stops growing once the cap is reached; the counter does not.
func (c *Certificate) RecordTransfer(newOwner string, now time.Time, lockPeriod time.Duration) {
	if len(c.PreviousOwners) < types.MaxPreviousOwners {
		c.PreviousOwners = append(c.PreviousOwners, c.Owner)
	}
	c.Owner = newOwner
	c.TransferCount++
	c.LockedUntil = now.Add(lockPeriod)
	t := now
	c.LastTransferAt = &t
}
