// Package models provides data models for the certification registry.
package models

import (
	"time"

	"github.com/cert-registry/internal/types"
)

// Authority is the singleton registry root. It holds the admin identity,
// the treasury identity that collects fees, and the accredited certifier
// roster. One row, keyed by its derived address. Issuance counters are
// not stored here; they are derived by aggregation so unrelated
// issuances never serialize on this row.
type Authority struct {
	Address    string    `json:"address" db:"address"`
	Admin      string    `json:"admin" db:"admin"`
	Treasury   string    `json:"treasury" db:"treasury"`
	Certifiers []string  `json:"certifiers" db:"certifiers"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
	Version    int64     `json:"-" db:"version"`
}

// RegistryStats carries the aggregate issuance counters, computed from
// the certificates table rather than kept as hot in-place counters.
type RegistryStats struct {
	TotalCertificates uint64                             `json:"totalCertificates"`
	TotalTransfers    uint64                             `json:"totalTransfers"`
	ByTier            map[types.CertificationType]uint64 `json:"byTier"`
}

// HasCertifier reports whether the identity is on the accredited roster.
func (a *Authority) HasCertifier(identity string) bool {
	for _, c := range a.Certifiers {
		if c == identity {
			return true
		}
	}
	return false
}

// RemoveCertifier drops the identity from the roster, preserving order.
// Returns false if the identity was not present.
func (a *Authority) RemoveCertifier(identity string) bool {
	for i, c := range a.Certifiers {
		if c == identity {
			a.Certifiers = append(a.Certifiers[:i], a.Certifiers[i+1:]...)
			return true
		}
	}
	return false
}
