// Package types provides common type definitions for the certification registry.
package types

// CertificationType represents the certification tier of a watch
type CertificationType string

const (
	// CertStandard represents certificates for watches valued under 5000 EUR
	CertStandard CertificationType = "standard"
	// CertPremium represents certificates for watches valued 5000-20000 EUR
	CertPremium CertificationType = "premium"
	// CertLuxury represents certificates for watches valued 20000-100000 EUR
	CertLuxury CertificationType = "luxury"
	// CertExceptional represents certificates for watches valued over 100000 EUR
	CertExceptional CertificationType = "exceptional"
)

// AllCertificationTypes lists every tier in display order.
var AllCertificationTypes = []CertificationType{
	CertStandard,
	CertPremium,
	CertLuxury,
	CertExceptional,
}

// Valid reports whether the certification type is one of the four tiers.
func (t CertificationType) Valid() bool {
	switch t {
	case CertStandard, CertPremium, CertLuxury, CertExceptional:
		return true
	default:
		return false
	}
}

// Fee returns the certification fee for the tier in base currency units.
func (t CertificationType) Fee() uint64 {
	switch t {
	case CertStandard:
		return FeeStandard
	case CertPremium:
		return FeePremium
	case CertLuxury:
		return FeeLuxury
	case CertExceptional:
		return FeeExceptional
	default:
		return 0
	}
}

// RequestStatus represents the workflow state of a certification request
type RequestStatus string

const (
	// StatusPending represents a request awaiting review by its assigned certifier
	StatusPending RequestStatus = "pending"
	// StatusApproved represents a resolved request whose certificate was issued
	StatusApproved RequestStatus = "approved"
	// StatusRejected represents a resolved request refused by the certifier
	StatusRejected RequestStatus = "rejected"
)

// Valid reports whether the status is a known workflow state.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is a terminal workflow state.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// LedgerEntryKind represents the reason for a ledger movement
type LedgerEntryKind string

const (
	// EntryFee represents a direct-issuance fee paid to the treasury
	EntryFee LedgerEntryKind = "fee"
	// EntryEscrow represents fees escrowed at request submission
	EntryEscrow LedgerEntryKind = "escrow"
	// EntryRelease represents an escrow release on approval
	EntryRelease LedgerEntryKind = "release"
	// EntryRefund represents an escrow refund on rejection
	EntryRefund LedgerEntryKind = "refund"
	// EntryFaucet represents a development-mode account funding
	EntryFaucet LedgerEntryKind = "faucet"
)

// EventType represents an audit log event category
type EventType string

const (
	// EventIssued records a certificate issuance (direct or via approval)
	EventIssued EventType = "issued"
	// EventTransferred records an ownership transfer
	EventTransferred EventType = "transferred"
	// EventRequested records a certification request submission
	EventRequested EventType = "requested"
	// EventApproved records a request approval
	EventApproved EventType = "approved"
	// EventRejected records a request rejection
	EventRejected EventType = "rejected"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
