package models

import (
	"time"
)

// CertifierProfile tracks per-certifier workload and accreditation state.
// One row per certifier identity, keyed by derived address.
type CertifierProfile struct {
	Address             string        `json:"address" db:"address"`
	Certifier           string        `json:"certifier" db:"certifier"`
	DisplayName         string        `json:"displayName" db:"display_name"`
	PhysicalAddress     string        `json:"physicalAddress" db:"physical_address"`
	PendingRequests     int           `json:"pendingRequests" db:"pending_requests"`
	CompletedRequests   uint64        `json:"completedRequests" db:"completed_requests"`
	RejectedRequests    uint64        `json:"rejectedRequests" db:"rejected_requests"`
	TotalProcessingTime time.Duration `json:"totalProcessingTime" db:"total_processing_time"`
	IsActive            bool          `json:"isActive" db:"is_active"`
	RegisteredAt        time.Time     `json:"registeredAt" db:"registered_at"`
	UpdatedAt           time.Time     `json:"updatedAt" db:"updated_at"`
	Version             int64         `json:"-" db:"version"`
}

// AtCapacity reports whether the certifier has reached the concurrent
// pending-request limit and cannot be assigned more work.
func (p *CertifierProfile) AtCapacity(max int) bool {
	return p.PendingRequests >= max
}

// AverageProcessingTime returns the mean approve/reject turnaround, or
// zero if no request has been resolved yet.
func (p *CertifierProfile) AverageProcessingTime() time.Duration {
	resolved := p.CompletedRequests + p.RejectedRequests
	if resolved == 0 {
		return 0
	}
	return p.TotalProcessingTime / time.Duration(resolved)
}
