package models

import (
	"time"
)

// UserActivity tracks per-identity throttling state: how many certificates
// the identity currently holds and when it last acted. One row per identity,
// keyed by derived address, created lazily on first action.
type UserActivity struct {
	Address          string     `json:"address" db:"address"`
	User             string     `json:"user" db:"user_identity"`
	CertificateCount int        `json:"certificateCount" db:"certificate_count"`
	LastActionAt     *time.Time `json:"lastActionAt,omitempty" db:"last_action_at"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	Version          int64      `json:"-" db:"version"`
}

// InCooldown reports whether the identity acted within the cooldown window.
// Identities that have never acted are not in cooldown.
func (u *UserActivity) InCooldown(now time.Time, cooldown time.Duration) bool {
	if u.LastActionAt == nil {
		return false
	}
	return now.Sub(*u.LastActionAt) < cooldown
}

// AtCertificateCap reports whether the identity holds the maximum number
// of certificates.
func (u *UserActivity) AtCertificateCap(max int) bool {
	return u.CertificateCount >= max
}

// Touch records an action at the given instant.
func (u *UserActivity) Touch(now time.Time) {
	t := now
	u.LastActionAt = &t
}
