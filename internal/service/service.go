// Package service implements the certification registry's business
// rules: certifier accreditation, certificate issuance, the escrowed
// request workflow, timed transfers, and verification.
package service

import (
	"context"
	"time"

	apperrors "github.com/cert-registry/internal/errors"
	"github.com/cert-registry/internal/metrics"
	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/retry"
	"github.com/cert-registry/internal/types"
)

// Repository interfaces for dependency injection

// AuthorityRepository persists the registry authority singleton
type AuthorityRepository interface {
	Create(ctx context.Context, authority *models.Authority) error
	Get(ctx context.Context, address string) (*models.Authority, error)
	Update(ctx context.Context, authority *models.Authority) error
}

// CertifierRepository persists certifier profiles
type CertifierRepository interface {
	Create(ctx context.Context, profile *models.CertifierProfile) error
	GetByCertifier(ctx context.Context, certifier string) (*models.CertifierProfile, error)
	List(ctx context.Context) ([]*models.CertifierProfile, error)
	Update(ctx context.Context, profile *models.CertifierProfile) error
}

// CertificateRepository persists certificates
type CertificateRepository interface {
	Create(ctx context.Context, cert *models.Certificate) error
	GetBySerial(ctx context.Context, serialNumber string) (*models.Certificate, error)
	Exists(ctx context.Context, serialNumber string) (bool, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*models.Certificate, error)
	ListByCertifier(ctx context.Context, certifier string, limit, offset int) ([]*models.Certificate, error)
	Stats(ctx context.Context) (*models.RegistryStats, error)
	Update(ctx context.Context, cert *models.Certificate) error
}

// ActivityRepository persists per-identity throttling records
type ActivityRepository interface {
	GetOrCreate(ctx context.Context, identity string) (*models.UserActivity, error)
	GetByIdentity(ctx context.Context, identity string) (*models.UserActivity, error)
	Update(ctx context.Context, activity *models.UserActivity) error
}

// RequestRepository persists certification requests
type RequestRepository interface {
	Create(ctx context.Context, request *models.CertificationRequest) error
	GetBySerial(ctx context.Context, serialNumber string) (*models.CertificationRequest, error)
	ListByCertifier(ctx context.Context, certifier string, status types.RequestStatus, limit, offset int) ([]*models.CertificationRequest, error)
	ListByRequester(ctx context.Context, requester string, limit, offset int) ([]*models.CertificationRequest, error)
	Update(ctx context.Context, request *models.CertificationRequest) error
}

// LedgerRepository moves funds between accounts
type LedgerRepository interface {
	GetAccount(ctx context.Context, address string) (*models.LedgerAccount, error)
	Credit(ctx context.Context, address string, amount uint64, kind types.LedgerEntryKind, reference string) error
	Transfer(ctx context.Context, from, to string, amount uint64, kind types.LedgerEntryKind, reference string) error
	ListEntries(ctx context.Context, address string, limit, offset int) ([]*models.LedgerEntry, error)
}

// TxManager runs a closure inside a database transaction
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditLogger appends lifecycle events to the event log
type AuditLogger interface {
	Record(ctx context.Context, event *models.CertificateEvent) error
	History(ctx context.Context, serialNumber string, limit int) ([]*models.CertificateEvent, error)
}

// runAtomic executes fn in a transaction, retrying lost
// optimistic-concurrency races with backoff. Everything else fails
// through unchanged.
func runAtomic(ctx context.Context, tx TxManager, fn func(ctx context.Context) error) error {
	cfg := retry.DefaultConfig()
	cfg.ShouldRetry = func(err error) bool {
		if apperrors.IsRetryable(err) {
			metrics.WriteConflict()
			return true
		}
		return false
	}

	return retry.Do(ctx, cfg, func(ctx context.Context, attempt int) error {
		return tx.InTx(ctx, fn)
	})
}

// validateLimitedString enforces a non-empty bounded string field
func validateLimitedString(field, value string, limit int) error {
	if value == "" {
		return apperrors.NewInvalidParameterError(field, "must not be empty")
	}
	if len(value) > limit {
		return apperrors.NewStringTooLongError(field, limit)
	}
	return nil
}

// nowFunc lets tests pin the clock
type nowFunc func() time.Time
