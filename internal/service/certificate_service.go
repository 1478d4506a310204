package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cert-registry/internal/config"
	apperrors "github.com/cert-registry/internal/errors"
	"github.com/cert-registry/internal/keys"
	"github.com/cert-registry/internal/logging"
	"github.com/cert-registry/internal/metrics"
	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/storage"
	"github.com/cert-registry/internal/types"
)

// VerifyCacher caches verification lookups
type VerifyCacher interface {
	Get(ctx context.Context, serialNumber string) (*models.Certificate, error)
	Set(ctx context.Context, cert *models.Certificate) error
	Invalidate(ctx context.Context, serialNumber string) error
}

// CertificateService handles issuance, transfer and verification of
// certificates.
type CertificateService struct {
	tx            TxManager
	authorityRepo AuthorityRepository
	certifierRepo CertifierRepository
	certRepo      CertificateRepository
	activityRepo  ActivityRepository
	ledgerRepo    LedgerRepository
	audit         AuditLogger
	cache         VerifyCacher
	registry      config.RegistryConfig
	now           nowFunc
}

// NewCertificateService creates a new certificate service
func NewCertificateService(
	tx TxManager,
	authorityRepo AuthorityRepository,
	certifierRepo CertifierRepository,
	certRepo CertificateRepository,
	activityRepo ActivityRepository,
	ledgerRepo LedgerRepository,
	audit AuditLogger,
	cache VerifyCacher,
	registry config.RegistryConfig,
) *CertificateService {
	return &CertificateService{
		tx:            tx,
		authorityRepo: authorityRepo,
		certifierRepo: certifierRepo,
		certRepo:      certRepo,
		activityRepo:  activityRepo,
		ledgerRepo:    ledgerRepo,
		audit:         audit,
		cache:         cache,
		registry:      registry,
		now:           time.Now,
	}
}

// Input types

// IssueCertificateInput represents input for direct certificate issuance
type IssueCertificateInput struct {
	Certifier         string                  `json:"certifier"`
	Owner             string                  `json:"owner"`
	SerialNumber      string                  `json:"serialNumber"`
	Brand             string                  `json:"brand"`
	Model             string                  `json:"model"`
	CertificationType types.CertificationType `json:"certificationType"`
	EstimatedValue    uint64                  `json:"estimatedValue"`
	MetadataURI       string                  `json:"metadataUri"`
}

// TransferCertificateInput represents input for an ownership transfer
type TransferCertificateInput struct {
	From         string `json:"from"`
	To           string `json:"to"`
	SerialNumber string `json:"serialNumber"`
}

// VerifyCertificateOutput is the public verification response
type VerifyCertificateOutput struct {
	Certificate             *models.Certificate `json:"certificate"`
	IsLocked                bool                `json:"isLocked"`
	TotalCertificatesIssued uint64              `json:"totalCertificatesIssued"`
}

func (in *IssueCertificateInput) validate() error {
	if err := keys.ValidateIdentity(in.Certifier); err != nil {
		return err
	}
	if err := keys.ValidateIdentity(in.Owner); err != nil {
		return err
	}
	if err := validateLimitedString("serialNumber", in.SerialNumber, types.MaxSerialNumberLen); err != nil {
		return err
	}
	if err := validateLimitedString("brand", in.Brand, types.MaxBrandLen); err != nil {
		return err
	}
	if err := validateLimitedString("model", in.Model, types.MaxModelLen); err != nil {
		return err
	}
	if len(in.MetadataURI) > types.MaxMetadataURILen {
		return apperrors.NewStringTooLongError("metadataUri", types.MaxMetadataURILen)
	}
	if in.EstimatedValue > math.MaxInt64 {
		return apperrors.NewInvalidParameterError("estimatedValue", "exceeds the maximum storable value")
	}
	if !in.CertificationType.Valid() {
		return apperrors.NewInvalidParameterError("certificationType", "unknown certification tier")
	}
	return nil
}

// Issue creates a certificate directly, bypassing the request workflow.
// The certifier must be accredited and active, and pays the tier fee to
// the treasury. The new certificate starts inside its transfer lock.
func (s *CertificateService) Issue(ctx context.Context, input *IssueCertificateInput) (*models.Certificate, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	certifier := keys.NormalizeIdentity(input.Certifier)
	owner := keys.NormalizeIdentity(input.Owner)
	fee := input.CertificationType.Fee()

	var cert *models.Certificate
	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		now := s.now()

		authority, err := s.authorityRepo.Get(ctx, keys.AuthorityAddress())
		if err != nil {
			return err
		}
		if !authority.HasCertifier(certifier) {
			return apperrors.NewUnauthorizedCertifierError(certifier)
		}
		profile, err := s.certifierRepo.GetByCertifier(ctx, certifier)
		if err != nil {
			return err
		}
		if !profile.IsActive {
			return apperrors.NewCertifierNotActiveError(certifier)
		}

		if exists, err := s.certRepo.Exists(ctx, input.SerialNumber); err != nil {
			return err
		} else if exists {
			return apperrors.NewSerialExistsError(input.SerialNumber)
		}

		activity, err := s.activityRepo.GetOrCreate(ctx, owner)
		if err != nil {
			return err
		}
		if activity.AtCertificateCap(types.MaxCertificates) {
			return apperrors.NewMaxCertificatesError(owner)
		}
		if activity.InCooldown(now, s.registry.CooldownPeriod) {
			return apperrors.NewCooldownError(owner)
		}

		cert = &models.Certificate{
			Address:           keys.CertificateAddress(input.SerialNumber),
			SerialNumber:      input.SerialNumber,
			Brand:             input.Brand,
			Model:             input.Model,
			CertificationType: input.CertificationType,
			EstimatedValue:    input.EstimatedValue,
			MetadataURI:       input.MetadataURI,
			Certifier:         certifier,
			Owner:             owner,
			PreviousOwners:    []string{},
			IssuedAt:          now,
			LockedUntil:       now.Add(s.registry.LockPeriod),
		}

		// Direct issuance is paid by the certifier.
		if err := s.ledgerRepo.Transfer(ctx, certifier, authority.Treasury, fee, types.EntryFee, cert.Address); err != nil {
			return err
		}
		if err := s.certRepo.Create(ctx, cert); err != nil {
			return err
		}

		activity.CertificateCount++
		activity.Touch(now)
		return s.activityRepo.Update(ctx, activity)
	})
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, &models.CertificateEvent{
		EventType:    types.EventIssued,
		SerialNumber: cert.SerialNumber,
		Actor:        certifier,
		Counterparty: owner,
		Amount:       fee,
		Detail:       string(cert.CertificationType),
		OccurredAt:   cert.IssuedAt,
	})
	metrics.CertificateIssued(string(cert.CertificationType))

	logging.WithFields(map[string]interface{}{
		"serialNumber": cert.SerialNumber,
		"certifier":    certifier,
		"owner":        owner,
		"tier":         cert.CertificationType,
	}).Info("Certificate issued")

	return cert, nil
}

// Transfer moves a certificate to a new owner. The lock must have
// elapsed, both parties must be outside their cooldown, and the
// recipient must be under the ownership cap. The lock re-arms on
// completion.
func (s *CertificateService) Transfer(ctx context.Context, input *TransferCertificateInput) (*models.Certificate, error) {
	if err := keys.ValidateIdentity(input.From); err != nil {
		return nil, err
	}
	if err := keys.ValidateIdentity(input.To); err != nil {
		return nil, err
	}
	if err := validateLimitedString("serialNumber", input.SerialNumber, types.MaxSerialNumberLen); err != nil {
		return nil, err
	}

	from := keys.NormalizeIdentity(input.From)
	to := keys.NormalizeIdentity(input.To)
	if from == to {
		return nil, apperrors.NewInvalidParameterError("to", "sender and recipient are the same identity")
	}

	var cert *models.Certificate
	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		now := s.now()

		var err error
		cert, err = s.certRepo.GetBySerial(ctx, input.SerialNumber)
		if err != nil {
			return err
		}
		if cert.Owner != from {
			return apperrors.NewNotOwnerError(from)
		}
		if cert.Locked(now) {
			return apperrors.NewCertificateLockedError(cert.SerialNumber, cert.LockedUntil.Unix())
		}

		sender, err := s.activityRepo.GetOrCreate(ctx, from)
		if err != nil {
			return err
		}
		recipient, err := s.activityRepo.GetOrCreate(ctx, to)
		if err != nil {
			return err
		}
		if sender.InCooldown(now, s.registry.CooldownPeriod) {
			return apperrors.NewCooldownError(from)
		}
		if recipient.InCooldown(now, s.registry.CooldownPeriod) {
			return apperrors.NewCooldownError(to)
		}
		if recipient.AtCertificateCap(types.MaxCertificates) {
			return apperrors.NewMaxCertificatesError(to)
		}

		cert.RecordTransfer(to, now, s.registry.LockPeriod)
		if err := s.certRepo.Update(ctx, cert); err != nil {
			return err
		}

		if sender.CertificateCount > 0 {
			sender.CertificateCount--
		}
		sender.Touch(now)
		if err := s.activityRepo.Update(ctx, sender); err != nil {
			return err
		}

		recipient.CertificateCount++
		recipient.Touch(now)
		return s.activityRepo.Update(ctx, recipient)
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, input.SerialNumber); err != nil {
			logging.WithError(err).Warn("Failed to invalidate verify cache after transfer")
		}
	}

	s.recordEvent(ctx, &models.CertificateEvent{
		EventType:    types.EventTransferred,
		SerialNumber: cert.SerialNumber,
		Actor:        from,
		Counterparty: to,
		OccurredAt:   s.now(),
	})
	metrics.CertificateTransferred()

	logging.WithFields(map[string]interface{}{
		"serialNumber": cert.SerialNumber,
		"from":         from,
		"to":           to,
	}).Info("Certificate transferred")

	return cert, nil
}

// Verify is the public authenticity check, served through the cache.
func (s *CertificateService) Verify(ctx context.Context, serialNumber string) (*VerifyCertificateOutput, error) {
	if err := validateLimitedString("serialNumber", serialNumber, types.MaxSerialNumberLen); err != nil {
		return nil, err
	}

	var cert *models.Certificate
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, serialNumber)
		switch {
		case err == nil:
			metrics.VerifyCacheResult("hit")
			cert = cached
		case errors.Is(err, storage.ErrCacheMiss):
			metrics.VerifyCacheResult("miss")
		default:
			logging.WithError(err).Warn("Verify cache read failed, falling through to database")
		}
	}

	if cert == nil {
		var err error
		cert, err = s.certRepo.GetBySerial(ctx, serialNumber)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, cert); err != nil {
				logging.WithError(err).Warn("Failed to populate verify cache")
			}
		}
	}

	stats, err := s.certRepo.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &VerifyCertificateOutput{
		Certificate:             cert,
		IsLocked:                cert.Locked(s.now()),
		TotalCertificatesIssued: stats.TotalCertificates,
	}, nil
}

// ListByOwner returns an identity's current certificates
func (s *CertificateService) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*models.Certificate, error) {
	if err := keys.ValidateIdentity(owner); err != nil {
		return nil, err
	}
	return s.certRepo.ListByOwner(ctx, owner, normalizeLimit(limit), offset)
}

// ListByCertifier returns the certificates a certifier has issued
func (s *CertificateService) ListByCertifier(ctx context.Context, certifier string, limit, offset int) ([]*models.Certificate, error) {
	if err := keys.ValidateIdentity(certifier); err != nil {
		return nil, err
	}
	return s.certRepo.ListByCertifier(ctx, certifier, normalizeLimit(limit), offset)
}

// History returns the audit trail for a serial number
func (s *CertificateService) History(ctx context.Context, serialNumber string, limit int) ([]*models.CertificateEvent, error) {
	if err := validateLimitedString("serialNumber", serialNumber, types.MaxSerialNumberLen); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.History(ctx, serialNumber, normalizeLimit(limit))
}

func (s *CertificateService) recordEvent(ctx context.Context, event *models.CertificateEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		logging.WithError(err).WithField("serialNumber", event.SerialNumber).Warn("Failed to record audit event")
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}
