package service

import (
	"context"
	"math"
	"time"

	"github.com/cert-registry/internal/config"
	apperrors "github.com/cert-registry/internal/errors"
	"github.com/cert-registry/internal/keys"
	"github.com/cert-registry/internal/logging"
	"github.com/cert-registry/internal/metrics"
	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/types"
)

// RequestService handles the escrowed certification request workflow:
// submit, approve, reject. The tier fee sits on the request's ledger
// account until the assigned certifier resolves it; approval splits it
// between certifier and treasury, rejection refunds it in full.
type RequestService struct {
	tx            TxManager
	authorityRepo AuthorityRepository
	certifierRepo CertifierRepository
	certRepo      CertificateRepository
	activityRepo  ActivityRepository
	requestRepo   RequestRepository
	ledgerRepo    LedgerRepository
	audit         AuditLogger
	registry      config.RegistryConfig
	now           nowFunc
}

// NewRequestService creates a new request service
func NewRequestService(
	tx TxManager,
	authorityRepo AuthorityRepository,
	certifierRepo CertifierRepository,
	certRepo CertificateRepository,
	activityRepo ActivityRepository,
	requestRepo RequestRepository,
	ledgerRepo LedgerRepository,
	audit AuditLogger,
	registry config.RegistryConfig,
) *RequestService {
	return &RequestService{
		tx:            tx,
		authorityRepo: authorityRepo,
		certifierRepo: certifierRepo,
		certRepo:      certRepo,
		activityRepo:  activityRepo,
		requestRepo:   requestRepo,
		ledgerRepo:    ledgerRepo,
		audit:         audit,
		registry:      registry,
		now:           time.Now,
	}
}

// SubmitRequestInput represents input for submitting a request
type SubmitRequestInput struct {
	Requester         string                  `json:"requester"`
	TargetCertifier   string                  `json:"targetCertifier"`
	SerialNumber      string                  `json:"serialNumber"`
	Brand             string                  `json:"brand"`
	Model             string                  `json:"model"`
	CertificationType types.CertificationType `json:"certificationType"`
	EstimatedValue    uint64                  `json:"estimatedValue"`
	MetadataURI       string                  `json:"metadataUri"`
}

func (in *SubmitRequestInput) validate() error {
	if err := keys.ValidateIdentity(in.Requester); err != nil {
		return err
	}
	if err := keys.ValidateIdentity(in.TargetCertifier); err != nil {
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

// Submit files a certification request against an accredited, active
// certifier with spare capacity. The tier fee moves from the requester
// into escrow atomically with the request's creation.
func (s *RequestService) Submit(ctx context.Context, input *SubmitRequestInput) (*models.CertificationRequest, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	requester := keys.NormalizeIdentity(input.Requester)
	certifier := keys.NormalizeIdentity(input.TargetCertifier)
	fee := input.CertificationType.Fee()

	var request *models.CertificationRequest
	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		now := s.now()

		if exists, err := s.certRepo.Exists(ctx, input.SerialNumber); err != nil {
			return err
		} else if exists {
			return apperrors.NewSerialExistsError(input.SerialNumber)
		}

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
		if profile.AtCapacity(types.MaxConcurrentRequests) {
			return apperrors.NewCertifierAtCapacityError(certifier)
		}

		request = &models.CertificationRequest{
			Address:           keys.RequestAddress(input.SerialNumber),
			Requester:         requester,
			AssignedCertifier: certifier,
			SerialNumber:      input.SerialNumber,
			Brand:             input.Brand,
			Model:             input.Model,
			CertificationType: input.CertificationType,
			EstimatedValue:    input.EstimatedValue,
			MetadataURI:       input.MetadataURI,
			Status:            types.StatusPending,
			EscrowAmount:      fee,
			SubmittedAt:       now,
		}

		// Escrow is held on the request's own ledger account.
		if err := s.ledgerRepo.Transfer(ctx, requester, request.Address, fee, types.EntryEscrow, request.Address); err != nil {
			return err
		}
		if err := s.requestRepo.Create(ctx, request); err != nil {
			return err
		}

		profile.PendingRequests++
		return s.certifierRepo.Update(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, &models.CertificateEvent{
		EventType:    types.EventRequested,
		SerialNumber: request.SerialNumber,
		Actor:        requester,
		Counterparty: certifier,
		Amount:       fee,
		Detail:       string(request.CertificationType),
		OccurredAt:   request.SubmittedAt,
	})
	metrics.RequestSubmitted()
	metrics.EscrowMoved("held", fee)

	logging.WithFields(map[string]interface{}{
		"serialNumber": request.SerialNumber,
		"requester":    requester,
		"certifier":    certifier,
		"escrow":       fee,
	}).Info("Certification request submitted")

	return request, nil
}

// Approve resolves a pending request in the requester's favor. Only the
// assigned certifier may approve. The escrow splits between certifier
// and treasury, and the certificate is created exactly as in direct
// issuance.
func (s *RequestService) Approve(ctx context.Context, certifier, serialNumber string) (*models.Certificate, error) {
	if err := keys.ValidateIdentity(certifier); err != nil {
		return nil, err
	}
	if err := validateLimitedString("serialNumber", serialNumber, types.MaxSerialNumberLen); err != nil {
		return nil, err
	}
	certifier = keys.NormalizeIdentity(certifier)

	var cert *models.Certificate
	var escrow uint64
	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		now := s.now()

		request, profile, err := s.loadPendingRequest(ctx, certifier, serialNumber)
		if err != nil {
			return err
		}

		activity, err := s.activityRepo.GetOrCreate(ctx, request.Requester)
		if err != nil {
			return err
		}
		if activity.AtCertificateCap(types.MaxCertificates) {
			return apperrors.NewMaxCertificatesError(request.Requester)
		}

		authority, err := s.authorityRepo.Get(ctx, keys.AuthorityAddress())
		if err != nil {
			return err
		}

		escrow = request.EscrowAmount
		certifierShare := escrow * types.CertifierSharePercent / 100
		treasuryShare := escrow - certifierShare

		if err := s.ledgerRepo.Transfer(ctx, request.Address, certifier, certifierShare, types.EntryRelease, request.Address); err != nil {
			return err
		}
		if err := s.ledgerRepo.Transfer(ctx, request.Address, authority.Treasury, treasuryShare, types.EntryRelease, request.Address); err != nil {
			return err
		}

		cert = &models.Certificate{
			Address:           keys.CertificateAddress(serialNumber),
			SerialNumber:      request.SerialNumber,
			Brand:             request.Brand,
			Model:             request.Model,
			CertificationType: request.CertificationType,
			EstimatedValue:    request.EstimatedValue,
			MetadataURI:       request.MetadataURI,
			Certifier:         certifier,
			Owner:             request.Requester,
			PreviousOwners:    []string{},
			IssuedAt:          now,
			LockedUntil:       now.Add(s.registry.LockPeriod),
		}
		if err := s.certRepo.Create(ctx, cert); err != nil {
			return err
		}

		activity.CertificateCount++
		activity.Touch(now)
		if err := s.activityRepo.Update(ctx, activity); err != nil {
			return err
		}

		request.Resolve(types.StatusApproved, now)
		if err := s.requestRepo.Update(ctx, request); err != nil {
			return err
		}

		profile.PendingRequests--
		profile.CompletedRequests++
		profile.TotalProcessingTime += request.ProcessingTime()
		return s.certifierRepo.Update(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, &models.CertificateEvent{
		EventType:    types.EventApproved,
		SerialNumber: cert.SerialNumber,
		Actor:        certifier,
		Counterparty: cert.Owner,
		Amount:       escrow,
		Detail:       string(cert.CertificationType),
		OccurredAt:   cert.IssuedAt,
	})
	metrics.RequestResolved("approved")
	metrics.CertificateIssued(string(cert.CertificationType))
	metrics.EscrowMoved("released", escrow)

	logging.WithFields(map[string]interface{}{
		"serialNumber": cert.SerialNumber,
		"certifier":    certifier,
		"owner":        cert.Owner,
	}).Info("Certification request approved")

	return cert, nil
}

// Reject resolves a pending request against the requester. Only the
// assigned certifier may reject, a reason is mandatory, and the full
// escrow returns to the requester.
func (s *RequestService) Reject(ctx context.Context, certifier, serialNumber, reason string) (*models.CertificationRequest, error) {
	if err := keys.ValidateIdentity(certifier); err != nil {
		return nil, err
	}
	if err := validateLimitedString("serialNumber", serialNumber, types.MaxSerialNumberLen); err != nil {
		return nil, err
	}
	if err := validateLimitedString("reason", reason, types.MaxRejectionReasonLen); err != nil {
		return nil, err
	}
	certifier = keys.NormalizeIdentity(certifier)

	var request *models.CertificationRequest
	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		now := s.now()

		var profile *models.CertifierProfile
		var err error
		request, profile, err = s.loadPendingRequest(ctx, certifier, serialNumber)
		if err != nil {
			return err
		}

		if err := s.ledgerRepo.Transfer(ctx, request.Address, request.Requester, request.EscrowAmount, types.EntryRefund, request.Address); err != nil {
			return err
		}

		request.RejectionReason = reason
		request.Resolve(types.StatusRejected, now)
		if err := s.requestRepo.Update(ctx, request); err != nil {
			return err
		}

		profile.PendingRequests--
		profile.RejectedRequests++
		profile.TotalProcessingTime += request.ProcessingTime()
		return s.certifierRepo.Update(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, &models.CertificateEvent{
		EventType:    types.EventRejected,
		SerialNumber: request.SerialNumber,
		Actor:        certifier,
		Counterparty: request.Requester,
		Amount:       request.EscrowAmount,
		Detail:       reason,
		OccurredAt:   *request.ResolvedAt,
	})
	metrics.RequestResolved("rejected")
	metrics.EscrowMoved("refunded", request.EscrowAmount)

	logging.WithFields(map[string]interface{}{
		"serialNumber": request.SerialNumber,
		"certifier":    certifier,
		"requester":    request.Requester,
	}).Info("Certification request rejected")

	return request, nil
}

// Get returns the request for a serial number
func (s *RequestService) Get(ctx context.Context, serialNumber string) (*models.CertificationRequest, error) {
	if err := validateLimitedString("serialNumber", serialNumber, types.MaxSerialNumberLen); err != nil {
		return nil, err
	}
	return s.requestRepo.GetBySerial(ctx, serialNumber)
}

// ListByCertifier returns a certifier's requests, optionally filtered by
// status
func (s *RequestService) ListByCertifier(ctx context.Context, certifier string, status types.RequestStatus, limit, offset int) ([]*models.CertificationRequest, error) {
	if err := keys.ValidateIdentity(certifier); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperrors.NewInvalidParameterError("status", "unknown request status")
	}
	return s.requestRepo.ListByCertifier(ctx, certifier, status, normalizeLimit(limit), offset)
}

// ListByRequester returns a requester's requests
func (s *RequestService) ListByRequester(ctx context.Context, requester string, limit, offset int) ([]*models.CertificationRequest, error) {
	if err := keys.ValidateIdentity(requester); err != nil {
		return nil, err
	}
	return s.requestRepo.ListByRequester(ctx, requester, normalizeLimit(limit), offset)
}

// loadPendingRequest fetches the request and enforces the assigned
// certifier's authorization over it.
func (s *RequestService) loadPendingRequest(ctx context.Context, certifier, serialNumber string) (*models.CertificationRequest, *models.CertifierProfile, error) {
	request, err := s.requestRepo.GetBySerial(ctx, serialNumber)
	if err != nil {
		return nil, nil, err
	}
	if request.Status != types.StatusPending {
		return nil, nil, apperrors.NewRequestNotPendingError(serialNumber, request.Status)
	}
	if request.AssignedCertifier != certifier {
		return nil, nil, apperrors.NewNotAssignedCertifierError(certifier)
	}

	profile, err := s.certifierRepo.GetByCertifier(ctx, certifier)
	if err != nil {
		return nil, nil, err
	}
	return request, profile, nil
}

func (s *RequestService) recordEvent(ctx context.Context, event *models.CertificateEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		logging.WithError(err).WithField("serialNumber", event.SerialNumber).Warn("Failed to record audit event")
	}
}
