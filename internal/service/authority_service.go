package service

import (
	"context"
	"time"

	apperrors "github.com/cert-registry/internal/errors"
	"github.com/cert-registry/internal/keys"
	"github.com/cert-registry/internal/logging"
	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/types"
)

// AuthorityService manages the registry root: one-time initialization
// and the accredited certifier roster. Issuance counters are not kept
// on the authority row; they are aggregated from the certificate table
// on demand.
type AuthorityService struct {
	tx            TxManager
	authorityRepo AuthorityRepository
	certifierRepo CertifierRepository
	certRepo      CertificateRepository
}

// NewAuthorityService creates a new authority service
func NewAuthorityService(tx TxManager, authorityRepo AuthorityRepository, certifierRepo CertifierRepository, certRepo CertificateRepository) *AuthorityService {
	return &AuthorityService{
		tx:            tx,
		authorityRepo: authorityRepo,
		certifierRepo: certifierRepo,
		certRepo:      certRepo,
	}
}

// Initialize creates the registry authority. Callable exactly once; the
// caller becomes the admin and treasury names the ledger account that
// collects certification fees.
func (s *AuthorityService) Initialize(ctx context.Context, admin, treasury string) (*models.Authority, error) {
	if err := keys.ValidateIdentity(admin); err != nil {
		return nil, err
	}
	if err := keys.ValidateIdentity(treasury); err != nil {
		return nil, err
	}

	authority := &models.Authority{
		Address:    keys.AuthorityAddress(),
		Admin:      keys.NormalizeIdentity(admin),
		Treasury:   keys.NormalizeIdentity(treasury),
		Certifiers: []string{},
	}

	if err := s.authorityRepo.Create(ctx, authority); err != nil {
		return nil, err
	}

	logging.WithFields(map[string]interface{}{
		"admin":    authority.Admin,
		"treasury": authority.Treasury,
		"address":  authority.Address,
	}).Info("Registry authority initialized")

	return authority, nil
}

// GetAuthority returns the registry authority
func (s *AuthorityService) GetAuthority(ctx context.Context) (*models.Authority, error) {
	return s.authorityRepo.Get(ctx, keys.AuthorityAddress())
}

// GetStatistics aggregates registry-wide issuance and transfer counts
// from the certificate table
func (s *AuthorityService) GetStatistics(ctx context.Context) (*models.RegistryStats, error) {
	return s.certRepo.Stats(ctx)
}

// AddCertifier accredits a certifier. Admin only; the roster is capped.
// A previously removed certifier gets its old profile reactivated with
// its history intact.
func (s *AuthorityService) AddCertifier(ctx context.Context, admin, certifier, displayName, physicalAddress string) (*models.CertifierProfile, error) {
	if err := keys.ValidateIdentity(admin); err != nil {
		return nil, err
	}
	if err := keys.ValidateIdentity(certifier); err != nil {
		return nil, err
	}
	if err := validateLimitedString("display_name", displayName, types.MaxDisplayNameLen); err != nil {
		return nil, err
	}
	if err := validateLimitedString("physical_address", physicalAddress, types.MaxPhysicalAddressLen); err != nil {
		return nil, err
	}
	certifier = keys.NormalizeIdentity(certifier)

	var profile *models.CertifierProfile
	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		authority, err := s.authorityRepo.Get(ctx, keys.AuthorityAddress())
		if err != nil {
			return err
		}
		if authority.Admin != keys.NormalizeIdentity(admin) {
			return apperrors.NewUnauthorizedError("only the admin can accredit certifiers")
		}
		if authority.HasCertifier(certifier) {
			return apperrors.NewCertifierExistsError(certifier)
		}
		if len(authority.Certifiers) >= types.MaxCertifiers {
			return apperrors.NewMaxCertifiersError()
		}

		authority.Certifiers = append(authority.Certifiers, certifier)
		if err := s.authorityRepo.Update(ctx, authority); err != nil {
			return err
		}

		existing, err := s.certifierRepo.GetByCertifier(ctx, certifier)
		if err == nil {
			existing.IsActive = true
			existing.DisplayName = displayName
			existing.PhysicalAddress = physicalAddress
			if err := s.certifierRepo.Update(ctx, existing); err != nil {
				return err
			}
			profile = existing
			return nil
		}
		if !isNotFound(err) {
			return err
		}

		profile = &models.CertifierProfile{
			Address:         keys.CertifierProfileAddress(certifier),
			Certifier:       certifier,
			DisplayName:     displayName,
			PhysicalAddress: physicalAddress,
			IsActive:        true,
		}
		return s.certifierRepo.Create(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	logging.WithField("certifier", certifier).Info("Certifier accredited")
	return profile, nil
}

// RemoveCertifier revokes a certifier's accreditation. Admin only. The
// profile is deactivated, not deleted, so its statistics survive.
// Already-issued certificates stay valid.
func (s *AuthorityService) RemoveCertifier(ctx context.Context, admin, certifier string) error {
	if err := keys.ValidateIdentity(admin); err != nil {
		return err
	}
	if err := keys.ValidateIdentity(certifier); err != nil {
		return err
	}
	certifier = keys.NormalizeIdentity(certifier)

	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		authority, err := s.authorityRepo.Get(ctx, keys.AuthorityAddress())
		if err != nil {
			return err
		}
		if authority.Admin != keys.NormalizeIdentity(admin) {
			return apperrors.NewUnauthorizedError("only the admin can revoke certifiers")
		}
		if !authority.RemoveCertifier(certifier) {
			return apperrors.NewCertifierNotFoundError(certifier)
		}
		if err := s.authorityRepo.Update(ctx, authority); err != nil {
			return err
		}

		profile, err := s.certifierRepo.GetByCertifier(ctx, certifier)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		profile.IsActive = false
		return s.certifierRepo.Update(ctx, profile)
	})
	if err != nil {
		return err
	}

	logging.WithField("certifier", certifier).Info("Certifier accreditation revoked")
	return nil
}

// ListCertifiers returns all certifier profiles, active first
func (s *AuthorityService) ListCertifiers(ctx context.Context) ([]*models.CertifierProfile, error) {
	return s.certifierRepo.List(ctx)
}

// GetCertifier returns one certifier's profile with derived statistics
func (s *AuthorityService) GetCertifier(ctx context.Context, certifier string) (*CertifierStats, error) {
	if err := keys.ValidateIdentity(certifier); err != nil {
		return nil, err
	}

	profile, err := s.certifierRepo.GetByCertifier(ctx, certifier)
	if err != nil {
		return nil, err
	}

	return &CertifierStats{
		Profile:               profile,
		AverageProcessingTime: profile.AverageProcessingTime(),
	}, nil
}

// CertifierStats pairs a profile with its derived statistics
type CertifierStats struct {
	Profile               *models.CertifierProfile `json:"profile"`
	AverageProcessingTime time.Duration            `json:"averageProcessingTime"`
}

func isNotFound(err error) bool {
	return apperrors.Categorize(err).Category == apperrors.CategoryNotFound
}
