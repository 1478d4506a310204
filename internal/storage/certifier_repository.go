package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/cert-registry/internal/errors"
	"github.com/cert-registry/internal/keys"
	"github.com/cert-registry/internal/models"
)

// CertifierRepository persists certifier workload profiles
type CertifierRepository struct {
	db *PostgresDB
}

// NewCertifierRepository creates a new certifier repository
func NewCertifierRepository(db *PostgresDB) *CertifierRepository {
	return &CertifierRepository{db: db}
}

// Create inserts a new certifier profile
func (r *CertifierRepository) Create(ctx context.Context, profile *models.CertifierProfile) error {
	profile.Certifier = keys.NormalizeIdentity(profile.Certifier)
	now := time.Now()
	profile.RegisteredAt = now
	profile.UpdatedAt = now
	profile.Version = 1

	query := `
		INSERT INTO certifier_profiles (address, discriminator, certifier, display_name, physical_address, pending_requests, completed_requests, rejected_requests, total_processing_time, is_active, registered_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (address) DO NOTHING
	`

	tag, err := r.db.Q(ctx).Exec(ctx, query,
		profile.Address,
		keys.Discriminator(keys.TypeCertifierProfile),
		profile.Certifier,
		profile.DisplayName,
		profile.PhysicalAddress,
		profile.PendingRequests,
		profile.CompletedRequests,
		profile.RejectedRequests,
		profile.TotalProcessingTime.Nanoseconds(),
		profile.IsActive,
		profile.RegisteredAt,
		profile.UpdatedAt,
		profile.Version,
	)
	if err != nil {
		return apperrors.NewDatabaseError("create certifier profile", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewCertifierExistsError(profile.Certifier)
	}

	return nil
}

// Get retrieves a certifier profile by its derived address
func (r *CertifierRepository) Get(ctx context.Context, address string) (*models.CertifierProfile, error) {
	query := `
		SELECT address, discriminator, certifier, display_name, physical_address, pending_requests, completed_requests, rejected_requests, total_processing_time, is_active, registered_at, updated_at, version
		FROM certifier_profiles
		WHERE address = $1
	`

	profile, err := r.scanProfile(r.db.Q(ctx).QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("certifier profile", address)
		}
		return nil, apperrors.NewDatabaseError("get certifier profile", err)
	}
	return profile, nil
}

// GetByCertifier retrieves a profile by certifier identity
func (r *CertifierRepository) GetByCertifier(ctx context.Context, certifier string) (*models.CertifierProfile, error) {
	return r.Get(ctx, keys.CertifierProfileAddress(certifier))
}

// List returns all certifier profiles, active first, then by identity
func (r *CertifierRepository) List(ctx context.Context) ([]*models.CertifierProfile, error) {
	query := `
		SELECT address, discriminator, certifier, display_name, physical_address, pending_requests, completed_requests, rejected_requests, total_processing_time, is_active, registered_at, updated_at, version
		FROM certifier_profiles
		ORDER BY is_active DESC, certifier ASC
	`

	rows, err := r.db.Q(ctx).Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list certifier profiles", err)
	}
	defer rows.Close()

	var profiles []*models.CertifierProfile
	for rows.Next() {
		profile, err := r.scanProfile(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan certifier profile", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list certifier profiles", err)
	}

	return profiles, nil
}

// Update writes a profile back with a version check
func (r *CertifierRepository) Update(ctx context.Context, profile *models.CertifierProfile) error {
	profile.UpdatedAt = time.Now()

	query := `
		UPDATE certifier_profiles
		SET display_name = $1, physical_address = $2, pending_requests = $3, completed_requests = $4, rejected_requests = $5, total_processing_time = $6, is_active = $7, updated_at = $8, version = version + 1
		WHERE address = $9 AND version = $10
	`

	tag, err := r.db.Q(ctx).Exec(ctx, query,
		profile.DisplayName,
		profile.PhysicalAddress,
		profile.PendingRequests,
		profile.CompletedRequests,
		profile.RejectedRequests,
		profile.TotalProcessingTime.Nanoseconds(),
		profile.IsActive,
		profile.UpdatedAt,
		profile.Address,
		profile.Version,
	)
	if err != nil {
		return apperrors.NewDatabaseError("update certifier profile", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("certifier profile %s", profile.Certifier))
	}

	profile.Version++
	return nil
}

func (r *CertifierRepository) scanProfile(row pgx.Row) (*models.CertifierProfile, error) {
	var profile models.CertifierProfile
	var discriminator []byte
	var processingNanos int64

	err := row.Scan(
		&profile.Address,
		&discriminator,
		&profile.Certifier,
		&profile.DisplayName,
		&profile.PhysicalAddress,
		&profile.PendingRequests,
		&profile.CompletedRequests,
		&profile.RejectedRequests,
		&processingNanos,
		&profile.IsActive,
		&profile.RegisteredAt,
		&profile.UpdatedAt,
		&profile.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := keys.VerifyDiscriminator(discriminator, keys.TypeCertifierProfile); err != nil {
		return nil, apperrors.NewWrongAccountTypeError(profile.Address, keys.TypeCertifierProfile)
	}

	profile.TotalProcessingTime = time.Duration(processingNanos)
	return &profile, nil
}
