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

// AuthorityRepository persists the singleton registry authority row.
// Every row carries the account-type discriminator, verified on read, so
// a key derived for one record type can never be dereferenced as another.
type AuthorityRepository struct {
	db *PostgresDB
}

// NewAuthorityRepository creates a new authority repository
func NewAuthorityRepository(db *PostgresDB) *AuthorityRepository {
	return &AuthorityRepository{db: db}
}

// Create inserts the authority row. Fails if the registry is already
// initialized.
func (r *AuthorityRepository) Create(ctx context.Context, authority *models.Authority) error {
	now := time.Now()
	authority.CreatedAt = now
	authority.UpdatedAt = now
	authority.Version = 1

	query := `
		INSERT INTO authority (address, discriminator, admin, treasury, certifiers, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (address) DO NOTHING
	`

	tag, err := r.db.Q(ctx).Exec(ctx, query,
		authority.Address,
		keys.Discriminator(keys.TypeAuthority),
		authority.Admin,
		authority.Treasury,
		authority.Certifiers,
		authority.CreatedAt,
		authority.UpdatedAt,
		authority.Version,
	)
	if err != nil {
		return apperrors.NewDatabaseError("create authority", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewAlreadyInitializedError()
	}

	return nil
}

// Get retrieves the authority by its derived address
func (r *AuthorityRepository) Get(ctx context.Context, address string) (*models.Authority, error) {
	query := `
		SELECT address, discriminator, admin, treasury, certifiers, created_at, updated_at, version
		FROM authority
		WHERE address = $1
	`

	var authority models.Authority
	var discriminator []byte

	err := r.db.Q(ctx).QueryRow(ctx, query, address).Scan(
		&authority.Address,
		&discriminator,
		&authority.Admin,
		&authority.Treasury,
		&authority.Certifiers,
		&authority.CreatedAt,
		&authority.UpdatedAt,
		&authority.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("authority", address)
		}
		return nil, apperrors.NewDatabaseError("get authority", err)
	}

	if err := keys.VerifyDiscriminator(discriminator, keys.TypeAuthority); err != nil {
		return nil, apperrors.NewWrongAccountTypeError(address, keys.TypeAuthority)
	}

	return &authority, nil
}

// Update writes the authority back, bumping its version. The write only
// lands if nobody else modified the row since it was read; a lost race
// surfaces as a retryable conflict.
func (r *AuthorityRepository) Update(ctx context.Context, authority *models.Authority) error {
	authority.UpdatedAt = time.Now()

	query := `
		UPDATE authority
		SET certifiers = $1, updated_at = $2, version = version + 1
		WHERE address = $3 AND version = $4
	`

	tag, err := r.db.Q(ctx).Exec(ctx, query,
		authority.Certifiers,
		authority.UpdatedAt,
		authority.Address,
		authority.Version,
	)
	if err != nil {
		return apperrors.NewDatabaseError("update authority", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("authority %s", authority.Address))
	}

	authority.Version++
	return nil
}
