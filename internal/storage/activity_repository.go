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

// ActivityRepository persists per-identity throttling records. Rows are
// created lazily the first time an identity acts.
type ActivityRepository struct {
	db *PostgresDB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *PostgresDB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// GetOrCreate returns the activity record for an identity, creating a
// fresh one if the identity has never acted before.
func (r *ActivityRepository) GetOrCreate(ctx context.Context, identity string) (*models.UserActivity, error) {
	identity = keys.NormalizeIdentity(identity)
	address := keys.UserActivityAddress(identity)

	activity, err := r.Get(ctx, address)
	if err == nil {
		return activity, nil
	}
	var catErr *apperrors.CategorizedError
	if !errors.As(err, &catErr) || catErr.Code != "NOT_FOUND" {
		return nil, err
	}

	activity = &models.UserActivity{
		Address:   address,
		User:      identity,
		CreatedAt: time.Now(),
		Version:   1,
	}

	query := `
		INSERT INTO user_activity (address, discriminator, user_identity, certificate_count, last_action_at, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO NOTHING
	`

	tag, err := r.db.Q(ctx).Exec(ctx, query,
		activity.Address,
		keys.Discriminator(keys.TypeUserActivity),
		activity.User,
		activity.CertificateCount,
		activity.LastActionAt,
		activity.CreatedAt,
		activity.Version,
	)
	if err != nil {
		return nil, apperrors.NewDatabaseError("create user activity", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the insert race; the row exists now.
		return r.Get(ctx, address)
	}

	return activity, nil
}

// Get retrieves an activity record by its derived address
func (r *ActivityRepository) Get(ctx context.Context, address string) (*models.UserActivity, error) {
	query := `
		SELECT address, discriminator, user_identity, certificate_count, last_action_at, created_at, version
		FROM user_activity
		WHERE address = $1
	`

	var activity models.UserActivity
	var discriminator []byte

	err := r.db.Q(ctx).QueryRow(ctx, query, address).Scan(
		&activity.Address,
		&discriminator,
		&activity.User,
		&activity.CertificateCount,
		&activity.LastActionAt,
		&activity.CreatedAt,
		&activity.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user activity", address)
		}
		return nil, apperrors.NewDatabaseError("get user activity", err)
	}

	if err := keys.VerifyDiscriminator(discriminator, keys.TypeUserActivity); err != nil {
		return nil, apperrors.NewWrongAccountTypeError(address, keys.TypeUserActivity)
	}

	return &activity, nil
}

// GetByIdentity retrieves the activity record for an identity
func (r *ActivityRepository) GetByIdentity(ctx context.Context, identity string) (*models.UserActivity, error) {
	return r.Get(ctx, keys.UserActivityAddress(identity))
}

// Update writes an activity record back with a version check
func (r *ActivityRepository) Update(ctx context.Context, activity *models.UserActivity) error {
	query := `
		UPDATE user_activity
		SET certificate_count = $1, last_action_at = $2, version = version + 1
		WHERE address = $3 AND version = $4
	`

	tag, err := r.db.Q(ctx).Exec(ctx, query,
		activity.CertificateCount,
		activity.LastActionAt,
		activity.Address,
		activity.Version,
	)
	if err != nil {
		return apperrors.NewDatabaseError("update user activity", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("user activity %s", activity.User))
	}

	activity.Version++
	return nil
}
