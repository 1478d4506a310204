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
	"github.com/cert-registry/internal/types"
)

// RequestRepository persists certification requests, at most one per
// serial number. A rejected row is replaced when the serial is
// resubmitted; pending and approved rows block a new request.
type RequestRepository struct {
	db *PostgresDB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *PostgresDB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `address, discriminator, requester, assigned_certifier, serial_number, brand, model, certification_type, estimated_value, metadata_uri, status, escrow_amount, rejection_reason, submitted_at, resolved_at, version`

// Create inserts a new pending request. If a rejected request already
// occupies the serial's address it is replaced, so rejection does not
// burn the serial.
func (r *RequestRepository) Create(ctx context.Context, request *models.CertificationRequest) error {
	request.Requester = keys.NormalizeIdentity(request.Requester)
	request.AssignedCertifier = keys.NormalizeIdentity(request.AssignedCertifier)
	request.Version = 1

	query := `
		INSERT INTO certification_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (address) DO UPDATE
		SET requester = EXCLUDED.requester,
		    assigned_certifier = EXCLUDED.assigned_certifier,
		    brand = EXCLUDED.brand,
		    model = EXCLUDED.model,
		    certification_type = EXCLUDED.certification_type,
		    estimated_value = EXCLUDED.estimated_value,
		    metadata_uri = EXCLUDED.metadata_uri,
		    status = EXCLUDED.status,
		    escrow_amount = EXCLUDED.escrow_amount,
		    rejection_reason = '',
		    submitted_at = EXCLUDED.submitted_at,
		    resolved_at = NULL,
		    version = certification_requests.version + 1
		WHERE certification_requests.status = 'rejected'
		RETURNING version
	`

	err := r.db.Q(ctx).QueryRow(ctx, query,
		request.Address,
		keys.Discriminator(keys.TypeRequest),
		request.Requester,
		request.AssignedCertifier,
		request.SerialNumber,
		request.Brand,
		request.Model,
		request.CertificationType,
		request.EstimatedValue,
		request.MetadataURI,
		request.Status,
		request.EscrowAmount,
		request.RejectionReason,
		request.SubmittedAt,
		request.ResolvedAt,
		request.Version,
	).Scan(&request.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewRequestExistsError(request.SerialNumber)
		}
		return apperrors.NewDatabaseError("create certification request", err)
	}

	return nil
}

// Get retrieves a request by its derived address
func (r *RequestRepository) Get(ctx context.Context, address string) (*models.CertificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM certification_requests WHERE address = $1`

	request, err := r.scanRequest(r.db.Q(ctx).QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("certification request", address)
		}
		return nil, apperrors.NewDatabaseError("get certification request", err)
	}
	return request, nil
}

// GetBySerial retrieves the request for a serial number
func (r *RequestRepository) GetBySerial(ctx context.Context, serialNumber string) (*models.CertificationRequest, error) {
	return r.Get(ctx, keys.RequestAddress(serialNumber))
}

// ListByCertifier returns a certifier's requests, optionally filtered by
// status, newest first
func (r *RequestRepository) ListByCertifier(ctx context.Context, certifier string, status types.RequestStatus, limit, offset int) ([]*models.CertificationRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM certification_requests
		WHERE assigned_certifier = $1 AND ($2 = '' OR status = $2)
		ORDER BY submitted_at DESC
		LIMIT $3 OFFSET $4
	`
	return r.list(ctx, query, keys.NormalizeIdentity(certifier), string(status), limit, offset)
}

// ListByRequester returns a requester's requests, newest first
func (r *RequestRepository) ListByRequester(ctx context.Context, requester string, limit, offset int) ([]*models.CertificationRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM certification_requests
		WHERE requester = $1
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, keys.NormalizeIdentity(requester), limit, offset)
}

// Update writes a request back with a version check
func (r *RequestRepository) Update(ctx context.Context, request *models.CertificationRequest) error {
	query := `
		UPDATE certification_requests
		SET status = $1, rejection_reason = $2, resolved_at = $3, version = version + 1
		WHERE address = $4 AND version = $5
	`

	tag, err := r.db.Q(ctx).Exec(ctx, query,
		request.Status,
		request.RejectionReason,
		request.ResolvedAt,
		request.Address,
		request.Version,
	)
	if err != nil {
		return apperrors.NewDatabaseError("update certification request", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("certification request %s", request.SerialNumber))
	}

	request.Version++
	return nil
}

func (r *RequestRepository) list(ctx context.Context, query string, args ...any) ([]*models.CertificationRequest, error) {
	rows, err := r.db.Q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list certification requests", err)
	}
	defer rows.Close()

	var requests []*models.CertificationRequest
	for rows.Next() {
		request, err := r.scanRequest(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan certification request", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list certification requests", err)
	}

	return requests, nil
}

func (r *RequestRepository) scanRequest(row pgx.Row) (*models.CertificationRequest, error) {
	var request models.CertificationRequest
	var discriminator []byte
	var resolvedAt *time.Time

	err := row.Scan(
		&request.Address,
		&discriminator,
		&request.Requester,
		&request.AssignedCertifier,
		&request.SerialNumber,
		&request.Brand,
		&request.Model,
		&request.CertificationType,
		&request.EstimatedValue,
		&request.MetadataURI,
		&request.Status,
		&request.EscrowAmount,
		&request.RejectionReason,
		&request.SubmittedAt,
		&resolvedAt,
		&request.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := keys.VerifyDiscriminator(discriminator, keys.TypeRequest); err != nil {
		return nil, apperrors.NewWrongAccountTypeError(request.Address, keys.TypeRequest)
	}

	request.ResolvedAt = resolvedAt
	return &request, nil
}
