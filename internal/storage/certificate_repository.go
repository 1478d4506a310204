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

// CertificateRepository persists certificate records. Serial numbers are
// globally unique; the derived address is the primary key.
type CertificateRepository struct {
	db *PostgresDB
}

// NewCertificateRepository creates a new certificate repository
func NewCertificateRepository(db *PostgresDB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const certificateColumns = `address, discriminator, serial_number, brand, model, certification_type, estimated_value, metadata_uri, certifier, owner, previous_owners, transfer_count, issued_at, locked_until, last_transfer_at, version`

// Create inserts a new certificate. A duplicate serial number fails with
// a serial-exists error.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	cert.Certifier = keys.NormalizeIdentity(cert.Certifier)
	cert.Owner = keys.NormalizeIdentity(cert.Owner)
	cert.Version = 1

	query := `
		INSERT INTO certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (address) DO NOTHING
	`

	tag, err := r.db.Q(ctx).Exec(ctx, query,
		cert.Address,
		keys.Discriminator(keys.TypeCertificate),
		cert.SerialNumber,
		cert.Brand,
		cert.Model,
		cert.CertificationType,
		cert.EstimatedValue,
		cert.MetadataURI,
		cert.Certifier,
		cert.Owner,
		cert.PreviousOwners,
		cert.TransferCount,
		cert.IssuedAt,
		cert.LockedUntil,
		cert.LastTransferAt,
		cert.Version,
	)
	if err != nil {
		return apperrors.NewDatabaseError("create certificate", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewSerialExistsError(cert.SerialNumber)
	}

	return nil
}

// Get retrieves a certificate by its derived address
func (r *CertificateRepository) Get(ctx context.Context, address string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE address = $1`

	cert, err := r.scanCertificate(r.db.Q(ctx).QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("certificate", address)
		}
		return nil, apperrors.NewDatabaseError("get certificate", err)
	}
	return cert, nil
}

// GetBySerial retrieves a certificate by serial number
func (r *CertificateRepository) GetBySerial(ctx context.Context, serialNumber string) (*models.Certificate, error) {
	cert, err := r.Get(ctx, keys.CertificateAddress(serialNumber))
	if err != nil {
		var catErr *apperrors.CategorizedError
		if errors.As(err, &catErr) && catErr.Code == "NOT_FOUND" {
			return nil, apperrors.NewNotFoundError("certificate", serialNumber)
		}
		return nil, err
	}
	return cert, nil
}

// Exists reports whether a certificate with the serial number exists
func (r *CertificateRepository) Exists(ctx context.Context, serialNumber string) (bool, error) {
	var exists bool
	err := r.db.Q(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM certificates WHERE address = $1)`,
		keys.CertificateAddress(serialNumber),
	).Scan(&exists)
	if err != nil {
		return false, apperrors.NewDatabaseError("check certificate exists", err)
	}
	return exists, nil
}

// ListByOwner returns the certificates currently held by an identity,
// newest first
func (r *CertificateRepository) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*models.Certificate, error) {
	query := `
		SELECT ` + certificateColumns + `
		FROM certificates
		WHERE owner = $1
		ORDER BY issued_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, keys.NormalizeIdentity(owner), limit, offset)
}

// ListByCertifier returns the certificates issued or approved by a
// certifier, newest first
func (r *CertificateRepository) ListByCertifier(ctx context.Context, certifier string, limit, offset int) ([]*models.Certificate, error) {
	query := `
		SELECT ` + certificateColumns + `
		FROM certificates
		WHERE certifier = $1
		ORDER BY issued_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, keys.NormalizeIdentity(certifier), limit, offset)
}

// CountByOwner returns how many certificates an identity currently holds
func (r *CertificateRepository) CountByOwner(ctx context.Context, owner string) (int, error) {
	var count int
	err := r.db.Q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM certificates WHERE owner = $1`,
		keys.NormalizeIdentity(owner),
	).Scan(&count)
	if err != nil {
		return 0, apperrors.NewDatabaseError("count certificates by owner", err)
	}
	return count, nil
}

// Stats aggregates the issuance counters from the certificate rows.
// Keeping them derived instead of as in-place counters on the authority
// row means unrelated issuances never contend on a shared record.
func (r *CertificateRepository) Stats(ctx context.Context) (*models.RegistryStats, error) {
	query := `
		SELECT certification_type, COUNT(*), COALESCE(SUM(transfer_count), 0)
		FROM certificates
		GROUP BY certification_type
	`

	rows, err := r.db.Q(ctx).Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseError("aggregate certificate stats", err)
	}
	defer rows.Close()

	stats := &models.RegistryStats{
		ByTier: make(map[types.CertificationType]uint64),
	}
	for rows.Next() {
		var tier types.CertificationType
		var count, transfers uint64
		if err := rows.Scan(&tier, &count, &transfers); err != nil {
			return nil, apperrors.NewDatabaseError("scan certificate stats", err)
		}
		stats.ByTier[tier] = count
		stats.TotalCertificates += count
		stats.TotalTransfers += transfers
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("aggregate certificate stats", err)
	}

	return stats, nil
}

// Update writes a certificate back with a version check
func (r *CertificateRepository) Update(ctx context.Context, cert *models.Certificate) error {
	query := `
		UPDATE certificates
		SET owner = $1, previous_owners = $2, transfer_count = $3, locked_until = $4, last_transfer_at = $5, version = version + 1
		WHERE address = $6 AND version = $7
	`

	tag, err := r.db.Q(ctx).Exec(ctx, query,
		cert.Owner,
		cert.PreviousOwners,
		cert.TransferCount,
		cert.LockedUntil,
		cert.LastTransferAt,
		cert.Address,
		cert.Version,
	)
	if err != nil {
		return apperrors.NewDatabaseError("update certificate", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("certificate %s", cert.SerialNumber))
	}

	cert.Version++
	return nil
}

func (r *CertificateRepository) list(ctx context.Context, query string, args ...any) ([]*models.Certificate, error) {
	rows, err := r.db.Q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list certificates", err)
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		cert, err := r.scanCertificate(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan certificate", err)
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list certificates", err)
	}

	return certs, nil
}

func (r *CertificateRepository) scanCertificate(row pgx.Row) (*models.Certificate, error) {
	var cert models.Certificate
	var discriminator []byte
	var lastTransferAt *time.Time

	err := row.Scan(
		&cert.Address,
		&discriminator,
		&cert.SerialNumber,
		&cert.Brand,
		&cert.Model,
		&cert.CertificationType,
		&cert.EstimatedValue,
		&cert.MetadataURI,
		&cert.Certifier,
		&cert.Owner,
		&cert.PreviousOwners,
		&cert.TransferCount,
		&cert.IssuedAt,
		&cert.LockedUntil,
		&lastTransferAt,
		&cert.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := keys.VerifyDiscriminator(discriminator, keys.TypeCertificate); err != nil {
		return nil, apperrors.NewWrongAccountTypeError(cert.Address, keys.TypeCertificate)
	}

	cert.LastTransferAt = lastTransferAt
	return &cert, nil
}
