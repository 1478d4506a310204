package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/cert-registry/internal/errors"
	"github.com/cert-registry/internal/keys"
	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/types"
)

// LedgerRepository persists balances and their append-only entry log.
// Accounts are keyed by identity or by a request's escrow address and
// are created lazily with a zero balance. Movements must run inside a
// transaction so both legs and their entries land together.
type LedgerRepository struct {
	db *PostgresDB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *PostgresDB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetAccount returns an account, or a zero-balance account if the
// address has never been funded
func (r *LedgerRepository) GetAccount(ctx context.Context, address string) (*models.LedgerAccount, error) {
	address = keys.NormalizeIdentity(address)

	query := `
		SELECT address, balance, created_at, updated_at, version
		FROM ledger_accounts
		WHERE address = $1
	`

	var account models.LedgerAccount
	err := r.db.Q(ctx).QueryRow(ctx, query, address).Scan(
		&account.Address,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			now := time.Now()
			return &models.LedgerAccount{Address: address, CreatedAt: now, UpdatedAt: now}, nil
		}
		return nil, apperrors.NewDatabaseError("get ledger account", err)
	}

	return &account, nil
}

// Credit adds funds to an account, creating it if needed, and records
// the entry
func (r *LedgerRepository) Credit(ctx context.Context, address string, amount uint64, kind types.LedgerEntryKind, reference string) error {
	address = keys.NormalizeIdentity(address)
	now := time.Now()

	query := `
		INSERT INTO ledger_accounts (address, balance, created_at, updated_at, version)
		VALUES ($1, $2, $3, $3, 1)
		ON CONFLICT (address) DO UPDATE
		SET balance = ledger_accounts.balance + EXCLUDED.balance,
		    updated_at = EXCLUDED.updated_at,
		    version = ledger_accounts.version + 1
	`

	if _, err := r.db.Q(ctx).Exec(ctx, query, address, amount, now); err != nil {
		return apperrors.NewDatabaseError("credit ledger account", err)
	}

	return r.appendEntry(ctx, address, kind, int64(amount), reference, now) // #nosec G115 - amounts fit in int64
}

// Debit removes funds from an account and records the entry. Returns an
// insufficient-funds error when the balance cannot cover the amount.
func (r *LedgerRepository) Debit(ctx context.Context, address string, amount uint64, kind types.LedgerEntryKind, reference string) error {
	address = keys.NormalizeIdentity(address)
	now := time.Now()

	query := `
		UPDATE ledger_accounts
		SET balance = balance - $2, updated_at = $3, version = version + 1
		WHERE address = $1 AND balance >= $2
	`

	tag, err := r.db.Q(ctx).Exec(ctx, query, address, amount, now)
	if err != nil {
		return apperrors.NewDatabaseError("debit ledger account", err)
	}
	if tag.RowsAffected() == 0 {
		account, err := r.GetAccount(ctx, address)
		if err != nil {
			return err
		}
		return apperrors.NewInsufficientFundsError(address, amount, account.Balance)
	}

	return r.appendEntry(ctx, address, kind, -int64(amount), reference, now) // #nosec G115 - amounts fit in int64
}

// Transfer moves funds between two accounts atomically. Callers must
// already be inside InTx.
func (r *LedgerRepository) Transfer(ctx context.Context, from, to string, amount uint64, kind types.LedgerEntryKind, reference string) error {
	if err := r.Debit(ctx, from, amount, kind, reference); err != nil {
		return err
	}
	return r.Credit(ctx, to, amount, kind, reference)
}

// ListEntries returns an account's entries, newest first
func (r *LedgerRepository) ListEntries(ctx context.Context, address string, limit, offset int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, account, kind, amount, reference, created_at
		FROM ledger_entries
		WHERE account = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Q(ctx).Query(ctx, query, keys.NormalizeIdentity(address), limit, offset)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list ledger entries", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.Account, &entry.Kind, &entry.Amount, &entry.Reference, &entry.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan ledger entry", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list ledger entries", err)
	}

	return entries, nil
}

func (r *LedgerRepository) appendEntry(ctx context.Context, account string, kind types.LedgerEntryKind, amount int64, reference string, at time.Time) error {
	query := `
		INSERT INTO ledger_entries (id, account, kind, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Q(ctx).Exec(ctx, query,
		uuid.New().String(),
		account,
		kind,
		amount,
		reference,
		at,
	)
	if err != nil {
		return apperrors.NewDatabaseError("append ledger entry", err)
	}
	return nil
}
