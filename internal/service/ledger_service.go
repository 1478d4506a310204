package service

import (
	"context"

	apperrors "github.com/cert-registry/internal/errors"
	"github.com/cert-registry/internal/keys"
	"github.com/cert-registry/internal/logging"
	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/types"
)

// LedgerService exposes balances and the dev-mode faucet
type LedgerService struct {
	tx         TxManager
	ledgerRepo LedgerRepository
	devFaucet  bool
}

// NewLedgerService creates a new ledger service
func NewLedgerService(tx TxManager, ledgerRepo LedgerRepository, devFaucet bool) *LedgerService {
	return &LedgerService{
		tx:         tx,
		ledgerRepo: ledgerRepo,
		devFaucet:  devFaucet,
	}
}

// FaucetEnabled reports whether dev-mode funding is available
func (s *LedgerService) FaucetEnabled() bool {
	return s.devFaucet
}

// Balance returns the account state for an identity
func (s *LedgerService) Balance(ctx context.Context, identity string) (*models.LedgerAccount, error) {
	if err := keys.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	return s.ledgerRepo.GetAccount(ctx, identity)
}

// Entries returns an identity's movement history
func (s *LedgerService) Entries(ctx context.Context, identity string, limit, offset int) ([]*models.LedgerEntry, error) {
	if err := keys.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	return s.ledgerRepo.ListEntries(ctx, identity, normalizeLimit(limit), offset)
}

// Fund credits an identity from the faucet. Dev mode only.
func (s *LedgerService) Fund(ctx context.Context, identity string, amount uint64) (*models.LedgerAccount, error) {
	if !s.devFaucet {
		return nil, apperrors.NewUnauthorizedError("faucet is disabled")
	}
	if err := keys.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
	}

	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		return s.ledgerRepo.Credit(ctx, identity, amount, types.EntryFaucet, "")
	})
	if err != nil {
		return nil, err
	}

	logging.WithFields(map[string]interface{}{
		"identity": keys.NormalizeIdentity(identity),
		"amount":   amount,
	}).Info("Faucet credit issued")

	return s.ledgerRepo.GetAccount(ctx, identity)
}
