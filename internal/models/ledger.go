package models

import (
	"time"

	"github.com/cert-registry/internal/types"
)

// LedgerAccount holds the spendable balance for an identity or for a
// request's escrow address. Balances never go negative; the schema
// enforces it and the service checks it first for a cleaner error.
type LedgerAccount struct {
	Address   string    `json:"address" db:"address"`
	Balance   uint64    `json:"balance" db:"balance"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
	Version   int64     `json:"-" db:"version"`
}

// LedgerEntry is one leg of a balance movement. Entries are append-only;
// Reference carries the related certificate or request address.
type LedgerEntry struct {
	ID        string                `json:"id" db:"id"`
	Account   string                `json:"account" db:"account"`
	Kind      types.LedgerEntryKind `json:"kind" db:"kind"`
	Amount    int64                 `json:"amount" db:"amount"`
	Reference string                `json:"reference,omitempty" db:"reference"`
	CreatedAt time.Time             `json:"createdAt" db:"created_at"`
}
