package service

import (
	"context"
	"testing"
)

func TestFund(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	account, err := f.ledger.Fund(ctx, testOwner, 500)
	if err != nil {
		t.Fatalf("Fund() error = %v", err)
	}
	if account.Balance != 500 {
		t.Errorf("Balance = %d, want 500", account.Balance)
	}

	_, err = f.ledger.Fund(ctx, testOwner, 0)
	if got := errCode(t, err); got != "INVALID_PARAMETER" {
		t.Errorf("Fund() with zero amount code = %q, want INVALID_PARAMETER", got)
	}
	if _, err := f.ledger.Fund(ctx, "not-an-identity", 10); err == nil {
		t.Error("Fund() with malformed identity should fail")
	}
}

func TestFund_Disabled(t *testing.T) {
	f := newTestFixture()
	f.ledger = NewLedgerService(f.tx, f.ledgerRepo, false)

	_, err := f.ledger.Fund(context.Background(), testOwner, 500)
	if got := errCode(t, err); got != "UNAUTHORIZED" {
		t.Errorf("Fund() while disabled code = %q, want UNAUTHORIZED", got)
	}
}

func TestBalance_UnknownAccount(t *testing.T) {
	f := newTestFixture()

	account, err := f.ledger.Balance(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if account.Balance != 0 {
		t.Errorf("Balance = %d, want 0 for untouched account", account.Balance)
	}
}
