package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/cert-registry/internal/types"
)

func issueInput(serial string) *IssueCertificateInput {
	return &IssueCertificateInput{
		Certifier:         testCertifier,
		Owner:             testOwner,
		SerialNumber:      serial,
		Brand:             "Meridian",
		Model:             "Chronograph 38",
		CertificationType: types.CertLuxury,
		EstimatedValue:    75_000,
		MetadataURI:       "ipfs://QmExample",
	}
}

func TestIssue(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	certifierBalance := f.ledgerRepo.balances[testCertifier]

	cert, err := f.certificates.Issue(ctx, issueInput("SN-0001"))
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if cert.Owner != testOwner {
		t.Errorf("Owner = %q, want %q", cert.Owner, testOwner)
	}
	if !cert.Locked(f.clock) {
		t.Error("new certificate should start locked")
	}
	if cert.TransferCount != 0 || len(cert.PreviousOwners) != 0 {
		t.Error("new certificate should have no transfer history")
	}

	// Certifier paid the luxury fee to the treasury.
	fee := types.CertLuxury.Fee()
	if got := f.ledgerRepo.balances[testCertifier]; got != certifierBalance-fee {
		t.Errorf("certifier balance = %d, want %d", got, certifierBalance-fee)
	}
	if got := f.ledgerRepo.balances[testTreasury]; got != fee {
		t.Errorf("treasury balance = %d, want %d", got, fee)
	}

	if cert.EstimatedValue != 75_000 {
		t.Errorf("EstimatedValue = %d, want 75000", cert.EstimatedValue)
	}

	stats, _ := f.authority.GetStatistics(ctx)
	if stats.TotalCertificates != 1 {
		t.Errorf("TotalCertificates = %d, want 1", stats.TotalCertificates)
	}
	if stats.ByTier[types.CertLuxury] != 1 {
		t.Errorf("ByTier[luxury] = %d, want 1", stats.ByTier[types.CertLuxury])
	}

	if len(f.audit.events) != 1 || f.audit.events[0].EventType != types.EventIssued {
		t.Error("issuance should record one issued audit event")
	}
}

func TestIssue_EstimatedValueBound(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	// Values beyond the signed 64-bit range cannot be stored and must be
	// rejected up front rather than surfacing as a database error.
	input := issueInput("SN-0001")
	input.EstimatedValue = math.MaxInt64 + 1
	_, err := f.certificates.Issue(ctx, input)
	if got := errCode(t, err); got != "INVALID_PARAMETER" {
		t.Errorf("Issue() with oversized value code = %q, want INVALID_PARAMETER", got)
	}

	input.EstimatedValue = math.MaxInt64
	if _, err := f.certificates.Issue(ctx, input); err != nil {
		t.Fatalf("Issue() at the bound error = %v", err)
	}
}

func TestIssue_Authorization(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	input := issueInput("SN-0001")
	input.Certifier = testRecipient // not accredited
	_, err := f.certificates.Issue(ctx, input)
	if got := errCode(t, err); got != "UNAUTHORIZED_CERTIFIER" {
		t.Errorf("Issue() by non-certifier code = %q, want UNAUTHORIZED_CERTIFIER", got)
	}
}

func TestIssue_RevokedCertifier(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.authority.RemoveCertifier(ctx, testAdmin, testCertifier); err != nil {
		t.Fatal(err)
	}

	_, err := f.certificates.Issue(ctx, issueInput("SN-0001"))
	if got := errCode(t, err); got != "UNAUTHORIZED_CERTIFIER" {
		t.Errorf("Issue() by revoked certifier code = %q, want UNAUTHORIZED_CERTIFIER", got)
	}
}

func TestIssue_DuplicateSerial(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := f.certificates.Issue(ctx, issueInput("SN-0001")); err != nil {
		t.Fatal(err)
	}
	f.advance(10 * time.Minute)

	input := issueInput("SN-0001")
	input.Owner = testRecipient
	_, err := f.certificates.Issue(ctx, input)
	if got := errCode(t, err); got != "SERIAL_NUMBER_ALREADY_EXISTS" {
		t.Errorf("duplicate serial code = %q, want SERIAL_NUMBER_ALREADY_EXISTS", got)
	}
}

func TestIssue_OwnerCapAndCooldown(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	// Second issuance inside the cooldown window fails.
	if _, err := f.certificates.Issue(ctx, issueInput("SN-0001")); err != nil {
		t.Fatal(err)
	}
	_, err := f.certificates.Issue(ctx, issueInput("SN-0002"))
	if got := errCode(t, err); got != "COOLDOWN_NOT_ELAPSED" {
		t.Errorf("Issue() in cooldown code = %q, want COOLDOWN_NOT_ELAPSED", got)
	}

	// Waiting out the cooldown allows issuance up to the cap.
	for i := 2; i <= types.MaxCertificates; i++ {
		f.advance(6 * time.Minute)
		serial := issueInput("SN-000" + string(rune('0'+i)))
		if _, err := f.certificates.Issue(ctx, serial); err != nil {
			t.Fatalf("Issue() #%d error = %v", i, err)
		}
	}

	f.advance(6 * time.Minute)
	_, err = f.certificates.Issue(ctx, issueInput("SN-0099"))
	if got := errCode(t, err); got != "MAX_CERTIFICATES_REACHED" {
		t.Errorf("Issue() over cap code = %q, want MAX_CERTIFICATES_REACHED", got)
	}
}

func TestIssue_InsufficientFunds(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	f.ledgerRepo.balances[testCertifier] = 0

	_, err := f.certificates.Issue(ctx, issueInput("SN-0001"))
	if got := errCode(t, err); got != "INSUFFICIENT_FUNDS" {
		t.Errorf("Issue() without funds code = %q, want INSUFFICIENT_FUNDS", got)
	}

	// Nothing was created.
	if exists, _ := f.certRepo.Exists(ctx, "SN-0001"); exists {
		t.Error("failed issuance must not create a certificate")
	}
}

func TestTransfer(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.certificates.Issue(ctx, issueInput("SN-0001")); err != nil {
		t.Fatal(err)
	}

	// Lock in force right after issuance.
	_, err := f.certificates.Transfer(ctx, &TransferCertificateInput{From: testOwner, To: testRecipient, SerialNumber: "SN-0001"})
	if got := errCode(t, err); got != "CERTIFICATE_LOCKED" {
		t.Errorf("Transfer() while locked code = %q, want CERTIFICATE_LOCKED", got)
	}

	f.advance(11 * time.Minute)

	cert, err := f.certificates.Transfer(ctx, &TransferCertificateInput{From: testOwner, To: testRecipient, SerialNumber: "SN-0001"})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if cert.Owner != testRecipient {
		t.Errorf("Owner = %q, want %q", cert.Owner, testRecipient)
	}
	if cert.TransferCount != 1 {
		t.Errorf("TransferCount = %d, want 1", cert.TransferCount)
	}
	if len(cert.PreviousOwners) != 1 || cert.PreviousOwners[0] != testOwner {
		t.Errorf("PreviousOwners = %v, want [%s]", cert.PreviousOwners, testOwner)
	}
	if !cert.Locked(f.clock) {
		t.Error("transfer should re-arm the lock")
	}
	if cert.LastTransferAt == nil || !cert.LastTransferAt.Equal(f.clock) {
		t.Error("LastTransferAt should record the transfer instant")
	}

	// Sender/recipient counts moved; aggregate transfer counter bumped.
	sender, _ := f.activityRepo.GetByIdentity(ctx, testOwner)
	if sender.CertificateCount != 0 {
		t.Errorf("sender count = %d, want 0", sender.CertificateCount)
	}
	recipient, _ := f.activityRepo.GetByIdentity(ctx, testRecipient)
	if recipient.CertificateCount != 1 {
		t.Errorf("recipient count = %d, want 1", recipient.CertificateCount)
	}
	stats, _ := f.authority.GetStatistics(ctx)
	if stats.TotalTransfers != 1 {
		t.Errorf("TotalTransfers = %d, want 1", stats.TotalTransfers)
	}

	// Verify cache invalidated.
	if len(f.cache.invalidated) != 1 || f.cache.invalidated[0] != "SN-0001" {
		t.Errorf("invalidated = %v, want [SN-0001]", f.cache.invalidated)
	}
}

func TestTransfer_NotOwner(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.certificates.Issue(ctx, issueInput("SN-0001")); err != nil {
		t.Fatal(err)
	}
	f.advance(11 * time.Minute)

	_, err := f.certificates.Transfer(ctx, &TransferCertificateInput{From: testRecipient, To: testAdmin, SerialNumber: "SN-0001"})
	if got := errCode(t, err); got != "NOT_OWNER" {
		t.Errorf("Transfer() by non-owner code = %q, want NOT_OWNER", got)
	}
}

func TestTransfer_RecipientCooldown(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.certificates.Issue(ctx, issueInput("SN-0001")); err != nil {
		t.Fatal(err)
	}
	f.advance(11 * time.Minute)

	// Recipient acts, entering cooldown.
	input := issueInput("SN-0002")
	input.Owner = testRecipient
	if _, err := f.certificates.Issue(ctx, input); err != nil {
		t.Fatal(err)
	}
	f.advance(time.Minute)

	_, err := f.certificates.Transfer(ctx, &TransferCertificateInput{From: testOwner, To: testRecipient, SerialNumber: "SN-0001"})
	if got := errCode(t, err); got != "COOLDOWN_NOT_ELAPSED" {
		t.Errorf("Transfer() to cooling-down recipient code = %q, want COOLDOWN_NOT_ELAPSED", got)
	}
}

func TestTransfer_SelfTransfer(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	_, err := f.certificates.Transfer(ctx, &TransferCertificateInput{From: testOwner, To: testOwner, SerialNumber: "SN-0001"})
	if got := errCode(t, err); got != "INVALID_PARAMETER" {
		t.Errorf("self transfer code = %q, want INVALID_PARAMETER", got)
	}
}

func TestVerify(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.certificates.Issue(ctx, issueInput("SN-0001")); err != nil {
		t.Fatal(err)
	}

	out, err := f.certificates.Verify(ctx, "SN-0001")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !out.IsLocked {
		t.Error("IsLocked should be true right after issuance")
	}
	if out.TotalCertificatesIssued != 1 {
		t.Errorf("TotalCertificatesIssued = %d, want 1", out.TotalCertificatesIssued)
	}

	// Second call is served from the cache.
	if _, ok := f.cache.entries["SN-0001"]; !ok {
		t.Error("Verify() should populate the cache")
	}
	if _, err := f.certificates.Verify(ctx, "SN-0001"); err != nil {
		t.Fatalf("cached Verify() error = %v", err)
	}

	f.advance(11 * time.Minute)
	out, err = f.certificates.Verify(ctx, "SN-0001")
	if err != nil {
		t.Fatal(err)
	}
	if out.IsLocked {
		t.Error("IsLocked should be false once the lock elapses")
	}
}

func TestVerify_Unknown(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	_, err := f.certificates.Verify(ctx, "SN-MISSING")
	if got := errCode(t, err); got != "NOT_FOUND" {
		t.Errorf("Verify() unknown serial code = %q, want NOT_FOUND", got)
	}
}

func TestProvenanceCapStopsAppending(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	if err := f.bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.certificates.Issue(ctx, issueInput("SN-0001")); err != nil {
		t.Fatal(err)
	}

	// Ping-pong transfers past the provenance cap. Cooldown and lock are
	// waited out between hops.
	parties := [2]string{testOwner, testRecipient}
	for i := 0; i < types.MaxPreviousOwners+5; i++ {
		f.advance(11 * time.Minute)
		from, to := parties[i%2], parties[(i+1)%2]
		if _, err := f.certificates.Transfer(ctx, &TransferCertificateInput{From: from, To: to, SerialNumber: "SN-0001"}); err != nil {
			t.Fatalf("Transfer() hop %d error = %v", i, err)
		}
	}

	cert, err := f.certRepo.GetBySerial(ctx, "SN-0001")
	if err != nil {
		t.Fatal(err)
	}
	if len(cert.PreviousOwners) != types.MaxPreviousOwners {
		t.Errorf("PreviousOwners length = %d, want capped at %d", len(cert.PreviousOwners), types.MaxPreviousOwners)
	}
	if cert.TransferCount != uint64(types.MaxPreviousOwners+5) {
		t.Errorf("TransferCount = %d, want %d (counter keeps going)", cert.TransferCount, types.MaxPreviousOwners+5)
	}
}
