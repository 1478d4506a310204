package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cert-registry/internal/config"
	apperrors "github.com/cert-registry/internal/errors"
	"github.com/cert-registry/internal/keys"
	"github.com/cert-registry/internal/models"
	"github.com/cert-registry/internal/storage"
	"github.com/cert-registry/internal/types"
)

// Mock repositories for testing. In-memory maps keyed the same way the
// real repositories key their tables.

type mockTx struct{}

func (m *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockAuthorityRepo struct {
	authority *models.Authority
}

func (m *mockAuthorityRepo) Create(ctx context.Context, authority *models.Authority) error {
	if m.authority != nil {
		return apperrors.NewAlreadyInitializedError()
	}
	authority.Version = 1
	copied := *authority
	m.authority = &copied
	return nil
}

func (m *mockAuthorityRepo) Get(ctx context.Context, address string) (*models.Authority, error) {
	if m.authority == nil || m.authority.Address != address {
		return nil, apperrors.NewNotFoundError("authority", address)
	}
	copied := *m.authority
	copied.Certifiers = append([]string(nil), m.authority.Certifiers...)
	return &copied, nil
}

func (m *mockAuthorityRepo) Update(ctx context.Context, authority *models.Authority) error {
	if m.authority == nil || m.authority.Version != authority.Version {
		return apperrors.NewConflictError("authority")
	}
	authority.Version++
	copied := *authority
	copied.Certifiers = append([]string(nil), authority.Certifiers...)
	m.authority = &copied
	return nil
}

type mockCertifierRepo struct {
	profiles map[string]*models.CertifierProfile
}

func newMockCertifierRepo() *mockCertifierRepo {
	return &mockCertifierRepo{profiles: make(map[string]*models.CertifierProfile)}
}

func (m *mockCertifierRepo) Create(ctx context.Context, profile *models.CertifierProfile) error {
	if _, ok := m.profiles[profile.Address]; ok {
		return apperrors.NewCertifierExistsError(profile.Certifier)
	}
	profile.Version = 1
	copied := *profile
	m.profiles[profile.Address] = &copied
	return nil
}

func (m *mockCertifierRepo) GetByCertifier(ctx context.Context, certifier string) (*models.CertifierProfile, error) {
	address := keys.CertifierProfileAddress(certifier)
	if p, ok := m.profiles[address]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("certifier profile", address)
}

func (m *mockCertifierRepo) List(ctx context.Context) ([]*models.CertifierProfile, error) {
	var result []*models.CertifierProfile
	for _, p := range m.profiles {
		copied := *p
		result = append(result, &copied)
	}
	return result, nil
}

func (m *mockCertifierRepo) Update(ctx context.Context, profile *models.CertifierProfile) error {
	existing, ok := m.profiles[profile.Address]
	if !ok || existing.Version != profile.Version {
		return apperrors.NewConflictError("certifier profile")
	}
	profile.Version++
	copied := *profile
	m.profiles[profile.Address] = &copied
	return nil
}

type mockCertificateRepo struct {
	certs map[string]*models.Certificate
}

func newMockCertificateRepo() *mockCertificateRepo {
	return &mockCertificateRepo{certs: make(map[string]*models.Certificate)}
}

func (m *mockCertificateRepo) Create(ctx context.Context, cert *models.Certificate) error {
	if _, ok := m.certs[cert.Address]; ok {
		return apperrors.NewSerialExistsError(cert.SerialNumber)
	}
	cert.Version = 1
	copied := *cert
	m.certs[cert.Address] = &copied
	return nil
}

func (m *mockCertificateRepo) GetBySerial(ctx context.Context, serialNumber string) (*models.Certificate, error) {
	if c, ok := m.certs[keys.CertificateAddress(serialNumber)]; ok {
		copied := *c
		copied.PreviousOwners = append([]string(nil), c.PreviousOwners...)
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("certificate", serialNumber)
}

func (m *mockCertificateRepo) Exists(ctx context.Context, serialNumber string) (bool, error) {
	_, ok := m.certs[keys.CertificateAddress(serialNumber)]
	return ok, nil
}

func (m *mockCertificateRepo) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*models.Certificate, error) {
	var result []*models.Certificate
	for _, c := range m.certs {
		if c.Owner == owner {
			copied := *c
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockCertificateRepo) ListByCertifier(ctx context.Context, certifier string, limit, offset int) ([]*models.Certificate, error) {
	var result []*models.Certificate
	for _, c := range m.certs {
		if c.Certifier == certifier {
			copied := *c
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockCertificateRepo) Stats(ctx context.Context) (*models.RegistryStats, error) {
	stats := &models.RegistryStats{ByTier: make(map[types.CertificationType]uint64)}
	for _, c := range m.certs {
		stats.ByTier[c.CertificationType]++
		stats.TotalCertificates++
		stats.TotalTransfers += c.TransferCount
	}
	return stats, nil
}

func (m *mockCertificateRepo) Update(ctx context.Context, cert *models.Certificate) error {
	existing, ok := m.certs[cert.Address]
	if !ok || existing.Version != cert.Version {
		return apperrors.NewConflictError("certificate")
	}
	cert.Version++
	copied := *cert
	copied.PreviousOwners = append([]string(nil), cert.PreviousOwners...)
	m.certs[cert.Address] = &copied
	return nil
}

type mockActivityRepo struct {
	records map[string]*models.UserActivity
}

func newMockActivityRepo() *mockActivityRepo {
	return &mockActivityRepo{records: make(map[string]*models.UserActivity)}
}

func (m *mockActivityRepo) GetOrCreate(ctx context.Context, identity string) (*models.UserActivity, error) {
	identity = keys.NormalizeIdentity(identity)
	address := keys.UserActivityAddress(identity)
	if a, ok := m.records[address]; ok {
		copied := *a
		return &copied, nil
	}
	activity := &models.UserActivity{
		Address:   address,
		User:      identity,
		CreatedAt: time.Now(),
		Version:   1,
	}
	copied := *activity
	m.records[address] = &copied
	return activity, nil
}

func (m *mockActivityRepo) GetByIdentity(ctx context.Context, identity string) (*models.UserActivity, error) {
	address := keys.UserActivityAddress(identity)
	if a, ok := m.records[address]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("user activity", address)
}

func (m *mockActivityRepo) Update(ctx context.Context, activity *models.UserActivity) error {
	existing, ok := m.records[activity.Address]
	if !ok || existing.Version != activity.Version {
		return apperrors.NewConflictError("user activity")
	}
	activity.Version++
	copied := *activity
	m.records[activity.Address] = &copied
	return nil
}

type mockRequestRepo struct {
	requests map[string]*models.CertificationRequest
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{requests: make(map[string]*models.CertificationRequest)}
}

func (m *mockRequestRepo) Create(ctx context.Context, request *models.CertificationRequest) error {
	if existing, ok := m.requests[request.Address]; ok {
		if existing.Status != types.StatusRejected {
			return apperrors.NewRequestExistsError(request.SerialNumber)
		}
		request.Version = existing.Version + 1
	} else {
		request.Version = 1
	}
	copied := *request
	m.requests[request.Address] = &copied
	return nil
}

func (m *mockRequestRepo) GetBySerial(ctx context.Context, serialNumber string) (*models.CertificationRequest, error) {
	if r, ok := m.requests[keys.RequestAddress(serialNumber)]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("certification request", serialNumber)
}

func (m *mockRequestRepo) ListByCertifier(ctx context.Context, certifier string, status types.RequestStatus, limit, offset int) ([]*models.CertificationRequest, error) {
	var result []*models.CertificationRequest
	for _, r := range m.requests {
		if r.AssignedCertifier == certifier && (status == "" || r.Status == status) {
			copied := *r
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockRequestRepo) ListByRequester(ctx context.Context, requester string, limit, offset int) ([]*models.CertificationRequest, error) {
	var result []*models.CertificationRequest
	for _, r := range m.requests {
		if r.Requester == requester {
			copied := *r
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockRequestRepo) Update(ctx context.Context, request *models.CertificationRequest) error {
	existing, ok := m.requests[request.Address]
	if !ok || existing.Version != request.Version {
		return apperrors.NewConflictError("certification request")
	}
	request.Version++
	copied := *request
	m.requests[request.Address] = &copied
	return nil
}

type mockLedgerRepo struct {
	balances map[string]uint64
	entries  []*models.LedgerEntry
}

func newMockLedgerRepo() *mockLedgerRepo {
	return &mockLedgerRepo{balances: make(map[string]uint64)}
}

func (m *mockLedgerRepo) GetAccount(ctx context.Context, address string) (*models.LedgerAccount, error) {
	address = keys.NormalizeIdentity(address)
	return &models.LedgerAccount{Address: address, Balance: m.balances[address]}, nil
}

func (m *mockLedgerRepo) Credit(ctx context.Context, address string, amount uint64, kind types.LedgerEntryKind, reference string) error {
	address = keys.NormalizeIdentity(address)
	m.balances[address] += amount
	m.entries = append(m.entries, &models.LedgerEntry{
		ID:        fmt.Sprintf("entry-%d", len(m.entries)+1),
		Account:   address,
		Kind:      kind,
		Amount:    int64(amount),
		Reference: reference,
	})
	return nil
}

func (m *mockLedgerRepo) Transfer(ctx context.Context, from, to string, amount uint64, kind types.LedgerEntryKind, reference string) error {
	from = keys.NormalizeIdentity(from)
	if m.balances[from] < amount {
		return apperrors.NewInsufficientFundsError(from, amount, m.balances[from])
	}
	m.balances[from] -= amount
	return m.Credit(ctx, to, amount, kind, reference)
}

func (m *mockLedgerRepo) ListEntries(ctx context.Context, address string, limit, offset int) ([]*models.LedgerEntry, error) {
	address = keys.NormalizeIdentity(address)
	var result []*models.LedgerEntry
	for _, e := range m.entries {
		if e.Account == address {
			result = append(result, e)
		}
	}
	return result, nil
}

// total returns the sum of all balances, for conservation checks
func (m *mockLedgerRepo) total() uint64 {
	var sum uint64
	for _, b := range m.balances {
		sum += b
	}
	return sum
}

type mockAudit struct {
	events []*models.CertificateEvent
}

func (m *mockAudit) Record(ctx context.Context, event *models.CertificateEvent) error {
	m.events = append(m.events, event)
	return nil
}

func (m *mockAudit) History(ctx context.Context, serialNumber string, limit int) ([]*models.CertificateEvent, error) {
	var result []*models.CertificateEvent
	for _, e := range m.events {
		if e.SerialNumber == serialNumber {
			result = append(result, e)
		}
	}
	return result, nil
}

type mockCache struct {
	entries     map[string]*models.Certificate
	invalidated []string
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*models.Certificate)}
}

func (m *mockCache) Get(ctx context.Context, serialNumber string) (*models.Certificate, error) {
	if c, ok := m.entries[serialNumber]; ok {
		return c, nil
	}
	return nil, storage.ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, cert *models.Certificate) error {
	m.entries[cert.SerialNumber] = cert
	return nil
}

func (m *mockCache) Invalidate(ctx context.Context, serialNumber string) error {
	delete(m.entries, serialNumber)
	m.invalidated = append(m.invalidated, serialNumber)
	return nil
}

// testFixture wires every service against shared in-memory state
type testFixture struct {
	tx            *mockTx
	authorityRepo *mockAuthorityRepo
	certifierRepo *mockCertifierRepo
	certRepo      *mockCertificateRepo
	activityRepo  *mockActivityRepo
	requestRepo   *mockRequestRepo
	ledgerRepo    *mockLedgerRepo
	audit         *mockAudit
	cache         *mockCache

	authority    *AuthorityService
	certificates *CertificateService
	requests     *RequestService
	ledger       *LedgerService

	clock time.Time
}

const (
	testAdmin     = "0xadadadadadadadadadadadadadadadadadadadad"
	testTreasury  = "0xfefefefefefefefefefefefefefefefefefefefe"
	testCertifier = "0x1111111111111111111111111111111111111111"
	testOwner     = "0x2222222222222222222222222222222222222222"
	testRecipient = "0x3333333333333333333333333333333333333333"
)

func testRegistryConfig() config.RegistryConfig {
	return config.RegistryConfig{
		LockPeriod:     10 * time.Minute,
		CooldownPeriod: 5 * time.Minute,
	}
}

func newTestFixture() *testFixture {
	f := &testFixture{
		tx:            &mockTx{},
		authorityRepo: &mockAuthorityRepo{},
		certifierRepo: newMockCertifierRepo(),
		certRepo:      newMockCertificateRepo(),
		activityRepo:  newMockActivityRepo(),
		requestRepo:   newMockRequestRepo(),
		ledgerRepo:    newMockLedgerRepo(),
		audit:         &mockAudit{},
		cache:         newMockCache(),
		clock:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	registry := testRegistryConfig()
	f.authority = NewAuthorityService(f.tx, f.authorityRepo, f.certifierRepo, f.certRepo)
	f.certificates = NewCertificateService(f.tx, f.authorityRepo, f.certifierRepo, f.certRepo, f.activityRepo, f.ledgerRepo, f.audit, f.cache, registry)
	f.requests = NewRequestService(f.tx, f.authorityRepo, f.certifierRepo, f.certRepo, f.activityRepo, f.requestRepo, f.ledgerRepo, f.audit, registry)
	f.ledger = NewLedgerService(f.tx, f.ledgerRepo, true)

	f.certificates.now = func() time.Time { return f.clock }
	f.requests.now = func() time.Time { return f.clock }

	return f
}

// advance moves the fixture clock forward
func (f *testFixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// bootstrap initializes the authority, accredits the test certifier and
// funds the usual identities
func (f *testFixture) bootstrap(ctx context.Context) error {
	if _, err := f.authority.Initialize(ctx, testAdmin, testTreasury); err != nil {
		return err
	}
	if _, err := f.authority.AddCertifier(ctx, testAdmin, testCertifier, "Geneva Horology Institute", "12 Rue du Rhone, Geneva"); err != nil {
		return err
	}
	for _, identity := range []string{testCertifier, testOwner, testRecipient} {
		f.ledgerRepo.balances[identity] = 10_000_000_000
	}
	return nil
}
