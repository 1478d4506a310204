package storage

import (
	"testing"

	"github.com/cert-registry/internal/config"
	"github.com/cert-registry/internal/keys"
	"github.com/cert-registry/internal/models"
)

func testPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "cert_registry_test",
		User:           "registry",
		Password:       "registry",
		MaxConnections: 10,
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestPostgresDB_Ping(t *testing.T) {
	db := testPostgres(t)
	ctx := testContext(t)

	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestAuthorityRepository_RoundTrip(t *testing.T) {
	db := testPostgres(t)
	repo := NewAuthorityRepository(db)
	ctx := testContext(t)

	admin := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	authority := &models.Authority{
		Address:    keys.AuthorityAddress(),
		Admin:      admin,
		Treasury:   "0xcccccccccccccccccccccccccccccccccccccccc",
		Certifiers: []string{},
	}

	if err := repo.Create(ctx, authority); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, authority.Address)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Admin != admin {
		t.Errorf("Admin = %q, want %q", got.Admin, admin)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}

	got.Certifiers = append(got.Certifiers, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// A second update with the stale version must lose.
	stale := *got
	stale.Version = 1
	if err := repo.Update(ctx, &stale); err == nil {
		t.Error("Update() with stale version should fail")
	}
}
