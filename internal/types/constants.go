package types

// Fee schedule in base currency units (1 unit = 1e-9 of the native coin).
const (
	FeeStandard    uint64 = 50_000_000  // 0.05
	FeePremium     uint64 = 100_000_000 // 0.1
	FeeLuxury      uint64 = 250_000_000 // 0.25
	FeeExceptional uint64 = 500_000_000 // 0.5
)

// CertifierSharePercent is the share of an escrowed fee paid to the
// certifier on approval. The remainder goes to the treasury.
const CertifierSharePercent = 60

// Ownership and capacity limits.
const (
	// MaxCertificates is the maximum number of certificates a single
	// owner may hold at once.
	MaxCertificates = 4
	// MaxCertifiers is the maximum size of the accredited certifier set.
	MaxCertifiers = 50
	// MaxPreviousOwners bounds the in-record ownership history. Older
	// history survives in the audit log.
	MaxPreviousOwners = 20
	// MaxConcurrentRequests is the per-certifier cap on unresolved
	// assigned requests.
	MaxConcurrentRequests = 10
)

// Field length limits, matching the fixed-size account layout.
const (
	MaxSerialNumberLen    = 50
	MaxBrandLen           = 30
	MaxModelLen           = 50
	MaxMetadataURILen     = 200
	MaxRejectionReasonLen = 200
	MaxDisplayNameLen     = 50
	MaxPhysicalAddressLen = 200
)
