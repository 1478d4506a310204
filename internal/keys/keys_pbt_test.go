package keys

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDeriveProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("derivation is deterministic", prop.ForAll(
		func(serial string) bool {
			return CertificateAddress(serial) == CertificateAddress(serial)
		},
		gen.AlphaString(),
	))

	properties.Property("namespace tags never collide for identical keys", prop.ForAll(
		func(serial string) bool {
			return CertificateAddress(serial) != RequestAddress(serial)
		},
		gen.AlphaString(),
	))

	properties.Property("derived addresses are valid identities", prop.ForAll(
		func(serial string) bool {
			return ValidateIdentity(CertificateAddress(serial)) == nil
		},
		gen.AnyString(),
	))

	properties.Property("distinct serials map to distinct addresses", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			return CertificateAddress(a) != CertificateAddress(b)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
