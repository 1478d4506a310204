// Package keys provides deterministic storage-address derivation and
// account discriminators for the certification registry.
//
// Every record lives at an address derived from a namespace tag plus the
// record's semantic key bytes. The same inputs always produce the same
// address, and two different tags can never collide even when the key
// bytes are identical, because every component is length-prefixed before
// hashing. Tags are versioned when a record layout changes so that
// stale-format rows are never misread.
package keys

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cert-registry/internal/types"
)

// Namespace tags for the five address families.
const (
	TagAuthority        = "auth_v5"
	TagCertificate      = "certificate"
	TagCertifierProfile = "certifier_profile"
	TagUserActivity     = "user_activity"
	TagRequest          = "request"
)

// DiscriminatorLen is the size of the type tag prefixed to stored records.
const DiscriminatorLen = 8

// Record type names used to compute discriminators.
const (
	TypeAuthority        = "Authority"
	TypeCertificate      = "Certificate"
	TypeCertifierProfile = "CertifierProfile"
	TypeUserActivity     = "UserActivity"
	TypeRequest          = "CertificationRequest"
)

// Identity format: 0x followed by 40 hexadecimal characters.
var identityRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidateIdentity validates an identity string format.
func ValidateIdentity(identity string) error {
	if !identityRegex.MatchString(identity) {
		return &types.ServiceError{
			Code:    "INVALID_IDENTITY",
			Message: fmt.Sprintf("invalid identity format: %s (must be 0x followed by 40 hexadecimal characters)", identity),
			Details: map[string]any{
				"identity": identity,
				"format":   "0x[a-fA-F0-9]{40}",
			},
		}
	}
	return nil
}

// NormalizeIdentity lowercases an identity for storage and comparison.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(identity)
}

// Derive computes the storage address for a namespace tag and key bytes.
// Each component is length-prefixed, so ("ab", "c") and ("a", "bc") hash
// differently.
func Derive(tag string, seeds ...[]byte) string {
	var buf []byte
	buf = appendComponent(buf, []byte(tag))
	for _, seed := range seeds {
		buf = appendComponent(buf, seed)
	}
	hash := crypto.Keccak256(buf)
	return strings.ToLower(common.BytesToAddress(hash[12:]).Hex())
}

func appendComponent(buf, component []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(component)))
	buf = append(buf, lenBuf[:n]...)
	return append(buf, component...)
}

// AuthorityAddress returns the address of the Authority singleton.
func AuthorityAddress() string {
	return Derive(TagAuthority)
}

// CertificateAddress returns the address of the certificate record for a
// serial number.
func CertificateAddress(serialNumber string) string {
	return Derive(TagCertificate, []byte(serialNumber))
}

// CertifierProfileAddress returns the address of a certifier's profile.
func CertifierProfileAddress(certifier string) string {
	return Derive(TagCertifierProfile, []byte(NormalizeIdentity(certifier)))
}

// UserActivityAddress returns the address of an owner's activity record.
func UserActivityAddress(owner string) string {
	return Derive(TagUserActivity, []byte(NormalizeIdentity(owner)))
}

// RequestAddress returns the address of the certification request for a
// serial number. The request's escrow account lives at the same address.
func RequestAddress(serialNumber string) string {
	return Derive(TagRequest, []byte(serialNumber))
}

// Discriminator computes the fixed-width type tag for a record type name.
// Reading a record whose stored discriminator does not match the expected
// one is rejected instead of silently misinterpreted.
func Discriminator(typeName string) []byte {
	hash := crypto.Keccak256([]byte("account:" + typeName))
	return hash[:DiscriminatorLen]
}

// VerifyDiscriminator checks a stored discriminator against the expected
// record type name.
func VerifyDiscriminator(stored []byte, typeName string) error {
	if !bytes.Equal(stored, Discriminator(typeName)) {
		return fmt.Errorf("record is not a %s", typeName)
	}
	return nil
}
