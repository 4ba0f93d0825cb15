package record

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/vyrodovalexey/avkeyd/internal/core"
)

// Seed tags keep the three derivation domains disjoint. All other
// derivation inputs are fixed length, so plain concatenation after the
// tag is unambiguous.
const (
	projectSeed = "project"
	apiKeySeed  = "api_key"
	usageSeed   = "usage"
)

// AddressLen is the byte length of a record address.
const AddressLen = 32

// Address locates a record in the store. Addresses are derived, never
// random: the same inputs always map to the same address.
type Address [AddressLen]byte

// String returns the lowercase hex form.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Ref converts the address to its domain ref.
func (a Address) Ref() core.Ref {
	return core.Ref(a)
}

// FromRef converts a domain ref back to an address.
func FromRef(r core.Ref) Address {
	return Address(r)
}

// ProjectAddress derives the address of a project from its creating
// owner and project ID. Authority transfers do not move the record, so
// the owner in the derivation is the creator forever.
func ProjectAddress(owner core.Principal, id core.ProjectID) Address {
	buf := make([]byte, 0, len(projectSeed)+core.PrincipalLen+core.ProjectIDLen)
	buf = append(buf, projectSeed...)
	buf = append(buf, owner[:]...)
	buf = append(buf, id[:]...)
	return Address(blake2b.Sum256(buf))
}

// KeyAddress derives the address of an API key from its project and
// index.
func KeyAddress(project Address, index uint16) Address {
	buf := make([]byte, 0, len(apiKeySeed)+AddressLen+2)
	buf = append(buf, apiKeySeed...)
	buf = append(buf, project[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, index)
	return Address(blake2b.Sum256(buf))
}

// UsageAddress derives the address of a key's usage window.
func UsageAddress(key Address) Address {
	buf := make([]byte, 0, len(usageSeed)+AddressLen)
	buf = append(buf, usageSeed...)
	buf = append(buf, key[:]...)
	return Address(blake2b.Sum256(buf))
}
