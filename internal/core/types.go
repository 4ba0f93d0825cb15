package core

import (
	"encoding/hex"
	"fmt"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
)

// Principal identifies an authority or caller. Values are opaque
// 32 byte identifiers rendered as lowercase hex.
type Principal [PrincipalLen]byte

// ParsePrincipal decodes a principal from its hex form.
func ParsePrincipal(s string) (Principal, error) {
	var p Principal
	if err := decodeFixedHex(p[:], s, "principal"); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// String returns the lowercase hex form.
func (p Principal) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool {
	return p == Principal{}
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	return decodeFixedHex(p[:], string(text), "principal")
}

// ProjectID is the caller-chosen 16 byte project discriminator. Two
// projects under the same owner must use distinct IDs.
type ProjectID [ProjectIDLen]byte

// ParseProjectID decodes a project ID from its hex form.
func ParseProjectID(s string) (ProjectID, error) {
	var id ProjectID
	if err := decodeFixedHex(id[:], s, "project id"); err != nil {
		return ProjectID{}, err
	}
	return id, nil
}

// String returns the lowercase hex form.
func (id ProjectID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ProjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ProjectID) UnmarshalText(text []byte) error {
	return decodeFixedHex(id[:], string(text), "project id")
}

// Ref is a stable 32 byte record reference. Refs are derived from
// creation-time inputs and never change afterwards, so they serve as
// both storage addresses and event correlation IDs.
type Ref [RefLen]byte

// ParseRef decodes a ref from its hex form.
func ParseRef(s string) (Ref, error) {
	var r Ref
	if err := decodeFixedHex(r[:], s, "ref"); err != nil {
		return Ref{}, err
	}
	return r, nil
}

// String returns the lowercase hex form.
func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r == Ref{}
}

// MarshalText implements encoding.TextMarshaler.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Ref) UnmarshalText(text []byte) error {
	return decodeFixedHex(r[:], string(text), "ref")
}

func decodeFixedHex(dst []byte, s, what string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return WrapError(KindValidation, fmt.Errorf("decode %s: %w", what, err))
	}
	if len(b) != len(dst) {
		return NewError(KindValidation, fmt.Sprintf("%s must be %d bytes, got %d", what, len(dst), len(b)))
	}
	copy(dst, b)
	return nil
}

// Status is the lifecycle state of an API key.
type Status uint8

const (
	// StatusActive keys verify requests and may be rotated or updated.
	StatusActive Status = iota

	// StatusRevoked is terminal. Revoked keys never verify again.
	StatusRevoked

	// StatusSuspended keys reject verification but can be reactivated.
	StatusSuspended
)

// String returns the status label.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRevoked:
		return "revoked"
	case StatusSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus converts a status label back to its value.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "active":
		return StatusActive, nil
	case "revoked":
		return StatusRevoked, nil
	case "suspended":
		return StatusSuspended, nil
	default:
		return 0, NewError(KindValidation, fmt.Sprintf("unknown status %q", s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Project is the root record of the key hierarchy. The authority field
// holds the current controller; the ref stays bound to the owner that
// created the project.
type Project struct {
	// Addr is the record ref, populated at load time and never persisted.
	Addr Ref

	Authority        Principal
	ProjectID        ProjectID
	Name             string
	Description      string
	DefaultRateLimit uint32
	TotalKeys        uint16
	ActiveKeys       uint16
	CreatedAt        clock.Slot
}

// APIKey is one issued credential under a project. The secret itself is
// never stored, only its digest.
type APIKey struct {
	// Addr is the record ref, populated at load time and never persisted.
	Addr Ref

	Project             Ref
	IssuedBy            Principal
	KeyIndex            uint16
	Name                string
	KeyHash             Digest
	Scopes              []string
	Status              Status
	ExpiresAt           *clock.Slot
	RateLimit           uint32
	CreatedAt           clock.Slot
	LastVerifiedAt      *clock.Slot
	TotalVerifications  uint64
	FailedVerifications uint8
}

// Expired reports whether the key expiry has passed at the given slot.
// Keys without an expiry never expire.
func (k *APIKey) Expired(now clock.Slot) bool {
	return k.ExpiresAt != nil && now > *k.ExpiresAt
}

// HasScope reports whether the key grants the scope, either exactly or
// through the wildcard scope.
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope || s == WildcardScope {
			return true
		}
	}
	return false
}

// UsageWindow tracks request counts for one key over the sliding rate
// window. A fresh window starts on the first verification after the
// previous window aged out.
type UsageWindow struct {
	// Addr is the record ref, populated at load time and never persisted.
	Addr Ref

	APIKey       Ref
	WindowStart  clock.Slot
	RequestCount uint32
	LastUsedAt   clock.Slot
}

// Saturating arithmetic for counter fields. Counters clamp at their
// bounds instead of wrapping.
func satAdd8(v, d uint8) uint8 {
	if v > maxUint8-d {
		return maxUint8
	}
	return v + d
}

func satAdd16(v, d uint16) uint16 {
	if v > maxUint16-d {
		return maxUint16
	}
	return v + d
}

func satSub16(v, d uint16) uint16 {
	if v < d {
		return 0
	}
	return v - d
}

func satAdd32(v, d uint32) uint32 {
	if v > maxUint32-d {
		return maxUint32
	}
	return v + d
}

func satAdd64(v, d uint64) uint64 {
	if v > maxUint64-d {
		return maxUint64
	}
	return v + d
}

const (
	maxUint8  = ^uint8(0)
	maxUint16 = ^uint16(0)
	maxUint32 = ^uint32(0)
	maxUint64 = ^uint64(0)
)
