package core

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Digest is the 32 byte hash of an API key secret. Plaintext secrets
// exist only in transit; records and events carry digests.
type Digest [DigestLen]byte

// HashSecret derives the stored digest from a plaintext secret.
func HashSecret(secret []byte) Digest {
	return sha256.Sum256(secret)
}

// ParseDigest decodes a digest from its hex form.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if err := decodeFixedHex(d[:], s, "digest"); err != nil {
		return Digest{}, err
	}
	return d, nil
}

// Equal compares two digests in constant time. Verification must not
// leak how many bytes matched.
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

// String returns the lowercase hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	return decodeFixedHex(d[:], string(text), "digest")
}
