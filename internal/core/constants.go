package core

// Length and capacity bounds for projects and keys.
const (
	// MaxProjectNameLen is the maximum project name length in bytes.
	MaxProjectNameLen = 64

	// MaxProjectDescLen is the maximum project description length in bytes.
	MaxProjectDescLen = 128

	// MaxKeyNameLen is the maximum key name length in bytes.
	MaxKeyNameLen = 64

	// MaxScopes is the maximum number of scopes per key.
	MaxScopes = 8

	// MaxScopeLen is the maximum length of a single scope in bytes.
	MaxScopeLen = 32

	// MaxKeysPerProject is the lifetime cap on keys issued per project.
	MaxKeysPerProject uint16 = 100
)

// Verification policy constants.
const (
	// RateWindowSlots is the rate limiting window length in slots,
	// roughly 24 hours at 400ms per slot.
	RateWindowSlots uint64 = 216_000

	// AutoRevokeThreshold is the failed verification count at which a
	// key is automatically revoked.
	AutoRevokeThreshold uint8 = 10

	// AutoRevokeReason is the reason string carried by auto revocation
	// notifications.
	AutoRevokeReason = "too_many_failed_verifications"

	// WildcardScope matches any required scope.
	WildcardScope = "*"

	// MaxFailedVerifications is the saturation point of the failure
	// counter.
	MaxFailedVerifications uint8 = 255
)

// Fixed byte lengths for identities and digests.
const (
	// PrincipalLen is the byte length of a principal identity.
	PrincipalLen = 32

	// ProjectIDLen is the byte length of a project identifier.
	ProjectIDLen = 16

	// DigestLen is the byte length of a key digest.
	DigestLen = 32

	// RefLen is the byte length of a record reference.
	RefLen = 32
)
