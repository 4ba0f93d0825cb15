package core

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. Hosts map kinds to transport
// status codes and metrics labels without inspecting sentinel errors.
type Kind int

const (
	// KindUnknown is the zero kind for errors that did not originate here.
	KindUnknown Kind = iota

	// KindUnauthorized covers authority checks on control operations.
	KindUnauthorized

	// KindValidation covers field bounds and format checks.
	KindValidation

	// KindCapacity covers per-project quota exhaustion.
	KindCapacity

	// KindSequence covers key index continuity checks.
	KindSequence

	// KindTemporal covers expiry checks against the current slot.
	KindTemporal

	// KindState covers lifecycle status preconditions.
	KindState

	// KindAuthFailure covers failed secret verification.
	KindAuthFailure

	// KindScopeDenied covers scope authorization failures.
	KindScopeDenied

	// KindRateLimited covers usage window exhaustion.
	KindRateLimited

	// KindOwnership covers parent/child record linkage checks.
	KindOwnership
)

// String returns the kind label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindCapacity:
		return "capacity"
	case KindSequence:
		return "sequence"
	case KindTemporal:
		return "temporal"
	case KindState:
		return "state"
	case KindAuthFailure:
		return "auth_failure"
	case KindScopeDenied:
		return "scope_denied"
	case KindRateLimited:
		return "rate_limited"
	case KindOwnership:
		return "ownership"
	default:
		return "unknown"
	}
}

// Sentinel errors for domain operations.
var (
	// ErrUnauthorized indicates the caller is not the project authority.
	ErrUnauthorized = errors.New("caller is not the project authority")

	// ErrNameTooLong indicates a name exceeds its length bound.
	ErrNameTooLong = errors.New("name too long")

	// ErrDescriptionTooLong indicates a description exceeds its length bound.
	ErrDescriptionTooLong = errors.New("description too long")

	// ErrTooManyScopes indicates a scope list exceeds MaxScopes entries.
	ErrTooManyScopes = errors.New("too many scopes")

	// ErrScopeTooLong indicates a scope string exceeds MaxScopeLen characters.
	ErrScopeTooLong = errors.New("scope too long")

	// ErrInvalidRateLimit indicates a rate limit of zero.
	ErrInvalidRateLimit = errors.New("rate limit must be greater than zero")

	// ErrMaxKeysReached indicates the project key quota is exhausted.
	ErrMaxKeysReached = errors.New("project reached maximum number of keys")

	// ErrInvalidKeyIndex indicates an issue request out of sequence.
	ErrInvalidKeyIndex = errors.New("key index does not match project key count")

	// ErrExpiryInPast indicates an expiry slot at or before the current slot.
	ErrExpiryInPast = errors.New("expiry must be in the future")

	// ErrKeyNotActive indicates an operation requiring an active key.
	ErrKeyNotActive = errors.New("api key is not active")

	// ErrKeyNotSuspended indicates a reactivation of a key that is not suspended.
	ErrKeyNotSuspended = errors.New("api key is not suspended")

	// ErrKeyExpired indicates the key expiry slot has passed.
	ErrKeyExpired = errors.New("api key has expired")

	// ErrInvalidKey indicates the presented secret does not match.
	ErrInvalidKey = errors.New("invalid api key")

	// ErrInsufficientScope indicates the key does not hold the required scope.
	ErrInsufficientScope = errors.New("insufficient scope")

	// ErrRateLimitExceeded indicates the usage window is exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrOwnershipMismatch indicates a record does not belong to its
	// claimed parent.
	ErrOwnershipMismatch = errors.New("record ownership mismatch")
)

// Error is a classified domain failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches other domain errors by kind so callers can test
// classification without naming a sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a domain error with a message and no sentinel.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError classifies an existing error.
func WrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the classification from an error chain. Errors that
// did not originate in this package report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
