package identity

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/avkeyd/internal/core"
)

// Sentinel errors for control-plane authentication.
var (
	// ErrNoCredentials indicates that no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates that the provided credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenMalformed indicates that the token is malformed.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenExpired indicates that the token has expired.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenNotYetValid indicates that the token is not yet valid.
	ErrTokenNotYetValid = errors.New("token is not yet valid")

	// ErrInvalidSignature indicates that the token signature is invalid.
	ErrInvalidSignature = errors.New("token signature is invalid")

	// ErrInvalidIssuer indicates that the token issuer is invalid.
	ErrInvalidIssuer = errors.New("token issuer is invalid")

	// ErrInvalidAudience indicates that the token audience is invalid.
	ErrInvalidAudience = errors.New("token audience is invalid")

	// ErrInvalidSubject indicates that the token subject is not a principal.
	ErrInvalidSubject = errors.New("token subject is not a principal")

	// ErrUnsupportedAlgorithm indicates that the signing algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.New("signing algorithm is not supported")
)

// Authentication method label values.
const (
	MethodToken = "token"
	MethodJWT   = "jwt"
)

// Authenticator resolves a bearer credential to the principal it belongs to.
type Authenticator interface {
	// Authenticate validates the credential and returns its principal.
	Authenticate(ctx context.Context, credential string) (core.Principal, error)
}

// Context key type for the authenticated principal.
type principalContextKey struct{}

// ContextWithPrincipal adds an authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, p core.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (core.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(core.Principal)
	return p, ok
}
