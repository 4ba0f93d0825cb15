// Package identity authenticates control-plane callers.
//
// Every mutating operation is attributed to a Principal, and the principal
// resolved here is the caller recorded by the operation. The package resolves
// bearer credentials through the Authenticator interface, with two
// implementations:
//
//   - TokenAuthenticator: static bearer tokens matched against SHA-256
//     digests in constant time.
//   - JWTAuthenticator: HS256 JWTs whose subject claim names the principal.
//
// The authenticated principal travels in the request context via
// ContextWithPrincipal and PrincipalFromContext. Key verification on the
// data plane needs no principal and never passes through this package.
package identity
