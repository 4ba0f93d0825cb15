// Package server exposes the key management service over HTTP.
//
// The API splits into two planes. The control plane under /v1/projects
// is authenticated: every request resolves a bearer credential to the
// caller principal, which the domain checks against the project
// authority. The data plane is the single unauthenticated POST
// /v1/verify route, where the presented key digest itself is the
// credential.
//
// Routes address projects by the owner principal and project ID the
// record address derives from. The owner query parameter defaults to
// the caller, so only projects administered after an authority
// transfer need it spelled out.
//
// Domain error kinds map onto HTTP status codes in respond.go; the
// body carries the kind label and a human-readable message, never
// record contents or digests.
package server
