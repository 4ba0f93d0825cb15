package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// StaticToken maps one bearer token to a principal.
type StaticToken struct {
	// Principal is the hex-encoded principal the token authenticates as.
	Principal string `yaml:"principal" json:"principal"`

	// Token is the raw token value. Secret references are resolved before
	// the authenticator is built.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// SHA256 is the hex-encoded SHA-256 digest of the token. Use it to keep
	// raw token material out of configuration files.
	SHA256 string `yaml:"sha256,omitempty" json:"sha256,omitempty"`
}

// tokenEntry is a prepared token table entry.
type tokenEntry struct {
	digest    []byte
	principal core.Principal
}

// TokenAuthenticator authenticates bearer tokens against a static table of
// SHA-256 digests.
type TokenAuthenticator struct {
	entries []tokenEntry
	logger  observability.Logger
	metrics *Metrics
}

// TokenOption is a functional option for the token authenticator.
type TokenOption func(*TokenAuthenticator)

// WithTokenLogger sets the logger for the token authenticator.
func WithTokenLogger(logger observability.Logger) TokenOption {
	return func(a *TokenAuthenticator) {
		a.logger = logger
	}
}

// WithTokenMetrics sets the metrics for the token authenticator.
func WithTokenMetrics(metrics *Metrics) TokenOption {
	return func(a *TokenAuthenticator) {
		a.metrics = metrics
	}
}

// NewTokenAuthenticator creates a token authenticator from static entries.
func NewTokenAuthenticator(tokens []StaticToken, opts ...TokenOption) (*TokenAuthenticator, error) {
	if len(tokens) == 0 {
		return nil, errors.New("at least one token is required")
	}

	a := &TokenAuthenticator{
		entries: make([]tokenEntry, 0, len(tokens)),
		logger:  observability.NopLogger(),
	}

	for i, token := range tokens {
		entry, err := prepareToken(token)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		a.entries = append(a.entries, entry)
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// prepareToken validates one static entry and reduces it to a digest.
func prepareToken(token StaticToken) (tokenEntry, error) {
	principal, err := core.ParsePrincipal(token.Principal)
	if err != nil {
		return tokenEntry{}, fmt.Errorf("invalid principal: %w", err)
	}

	switch {
	case token.Token != "" && token.SHA256 != "":
		return tokenEntry{}, errors.New("token and sha256 are mutually exclusive")
	case token.Token != "":
		sum := sha256.Sum256([]byte(token.Token))
		return tokenEntry{digest: hexDigest(sum[:]), principal: principal}, nil
	case token.SHA256 != "":
		raw, err := hex.DecodeString(token.SHA256)
		if err != nil {
			return tokenEntry{}, fmt.Errorf("invalid sha256 digest: %w", err)
		}
		if len(raw) != sha256.Size {
			return tokenEntry{}, fmt.Errorf("sha256 digest must be %d bytes, got %d", sha256.Size, len(raw))
		}
		return tokenEntry{digest: hexDigest(raw), principal: principal}, nil
	default:
		return tokenEntry{}, errors.New("token or sha256 is required")
	}
}

// hexDigest normalizes a digest to its lowercase hex form.
func hexDigest(raw []byte) []byte {
	return []byte(hex.EncodeToString(raw))
}

// Authenticate resolves a bearer token to its principal. The presented token
// is hashed and compared against every configured digest; the scan never
// exits early, so lookup cost does not depend on the match position.
func (a *TokenAuthenticator) Authenticate(_ context.Context, credential string) (core.Principal, error) {
	start := time.Now()

	if credential == "" {
		a.metrics.attempt(MethodToken, "no_credentials", start)
		return core.Principal{}, ErrNoCredentials
	}

	sum := sha256.Sum256([]byte(credential))
	digest := hexDigest(sum[:])

	var (
		principal core.Principal
		matched   bool
	)
	for _, entry := range a.entries {
		if subtle.ConstantTimeCompare(digest, entry.digest) == 1 {
			principal = entry.principal
			matched = true
		}
	}

	if !matched {
		a.metrics.attempt(MethodToken, "invalid", start)
		return core.Principal{}, ErrInvalidCredentials
	}

	a.metrics.attempt(MethodToken, "success", start)
	a.logger.Debug("token authenticated",
		observability.String("principal", principal.String()),
	)

	return principal, nil
}

// Ensure TokenAuthenticator implements Authenticator.
var _ Authenticator = (*TokenAuthenticator)(nil)
