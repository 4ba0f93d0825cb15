package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// AlgHS256 is the only signing algorithm the JWT authenticator accepts.
const AlgHS256 = "HS256"

// defaultClockSkew is the tolerance applied to the exp and nbf claims.
const defaultClockSkew = time.Minute

// JWTConfig configures the HS256 bearer-token authenticator.
type JWTConfig struct {
	// Secret is the HMAC-SHA256 signing secret. Secret references are
	// resolved before the authenticator is built.
	Secret string `yaml:"secret" json:"secret"`

	// Issuer, when set, must match the token iss claim exactly.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`

	// Audience, when set, must share at least one value with the token
	// aud claim.
	Audience []string `yaml:"audience,omitempty" json:"audience,omitempty"`

	// ClockSkew is the tolerance applied to exp and nbf.
	// Defaults to one minute.
	ClockSkew time.Duration `yaml:"clock_skew,omitempty" json:"clock_skew,omitempty"`
}

// JWTAuthenticator authenticates HS256 bearer JWTs. The subject claim
// carries the hex-encoded principal.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience []string
	skew     time.Duration
	logger   observability.Logger
	metrics  *Metrics
}

// JWTOption is a functional option for the JWT authenticator.
type JWTOption func(*JWTAuthenticator)

// WithJWTLogger sets the logger for the JWT authenticator.
func WithJWTLogger(logger observability.Logger) JWTOption {
	return func(a *JWTAuthenticator) {
		a.logger = logger
	}
}

// WithJWTMetrics sets the metrics for the JWT authenticator.
func WithJWTMetrics(metrics *Metrics) JWTOption {
	return func(a *JWTAuthenticator) {
		a.metrics = metrics
	}
}

// NewJWTAuthenticator creates a JWT authenticator.
func NewJWTAuthenticator(config JWTConfig, opts ...JWTOption) (*JWTAuthenticator, error) {
	if config.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	skew := config.ClockSkew
	if skew <= 0 {
		skew = defaultClockSkew
	}

	a := &JWTAuthenticator{
		secret:   []byte(config.Secret),
		issuer:   config.Issuer,
		audience: config.Audience,
		skew:     skew,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// tokenHeader is the decoded JOSE header.
type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

// tokenClaims is the subset of registered claims the authenticator reads.
type tokenClaims struct {
	Issuer    string       `json:"iss"`
	Subject   string       `json:"sub"`
	Audience  audience     `json:"aud"`
	ExpiresAt *numericDate `json:"exp"`
	NotBefore *numericDate `json:"nbf"`
}

// audience accepts both the string and the array form of the aud claim.
type audience []string

// UnmarshalJSON implements json.Unmarshaler.
func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience{single}
		return nil
	}

	var multiple []string
	if err := json.Unmarshal(data, &multiple); err != nil {
		return err
	}
	*a = audience(multiple)
	return nil
}

// containsAny checks if the audience contains any of the specified values.
func (a audience) containsAny(values ...string) bool {
	for _, v := range values {
		for _, aud := range a {
			if aud == v {
				return true
			}
		}
	}
	return false
}

// numericDate is a JSON numeric date, seconds since the Unix epoch.
type numericDate struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *numericDate) UnmarshalJSON(data []byte) error {
	var timestamp float64
	if err := json.Unmarshal(data, &timestamp); err != nil {
		return err
	}
	d.Time = time.Unix(int64(timestamp), 0)
	return nil
}

// Authenticate validates an HS256 JWT and returns the principal named by its
// subject claim. The payload is decoded and its claims checked only after
// the signature verifies.
func (a *JWTAuthenticator) Authenticate(_ context.Context, credential string) (core.Principal, error) {
	start := time.Now()

	if credential == "" {
		a.metrics.attempt(MethodJWT, "no_credentials", start)
		return core.Principal{}, ErrNoCredentials
	}

	parts := strings.Split(credential, ".")
	if len(parts) != 3 {
		a.metrics.attempt(MethodJWT, "malformed", start)
		return core.Principal{}, ErrTokenMalformed
	}

	header, err := decodeHeader(parts[0])
	if err != nil {
		a.metrics.attempt(MethodJWT, "malformed", start)
		return core.Principal{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	if header.Algorithm != AlgHS256 {
		a.metrics.attempt(MethodJWT, "algorithm", start)
		return core.Principal{}, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, header.Algorithm)
	}

	if err := a.verifySignature(parts[0]+"."+parts[1], parts[2]); err != nil {
		a.metrics.attempt(MethodJWT, "signature", start)
		return core.Principal{}, err
	}

	claims, err := decodeClaims(parts[1])
	if err != nil {
		a.metrics.attempt(MethodJWT, "malformed", start)
		return core.Principal{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	if err := a.validateClaims(claims); err != nil {
		a.metrics.attempt(MethodJWT, reasonFor(err), start)
		return core.Principal{}, err
	}

	principal, err := core.ParsePrincipal(claims.Subject)
	if err != nil {
		a.metrics.attempt(MethodJWT, "subject", start)
		return core.Principal{}, fmt.Errorf("%w: %q", ErrInvalidSubject, claims.Subject)
	}

	a.metrics.attempt(MethodJWT, "success", start)
	a.logger.Debug("jwt authenticated",
		observability.String("principal", principal.String()),
		observability.String("issuer", claims.Issuer),
	)

	return principal, nil
}

// verifySignature checks the HMAC-SHA256 signature over the signing input.
func (a *JWTAuthenticator) verifySignature(signingInput, signature string) error {
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(signingInput))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return ErrInvalidSignature
	}

	return nil
}

// validateClaims checks temporal bounds and the configured issuer and audience.
func (a *JWTAuthenticator) validateClaims(claims *tokenClaims) error {
	now := time.Now()

	if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Add(a.skew)) {
		return ErrTokenExpired
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Add(-a.skew)) {
		return ErrTokenNotYetValid
	}

	if a.issuer != "" && claims.Issuer != a.issuer {
		return fmt.Errorf("%w: %q", ErrInvalidIssuer, claims.Issuer)
	}
	if len(a.audience) > 0 && !claims.Audience.containsAny(a.audience...) {
		return ErrInvalidAudience
	}

	return nil
}

// reasonFor maps a claim validation error to its metric label.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, ErrInvalidIssuer):
		return "issuer"
	case errors.Is(err, ErrInvalidAudience):
		return "audience"
	default:
		return "invalid"
	}
}

// decodeHeader decodes the JOSE header segment.
func decodeHeader(segment string) (*tokenHeader, error) {
	data, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	var header tokenHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	return &header, nil
}

// decodeClaims decodes the payload segment.
func decodeClaims(segment string) (*tokenClaims, error) {
	data, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	var claims tokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}

	return &claims, nil
}

// Ensure JWTAuthenticator implements Authenticator.
var _ Authenticator = (*JWTAuthenticator)(nil)
