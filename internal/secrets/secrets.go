package secrets

import (
	"context"
	"errors"
)

// Provider types selectable in configuration.
const (
	// ProviderEnv reads secrets from process environment variables.
	ProviderEnv = "env"

	// ProviderFile reads secrets from a local YAML file.
	ProviderFile = "file"

	// ProviderVault reads secrets from HashiCorp Vault KV v2.
	ProviderVault = "vault"
)

// DefaultKey is the data key used by single-value secrets.
const DefaultKey = "value"

// Sentinel errors returned by providers and the resolver.
var (
	// ErrSecretNotFound is returned when no secret exists at the
	// requested path.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrKeyNotFound is returned when a secret exists but does not
	// contain the requested key.
	ErrKeyNotFound = errors.New("secret key not found")

	// ErrInvalidPath is returned for empty or malformed secret paths.
	ErrInvalidPath = errors.New("invalid secret path")

	// ErrProviderNotConfigured is returned when an operation needs a
	// provider that was not configured.
	ErrProviderNotConfigured = errors.New("secrets provider is not configured")

	// ErrProviderUnavailable is returned when the backing store cannot
	// be reached or is not ready to serve.
	ErrProviderUnavailable = errors.New("secrets provider is unavailable")

	// ErrInvalidProviderType is returned by the factory for unknown
	// provider types.
	ErrInvalidProviderType = errors.New("invalid secrets provider type")
)

// Provider serves named secrets to the rest of the daemon.
type Provider interface {
	// GetSecret returns the secret stored at path.
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// HealthCheck verifies the provider can currently serve secrets.
	HealthCheck(ctx context.Context) error

	// Close releases provider resources.
	Close() error
}

// Secret is a named bag of key material.
type Secret struct {
	// Path is the location the secret was read from.
	Path string

	// Data holds the secret material keyed by field name. Single-value
	// secrets use the DefaultKey key.
	Data map[string][]byte

	// Version is the secret version where the backend tracks one, zero
	// otherwise.
	Version int
}

// GetString returns the named field as a string.
func (s *Secret) GetString(key string) (string, bool) {
	b, ok := s.Data[key]
	if !ok {
		return "", false
	}
	return string(b), true
}

// GetBytes returns the named field.
func (s *Secret) GetBytes(key string) ([]byte, bool) {
	b, ok := s.Data[key]
	return b, ok
}
