package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// Reference schemes understood by the resolver.
const (
	// SchemeEnv resolves "env://NAME" from the named environment
	// variable.
	SchemeEnv = "env://"

	// SchemeFile resolves "file://path#key" from a YAML secrets file.
	SchemeFile = "file://"

	// SchemeVault resolves "vault://mount/path#key" from Vault KV v2.
	// The key defaults to DefaultKey when the fragment is omitted.
	SchemeVault = "vault://"
)

// Resolver expands secret references found in configuration values.
// Values without a known scheme pass through unchanged, so plain
// literals keep working.
type Resolver struct {
	vault  *VaultProvider
	logger observability.Logger
}

// NewResolver creates a resolver. vault may be nil when no Vault
// provider is configured; vault:// references then fail.
func NewResolver(vault *VaultProvider, logger observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Resolver{vault: vault, logger: logger}
}

// ResolverFor builds a resolver backed by p when p is a Vault
// provider. Other providers resolve env and file references only.
func ResolverFor(p Provider, logger observability.Logger) *Resolver {
	vault, _ := p.(*VaultProvider)
	return NewResolver(vault, logger)
}

// Resolve returns the secret value a reference points at. Empty input
// resolves to empty output.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	var (
		value string
		err   error
	)

	switch {
	case ref == "":
		return "", nil
	case strings.HasPrefix(ref, SchemeEnv):
		value, err = r.resolveEnv(strings.TrimPrefix(ref, SchemeEnv))
	case strings.HasPrefix(ref, SchemeFile):
		value, err = r.resolveFile(strings.TrimPrefix(ref, SchemeFile))
	case strings.HasPrefix(ref, SchemeVault):
		value, err = r.resolveVault(ctx, strings.TrimPrefix(ref, SchemeVault))
	default:
		return ref, nil
	}

	if err != nil {
		return "", err
	}

	r.logger.Debug("secret reference resolved", observability.String("ref", ref))
	return value, nil
}

func (r *Resolver) resolveEnv(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: env reference needs a variable name", ErrInvalidPath)
	}

	value, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("%w: environment variable %s", ErrSecretNotFound, name)
	}
	return value, nil
}

func (r *Resolver) resolveFile(rest string) (string, error) {
	path, key, found := strings.Cut(rest, "#")
	if !found || path == "" || key == "" {
		return "", fmt.Errorf("%w: file reference needs path#key", ErrInvalidPath)
	}

	values, err := loadSecretsFile(path)
	if err != nil {
		return "", err
	}

	value, ok := values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, path)
	}
	return value, nil
}

func (r *Resolver) resolveVault(ctx context.Context, rest string) (string, error) {
	location, key, found := strings.Cut(rest, "#")
	if !found {
		key = DefaultKey
	}

	mount, path, ok := strings.Cut(location, "/")
	if !ok || mount == "" || path == "" || key == "" {
		return "", fmt.Errorf("%w: vault reference needs mount/path#key", ErrInvalidPath)
	}
	if r.vault == nil {
		return "", fmt.Errorf("%w: vault reference %s", ErrProviderNotConfigured, location)
	}

	secret, err := r.vault.Read(ctx, mount, path)
	if err != nil {
		return "", err
	}

	value, ok := secret.GetString(key)
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, location)
	}
	return value, nil
}
