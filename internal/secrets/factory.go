package secrets

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// Config selects and configures the secrets provider.
type Config struct {
	// Provider picks the backend: "env", "file" or "vault". Empty
	// selects the environment provider.
	Provider string `yaml:"provider" json:"provider"`

	// Env configures the environment provider.
	Env EnvConfig `yaml:"env,omitempty" json:"env,omitempty"`

	// File configures the file provider.
	File FileConfig `yaml:"file,omitempty" json:"file,omitempty"`

	// Vault configures the Vault provider.
	Vault VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config, logger observability.Logger, metrics *Metrics) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderEnv:
		return NewEnvProvider(cfg.Env, logger, metrics), nil
	case ProviderFile:
		return NewFileProvider(cfg.File, logger, metrics)
	case ProviderVault:
		return NewVaultProvider(ctx, cfg.Vault, logger, metrics)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidProviderType, cfg.Provider)
	}
}
