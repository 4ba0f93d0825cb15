package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
	"github.com/vyrodovalexey/avkeyd/internal/retry"
)

// Vault authentication methods.
const (
	// VaultAuthToken authenticates with a static client token.
	VaultAuthToken = "token"

	// VaultAuthAppRole authenticates with an AppRole role and secret
	// ID.
	VaultAuthAppRole = "approle"
)

// Vault provider defaults.
const (
	defaultVaultMount   = "secret"
	defaultVaultTimeout = 30 * time.Second

	vaultAuthRetries    = 3
	vaultAuthBackoffMin = 500 * time.Millisecond
	vaultAuthBackoffMax = 5 * time.Second
)

// VaultConfig configures the Vault provider.
type VaultConfig struct {
	// Address is the Vault server URL.
	Address string `yaml:"address" json:"address"`

	// AuthMethod selects how the provider authenticates, "token" or
	// "approle".
	AuthMethod string `yaml:"auth_method" json:"auth_method"`

	// Token is the client token for token auth.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// RoleID identifies the AppRole for approle auth.
	RoleID string `yaml:"role_id,omitempty" json:"role_id,omitempty"`

	// SecretID authenticates the AppRole for approle auth.
	SecretID string `yaml:"secret_id,omitempty" json:"secret_id,omitempty"`

	// Mount is the KV v2 mount point. Defaults to "secret".
	Mount string `yaml:"mount,omitempty" json:"mount,omitempty"`

	// Timeout bounds each Vault request. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Validate checks the configuration is complete enough to connect.
func (c VaultConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: vault address is required", ErrProviderNotConfigured)
	}

	switch c.AuthMethod {
	case VaultAuthToken:
		if c.Token == "" {
			return fmt.Errorf("%w: token is required for token auth", ErrProviderNotConfigured)
		}
	case VaultAuthAppRole:
		if c.RoleID == "" {
			return fmt.Errorf("%w: role_id is required for approle auth", ErrProviderNotConfigured)
		}
	default:
		return fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}

	return nil
}

// VaultProvider reads secrets from HashiCorp Vault KV v2 mounts.
type VaultProvider struct {
	client  *vaultapi.Client
	mount   string
	logger  observability.Logger
	metrics *Metrics
}

// NewVaultProvider connects to Vault and authenticates. AppRole logins
// are retried with backoff before giving up.
func NewVaultProvider(ctx context.Context, cfg VaultConfig, logger observability.Logger, metrics *Metrics) (*VaultProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address
	apiCfg.Timeout = cfg.Timeout
	if apiCfg.Timeout <= 0 {
		apiCfg.Timeout = defaultVaultTimeout
	}

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = defaultVaultMount
	}

	p := &VaultProvider{client: client, mount: mount, logger: logger, metrics: metrics}
	if err := p.authenticate(ctx, cfg); err != nil {
		return nil, err
	}

	logger.Info("vault provider ready",
		observability.String("address", cfg.Address),
		observability.String("auth_method", cfg.AuthMethod),
		observability.String("mount", mount))

	return p, nil
}

func (p *VaultProvider) authenticate(ctx context.Context, cfg VaultConfig) error {
	switch cfg.AuthMethod {
	case VaultAuthToken:
		p.client.SetToken(cfg.Token)
		if _, err := p.client.Auth().Token().LookupSelfWithContext(ctx); err != nil {
			return fmt.Errorf("vault token lookup failed: %w", err)
		}
		return nil
	case VaultAuthAppRole:
		return p.loginAppRole(ctx, cfg)
	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// loginAppRole exchanges the role and secret ID for a client token.
func (p *VaultProvider) loginAppRole(ctx context.Context, cfg VaultConfig) error {
	policy := &retry.Config{
		MaxRetries:     vaultAuthRetries,
		InitialBackoff: vaultAuthBackoffMin,
		MaxBackoff:     vaultAuthBackoffMax,
	}

	return retry.Do(ctx, policy, func() error {
		secret, err := p.client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]any{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("vault approle login failed: %w", err)
		}
		if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
			return errors.New("vault approle login returned no token")
		}

		p.client.SetToken(secret.Auth.ClientToken)
		return nil
	}, &retry.Options{
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			p.logger.Warn("vault approle login retry",
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err))
		},
	})
}

// GetSecret implements Provider, reading from the configured mount.
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (*Secret, error) {
	return p.Read(ctx, p.mount, path)
}

// Read returns the KV v2 secret at mount/path.
func (p *VaultProvider) Read(ctx context.Context, mount, path string) (*Secret, error) {
	start := time.Now()
	secret, err := p.read(ctx, mount, path)
	p.metrics.operation(ProviderVault, "get", start, err)
	return secret, err
}

func (p *VaultProvider) read(ctx context.Context, mount, path string) (*Secret, error) {
	if mount == "" || path == "" || strings.Contains(path, "..") {
		return nil, fmt.Errorf("%w: %s/%s", ErrInvalidPath, mount, path)
	}

	raw, err := p.client.Logical().ReadWithContext(ctx, mount+"/data/"+path)
	if err != nil {
		return nil, fmt.Errorf("vault read failed: %w", err)
	}
	if raw == nil || raw.Data == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrSecretNotFound, mount, path)
	}

	fields, ok := raw.Data["data"].(map[string]any)
	if !ok || fields == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrSecretNotFound, mount, path)
	}

	data := make(map[string][]byte, len(fields))
	for k, v := range fields {
		data[k] = []byte(fmt.Sprint(v))
	}

	secret := &Secret{Path: mount + "/" + path, Data: data, Version: kvVersion(raw.Data)}

	p.logger.Debug("vault secret read",
		observability.String("mount", mount),
		observability.String("path", path),
		observability.Int("version", secret.Version))

	return secret, nil
}

// kvVersion extracts the secret version from KV v2 metadata.
func kvVersion(data map[string]any) int {
	meta, ok := data["metadata"].(map[string]any)
	if !ok {
		return 0
	}

	switch v := meta["version"].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case float64:
		return int(v)
	}
	return 0
}

// HealthCheck implements Provider by querying Vault health status.
func (p *VaultProvider) HealthCheck(ctx context.Context) error {
	resp, err := p.client.Sys().HealthWithContext(ctx)
	healthy := err == nil && resp != nil && resp.Initialized && !resp.Sealed
	p.metrics.health(ProviderVault, healthy)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if resp == nil || !resp.Initialized {
		return fmt.Errorf("%w: vault is not initialized", ErrProviderUnavailable)
	}
	if resp.Sealed {
		return fmt.Errorf("%w: vault is sealed", ErrProviderUnavailable)
	}
	return nil
}

// Close implements Provider.
func (p *VaultProvider) Close() error {
	p.client.ClearToken()
	return nil
}

var _ Provider = (*VaultProvider)(nil)
