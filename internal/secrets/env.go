package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// DefaultEnvPrefix is prepended to normalized secret paths when looking
// up environment variables.
const DefaultEnvPrefix = "AVKEYD_SECRET_"

// EnvConfig configures the environment provider.
type EnvConfig struct {
	// Prefix overrides DefaultEnvPrefix.
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// EnvProvider reads secrets from process environment variables. A
// secret path "webhook/hmac" resolves the variable
// AVKEYD_SECRET_WEBHOOK_HMAC. Values holding a JSON object become
// multi-key secrets; any other value becomes a single DefaultKey
// entry.
type EnvProvider struct {
	prefix  string
	logger  observability.Logger
	metrics *Metrics
}

// NewEnvProvider creates an environment-backed provider.
func NewEnvProvider(cfg EnvConfig, logger observability.Logger, metrics *Metrics) *EnvProvider {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &EnvProvider{prefix: prefix, logger: logger, metrics: metrics}
}

// GetSecret implements Provider.
func (p *EnvProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	start := time.Now()
	secret, err := p.getSecret(path)
	p.metrics.operation(ProviderEnv, "get", start, err)
	return secret, err
}

func (p *EnvProvider) getSecret(path string) (*Secret, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	name := p.prefix + normalizeEnvName(path)
	value, ok := os.LookupEnv(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	p.logger.Debug("secret read from environment",
		observability.String("path", path),
		observability.String("variable", name))

	return &Secret{Path: path, Data: decodeEnvValue(value)}, nil
}

// HealthCheck implements Provider. The environment is always
// available.
func (p *EnvProvider) HealthCheck(context.Context) error {
	p.metrics.health(ProviderEnv, true)
	return nil
}

// Close implements Provider.
func (p *EnvProvider) Close() error { return nil }

// normalizeEnvName maps a secret path onto an environment variable
// suffix: uppercase, with "-", "." and "/" replaced by "_".
func normalizeEnvName(path string) string {
	r := strings.NewReplacer("-", "_", ".", "_", "/", "_")
	return strings.ToUpper(r.Replace(path))
}

// decodeEnvValue splits a JSON object value into keys and wraps
// anything else under DefaultKey.
func decodeEnvValue(value string) map[string][]byte {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") {
		var fields map[string]string
		if err := json.Unmarshal([]byte(trimmed), &fields); err == nil {
			data := make(map[string][]byte, len(fields))
			for k, v := range fields {
				data[k] = []byte(v)
			}
			return data
		}
	}

	return map[string][]byte{DefaultKey: []byte(value)}
}

var _ Provider = (*EnvProvider)(nil)
