package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/avkeyd/internal/identity"
	"github.com/vyrodovalexey/avkeyd/internal/secrets"
)

// ValidationError is a single configuration problem.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors reports whether any errors were collected.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
}

// Validator validates daemon configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// ValidateConfig validates a configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate checks the configuration and returns every problem found.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&cfg.Server)
	v.validateMetrics(&cfg.Metrics)
	v.validateLog(&cfg.Log)
	v.validateClock(&cfg.Clock)
	v.validateStore(&cfg.Store)
	v.validateAuth(&cfg.Auth)
	v.validateEvents(&cfg.Events)
	v.validateRateLimit(&cfg.RateLimit)
	v.validateTracing(&cfg.Tracing)
	v.validateSecrets(&cfg.Secrets)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Address == "" {
		v.addError("server.address", "address is required")
	}
	if cfg.ReadTimeout < 0 {
		v.addError("server.read_timeout", "must not be negative")
	}
	if cfg.WriteTimeout < 0 {
		v.addError("server.write_timeout", "must not be negative")
	}
	if cfg.ShutdownTimeout < 0 {
		v.addError("server.shutdown_timeout", "must not be negative")
	}
	if cfg.MaxBodyBytes <= 0 {
		v.addError("server.max_body_bytes", "must be positive")
	}
}

func (v *Validator) validateMetrics(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Address == "" {
		v.addError("metrics.address", "address is required when metrics are enabled")
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	if !validLogLevels[cfg.Level] {
		v.addError("log.level", fmt.Sprintf("unknown level %q", cfg.Level))
	}
	if cfg.Format != "json" && cfg.Format != "console" {
		v.addError("log.format", `format must be "json" or "console"`)
	}
	if cfg.Output == "" {
		v.addError("log.output", "output is required")
	}
}

func (v *Validator) validateClock(cfg *ClockConfig) {
	if cfg.SlotMillis <= 0 {
		v.addError("clock.slot_millis", "must be positive")
	}
	if cfg.Epoch < 0 {
		v.addError("clock.epoch", "must not be negative")
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	switch cfg.Backend {
	case StoreMemory:
	case StoreRedis:
		if cfg.Redis.Address == "" {
			v.addError("store.redis.address", "address is required for the redis backend")
		}
	default:
		v.addError("store.backend", fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
}

func (v *Validator) validateAuth(cfg *AuthConfig) {
	switch cfg.Mode {
	case identity.MethodToken:
		if len(cfg.Tokens) == 0 {
			v.addError("auth.tokens", "at least one token is required in token mode")
		}
		for i, token := range cfg.Tokens {
			v.validateStaticToken(i, token)
		}
	case identity.MethodJWT:
		if cfg.JWT.Secret == "" {
			v.addError("auth.jwt.secret", "secret is required in jwt mode")
		}
		if cfg.JWT.ClockSkew < 0 {
			v.addError("auth.jwt.clock_skew", "must not be negative")
		}
	default:
		v.addError("auth.mode", fmt.Sprintf("unknown mode %q", cfg.Mode))
	}
}

func (v *Validator) validateStaticToken(i int, token identity.StaticToken) {
	path := fmt.Sprintf("auth.tokens[%d]", i)

	if token.Principal == "" {
		v.addError(path+".principal", "principal is required")
	}
	if token.Token == "" && token.SHA256 == "" {
		v.addError(path, "token or sha256 is required")
	}
	if token.Token != "" && token.SHA256 != "" {
		v.addError(path, "token and sha256 are mutually exclusive")
	}
}

func (v *Validator) validateEvents(cfg *EventsConfig) {
	if cfg.QueueSize < 0 {
		v.addError("events.queue_size", "must not be negative")
	}

	if cfg.Webhook.Enabled {
		if cfg.Webhook.URL == "" {
			v.addError("events.webhook.url", "url is required when the webhook sink is enabled")
		} else if u, err := url.Parse(cfg.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			v.addError("events.webhook.url", "url must be a valid http or https URL")
		}
	}
	if cfg.Webhook.MaxRetries < 0 {
		v.addError("events.webhook.max_retries", "must not be negative")
	}
	if cfg.Webhook.BreakerThreshold < 0 {
		v.addError("events.webhook.breaker_threshold", "must not be negative")
	}
}

func (v *Validator) validateRateLimit(cfg *RateLimitConfig) {
	if !cfg.Enabled {
		return
	}

	if cfg.RequestsPerSecond <= 0 {
		v.addError("ratelimit.requests_per_second", "must be positive when the limiter is enabled")
	}
	if cfg.Burst <= 0 {
		v.addError("ratelimit.burst", "must be positive when the limiter is enabled")
	}
	if cfg.VerifyRequestsPerSecond <= 0 {
		v.addError("ratelimit.verify_requests_per_second", "must be positive when the limiter is enabled")
	}
	if cfg.VerifyBurst <= 0 {
		v.addError("ratelimit.verify_burst", "must be positive when the limiter is enabled")
	}
	if cfg.ClientTTL < 0 {
		v.addError("ratelimit.client_ttl", "must not be negative")
	}
}

func (v *Validator) validateTracing(cfg *TracingConfig) {
	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		v.addError("tracing.sampling_rate", "must be between 0.0 and 1.0")
	}
	if cfg.Enabled && cfg.ServiceName == "" {
		v.addError("tracing.service_name", "service_name is required when tracing is enabled")
	}
}

func (v *Validator) validateSecrets(cfg *SecretsConfig) {
	switch cfg.Provider {
	case "", secrets.ProviderEnv:
	case secrets.ProviderFile:
		if cfg.File.Path == "" {
			v.addError("secrets.file.path", "path is required for the file provider")
		}
	case secrets.ProviderVault:
		if cfg.Vault.Address == "" {
			v.addError("secrets.vault.address", "address is required for the vault provider")
		}
		if cfg.Vault.AuthMethod != secrets.VaultAuthToken && cfg.Vault.AuthMethod != secrets.VaultAuthAppRole {
			v.addError("secrets.vault.auth_method", `auth_method must be "token" or "approle"`)
		}
	default:
		v.addError("secrets.provider", fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}
