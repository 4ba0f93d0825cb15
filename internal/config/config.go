package config

import (
	"time"

	"github.com/vyrodovalexey/avkeyd/internal/identity"
)

// Store backends.
const (
	// StoreMemory keeps all records in process memory.
	StoreMemory = "memory"

	// StoreRedis persists records in Redis.
	StoreRedis = "redis"
)

// Config is the root configuration for the key daemon.
type Config struct {
	// Server configures the HTTP API listener.
	Server ServerConfig `yaml:"server" json:"server"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" json:"log"`

	// Clock configures slot timing.
	Clock ClockConfig `yaml:"clock" json:"clock"`

	// Store configures record persistence.
	Store StoreConfig `yaml:"store" json:"store"`

	// Auth configures control-plane authentication.
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Events configures notification delivery.
	Events EventsConfig `yaml:"events" json:"events"`

	// RateLimit configures the HTTP request limiter.
	RateLimit RateLimitConfig `yaml:"ratelimit" json:"ratelimit"`

	// Tracing configures OpenTelemetry export.
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`

	// Secrets configures the secrets provider.
	Secrets SecretsConfig `yaml:"secrets" json:"secrets"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	// Address is the listen address, host:port.
	Address string `yaml:"address" json:"address"`

	// ReadTimeout bounds reading a request including the body.
	ReadTimeout Duration `yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout bounds writing a response.
	WriteTimeout Duration `yaml:"write_timeout" json:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// MaxBodyBytes caps accepted request body size.
	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns the metrics listener on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Address is the metrics listen address.
	Address string `yaml:"address" json:"address"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum enabled level: debug, info, warn, error or
	// fatal.
	Level string `yaml:"level" json:"level"`

	// Format selects the encoder, "json" or "console".
	Format string `yaml:"format" json:"format"`

	// Output is the log destination, "stdout", "stderr" or a file
	// path.
	Output string `yaml:"output" json:"output"`
}

// ClockConfig configures slot timing. Slots are the unit used for key
// expiry and rate-limit windows.
type ClockConfig struct {
	// SlotMillis is the wall-clock length of one slot in milliseconds.
	SlotMillis int `yaml:"slot_millis" json:"slot_millis"`

	// Epoch is the Unix second slot zero starts at.
	Epoch int64 `yaml:"epoch" json:"epoch"`
}

// StoreConfig configures record persistence.
type StoreConfig struct {
	// Backend selects the store: "memory" or "redis".
	Backend string `yaml:"backend" json:"backend"`

	// Redis configures the Redis backend.
	Redis RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig configures the Redis store backend.
type RedisConfig struct {
	// Address is the Redis host:port.
	Address string `yaml:"address" json:"address"`

	// Password authenticates the connection. Accepts a secret
	// reference.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB selects the logical database.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`

	// Prefix namespaces every key the daemon writes.
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`

	// PoolSize caps open connections.
	PoolSize int `yaml:"pool_size,omitempty" json:"pool_size,omitempty"`

	// MinIdleConns keeps warm connections in the pool.
	MinIdleConns int `yaml:"min_idle_conns,omitempty" json:"min_idle_conns,omitempty"`

	// MaxRetries bounds per-command retries.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// DialTimeout bounds establishing a connection.
	DialTimeout Duration `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`

	// ReadTimeout bounds a single read.
	ReadTimeout Duration `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`

	// WriteTimeout bounds a single write.
	WriteTimeout Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
}

// AuthConfig configures control-plane authentication.
type AuthConfig struct {
	// Mode selects the authenticator, "token" or "jwt".
	Mode string `yaml:"mode" json:"mode"`

	// Tokens are the static bearer tokens for token mode. Token values
	// accept secret references.
	Tokens []identity.StaticToken `yaml:"tokens,omitempty" json:"tokens,omitempty"`

	// JWT configures jwt mode.
	JWT JWTConfig `yaml:"jwt,omitempty" json:"jwt,omitempty"`
}

// JWTConfig configures JWT verification for jwt auth mode.
type JWTConfig struct {
	// Secret is the HS256 signing secret. Accepts a secret reference.
	Secret string `yaml:"secret" json:"secret"`

	// Issuer, when set, must match the token iss claim.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`

	// Audience, when set, must intersect the token aud claim.
	Audience []string `yaml:"audience,omitempty" json:"audience,omitempty"`

	// ClockSkew is the tolerance applied to time claims.
	ClockSkew Duration `yaml:"clock_skew,omitempty" json:"clock_skew,omitempty"`
}

// EventsConfig configures notification delivery.
type EventsConfig struct {
	// QueueSize is the publish buffer capacity.
	QueueSize int `yaml:"queue_size,omitempty" json:"queue_size,omitempty"`

	// Log enables the log sink.
	Log LogSinkConfig `yaml:"log,omitempty" json:"log,omitempty"`

	// Webhook configures the webhook sink.
	Webhook WebhookConfig `yaml:"webhook,omitempty" json:"webhook,omitempty"`

	// WebSocket enables the websocket stream.
	WebSocket WebSocketConfig `yaml:"websocket,omitempty" json:"websocket,omitempty"`
}

// LogSinkConfig enables the event log sink.
type LogSinkConfig struct {
	// Enabled turns the sink on.
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// WebhookConfig configures the event webhook sink.
type WebhookConfig struct {
	// Enabled turns the sink on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// URL is the delivery endpoint.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Secret signs deliveries with HMAC-SHA256. Accepts a secret
	// reference. Empty disables signing.
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`

	// Timeout bounds a single delivery attempt.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxRetries bounds retry attempts per delivery.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// Template renders the request body. Empty sends the event JSON.
	Template string `yaml:"template,omitempty" json:"template,omitempty"`

	// Headers are added to every delivery.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// BreakerThreshold is the request count the circuit breaker
	// samples before it may trip.
	BreakerThreshold int `yaml:"breaker_threshold,omitempty" json:"breaker_threshold,omitempty"`

	// BreakerTimeout is how long an open circuit stays open.
	BreakerTimeout Duration `yaml:"breaker_timeout,omitempty" json:"breaker_timeout,omitempty"`
}

// WebSocketConfig enables the event websocket stream.
type WebSocketConfig struct {
	// Enabled turns the stream route on.
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// RateLimitConfig configures the per-client HTTP request limiter.
type RateLimitConfig struct {
	// Enabled turns the limiter on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// RequestsPerSecond is the sustained rate for control-plane
	// requests.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"`

	// Burst is the control-plane burst allowance.
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`

	// VerifyRequestsPerSecond is the sustained rate for verify
	// requests, which are expected to dominate traffic.
	VerifyRequestsPerSecond float64 `yaml:"verify_requests_per_second,omitempty" json:"verify_requests_per_second,omitempty"`

	// VerifyBurst is the verify burst allowance.
	VerifyBurst int `yaml:"verify_burst,omitempty" json:"verify_burst,omitempty"`

	// ClientTTL is how long an idle client entry is kept.
	ClientTTL Duration `yaml:"client_ttl,omitempty" json:"client_ttl,omitempty"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// ServiceName labels exported spans.
	ServiceName string `yaml:"service_name,omitempty" json:"service_name,omitempty"`

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables
	// export while keeping span propagation.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`

	// SamplingRate is the trace sampling ratio, 0.0 to 1.0.
	SamplingRate float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
}

// SecretsConfig configures the secrets provider.
type SecretsConfig struct {
	// Provider picks the backend: "env", "file" or "vault". Empty
	// selects env.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Env configures the environment provider.
	Env EnvSecretsConfig `yaml:"env,omitempty" json:"env,omitempty"`

	// File configures the file provider.
	File FileSecretsConfig `yaml:"file,omitempty" json:"file,omitempty"`

	// Vault configures the Vault provider.
	Vault VaultSecretsConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// EnvSecretsConfig configures the environment secrets provider.
type EnvSecretsConfig struct {
	// Prefix overrides the AVKEYD_SECRET_ variable prefix.
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// FileSecretsConfig configures the file secrets provider.
type FileSecretsConfig struct {
	// Path locates the YAML secrets file.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// VaultSecretsConfig configures the Vault secrets provider.
type VaultSecretsConfig struct {
	// Address is the Vault server URL.
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	// AuthMethod is "token" or "approle".
	AuthMethod string `yaml:"auth_method,omitempty" json:"auth_method,omitempty"`

	// Token is the client token for token auth.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// RoleID identifies the AppRole for approle auth.
	RoleID string `yaml:"role_id,omitempty" json:"role_id,omitempty"`

	// SecretID authenticates the AppRole for approle auth.
	SecretID string `yaml:"secret_id,omitempty" json:"secret_id,omitempty"`

	// Mount is the KV v2 mount point.
	Mount string `yaml:"mount,omitempty" json:"mount,omitempty"`

	// Timeout bounds each Vault request.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// DefaultConfig returns the configuration used when a field is absent
// from the loaded file.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
			MaxBodyBytes:    1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Clock: ClockConfig{
			SlotMillis: 400,
			Epoch:      0,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			Redis: RedisConfig{
				Address: "127.0.0.1:6379",
			},
		},
		Auth: AuthConfig{
			Mode: identity.MethodToken,
		},
		Events: EventsConfig{
			QueueSize: 256,
			Log:       LogSinkConfig{Enabled: true},
			Webhook: WebhookConfig{
				Timeout:    Duration(10 * time.Second),
				MaxRetries: 3,
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond:       50,
			Burst:                   100,
			VerifyRequestsPerSecond: 500,
			VerifyBurst:             1000,
			ClientTTL:               Duration(10 * time.Minute),
		},
		Tracing: TracingConfig{
			ServiceName:  "avkeyd",
			SamplingRate: 1.0,
		},
		Secrets: SecretsConfig{
			Provider: "env",
		},
	}
}
