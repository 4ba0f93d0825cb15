package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// FileConfig configures the file provider.
type FileConfig struct {
	// Path locates the YAML secrets file.
	Path string `yaml:"path" json:"path"`
}

// FileProvider reads secrets from a local YAML file holding a flat
// mapping of secret names to string values. The file must be a regular
// file accessible only by its owner. It is re-read on every lookup so
// edits take effect without a restart.
type FileProvider struct {
	path    string
	logger  observability.Logger
	metrics *Metrics
}

// NewFileProvider creates a file-backed provider. The file is loaded
// once up front so a missing, malformed or over-permissive file fails
// at startup.
func NewFileProvider(cfg FileConfig, logger observability.Logger, metrics *Metrics) (*FileProvider, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: file provider needs a path", ErrProviderNotConfigured)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	p := &FileProvider{path: filepath.Clean(cfg.Path), logger: logger, metrics: metrics}

	values, err := loadSecretsFile(p.path)
	if err != nil {
		return nil, err
	}

	logger.Debug("secrets file loaded",
		observability.String("path", p.path),
		observability.Int("secrets", len(values)))

	return p, nil
}

// GetSecret implements Provider.
func (p *FileProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	start := time.Now()
	secret, err := p.getSecret(path)
	p.metrics.operation(ProviderFile, "get", start, err)
	return secret, err
}

func (p *FileProvider) getSecret(path string) (*Secret, error) {
	if path == "" || strings.Contains(path, "..") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	values, err := loadSecretsFile(p.path)
	if err != nil {
		return nil, err
	}

	value, ok := values[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	return &Secret{Path: path, Data: map[string][]byte{DefaultKey: []byte(value)}}, nil
}

// HealthCheck implements Provider by re-validating the secrets file.
func (p *FileProvider) HealthCheck(context.Context) error {
	_, err := loadSecretsFile(p.path)
	p.metrics.health(ProviderFile, err == nil)
	return err
}

// Close implements Provider.
func (p *FileProvider) Close() error { return nil }

// loadSecretsFile reads a YAML secrets file after checking it is a
// regular file without group or world permissions.
func loadSecretsFile(path string) (map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file %s", ErrSecretNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("secrets file %s is not a regular file", path)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return nil, fmt.Errorf("secrets file %s has mode %04o, want 0600", path, perm)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	var values map[string]string
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}

	return values, nil
}

var _ Provider = (*FileProvider)(nil)
