// Package config provides configuration types and loading for the
// key daemon.
//
// This package defines the complete configuration model, YAML loading
// with environment variable substitution, validation, and file
// watching for hot-reload support.
//
// # Features
//
//   - YAML configuration file loading layered over defaults
//   - Environment variable substitution with ${VAR:-default} syntax
//   - Configuration validation with per-field error reporting
//   - File watching for configuration hot-reload
//
// # Configuration Loading
//
// Load configuration from a YAML file:
//
//	cfg, err := config.LoadConfig("keyd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Watching
//
// Watch for configuration changes:
//
//	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
//	    // Handle configuration update
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	watcher.Start(ctx)
//
// Secret-bearing fields (tokens, passwords, signing keys) accept
// literal values or the secret references understood by
// internal/secrets: env://NAME, file://path#key and
// vault://mount/path#key.
package config
