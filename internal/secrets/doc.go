// Package secrets loads sensitive configuration material from
// pluggable backends.
//
// Three providers implement the Provider interface: process
// environment variables (AVKEYD_SECRET_*), a permission-checked local
// YAML file, and HashiCorp Vault KV v2. The Resolver additionally
// expands secret references embedded in configuration values:
//
//	env://NAME              a process environment variable
//	file://path#key         a key in a YAML secrets file
//	vault://mount/path#key  a field of a Vault KV v2 secret
//
// Anything else passes through as a literal, so configurations can mix
// inline values with references.
package secrets
