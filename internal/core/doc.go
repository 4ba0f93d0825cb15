// Package core implements the key management domain: projects, API
// keys, usage windows, and the rules that govern them.
//
// This package is deliberately free of I/O. Operations receive fully
// loaded records plus the current logical slot, validate every
// precondition, then mutate the records in place and report which ones
// changed. Persistence, serialization of concurrent writers, and
// notification delivery belong to the service layer.
//
// # Components
//
//   - Registry: project creation and authority transfer
//   - Lifecycle: key issuance, rotation, scope and rate limit updates,
//     revocation, suspension, reactivation, usage record closing
//   - Verifier: digest verification with constant-time comparison,
//     scope enforcement, window-based rate accounting, and automatic
//     revocation after repeated failures
//
// # Failure discipline
//
// Every operation either completes all of its mutations or none of
// them. The single exception is a digest mismatch during verification,
// which still increments the failure counter (and may auto-revoke the
// key) while the call itself returns ErrInvalidKey.
//
// # Usage
//
//	reg := core.NewRegistry()
//	project, note, err := reg.CreateProject(core.CreateProjectParams{...})
//
//	verifier := core.NewVerifier()
//	res, err := verifier.Verify(project, key, usage, core.VerifyParams{
//	    Presented: presented,
//	    Now:       clk.Now(),
//	})
package core
