// Package service orchestrates key management operations end to end.
//
// Each operation follows the same shape: derive record addresses from
// the request coordinates, take the project lock, load and decode the
// affected records, run the pure domain operation on the in-memory
// copies, then commit every changed record in one atomic store batch.
// Events publish only after the commit succeeds, so subscribers never
// see a state change that was rolled back.
//
// # Serialization
//
// Operations on the same project are serialized through striped
// mutexes keyed by the project address. Two concurrent calls against
// one project therefore observe each other's writes; calls against
// different projects proceed in parallel (modulo stripe collisions).
// Reads skip the lock and see the latest committed record.
//
// # Failure-path commits
//
// Exactly one error path writes state: a digest mismatch during
// verification persists the incremented failure count, and at the
// auto-revocation threshold the revoked key and decremented project
// counters, before the invalid-key error is returned.
//
// # Usage
//
//	svc, err := service.New(&service.Config{
//	    Store:  st,
//	    Clock:  clk,
//	    Bus:    bus,
//	    Logger: logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	project, err := svc.CreateProject(ctx, params)
package service
