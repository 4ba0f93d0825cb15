// Package record maps domain state to addressed, budgeted byte records.
//
// Addresses are deterministic: a project address derives from the
// creating owner and the project ID, a key address from its project and
// index, a usage address from its key. Callers that know the creation
// inputs can locate any record without an index or scan.
//
// Records are JSON with a type discriminator and a hard size budget, so
// a corrupted or mislinked blob fails decoding instead of leaking into
// domain state.
package record
