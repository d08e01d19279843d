// Package authcore implements the credential and session lifecycle engine for
// a multi-tenant backend: password login with brute-force lockout escalation,
// per-device refresh-token issuance and rotation, and administrative account
// locking.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. A single identity's credential record is the unit of shared
// mutable state; every mutation goes through the store's atomic
// read-modify-write primitive, so concurrent logins, refreshes, and logouts
// against the same identity never interleave partially.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (LoginResult, DeviceSummary, etc.). The record model and
// store live in credential, pure decision logic in lockout, hashing in
// password, token signing in token; audit dispatch lives under internal/ and
// is never exported directly.
//
// # What this package must NOT do
//
//   - Expose Redis clients or record encodings in its public API.
//   - Hold the record lock while hashing passwords or signing tokens; those
//     are computed first and only the results enter the atomic mutation.
//   - Distinguish "unknown handle" from "wrong password" to callers.
package authcore
