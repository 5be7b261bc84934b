// Package store provides SQLite-backed durable storage for the knowledge
// graph and its governance records.
//
// The store holds:
//   - Nodes and Edges: the current graph. Edges reference nodes by id only.
//   - Events: the append-only journal, one row per mutation, with
//     before/after snapshots. It is the only source of history and diffs.
//   - Proposals, Votes, Reputations: governance state, durable across runs.
//   - Capabilities and Modules: who may do what, and which extension
//     identities have ever been registered.
//
// # Atomicity
//
// Every mutating method writes its entity row and its event row in one
// transaction. The pool is limited to a single connection, so transactions
// never interleave inside a process; reads that feed a write (the
// before-snapshot of an update, the pending check of a vote) happen inside
// that same transaction.
//
// Resolution uses a conditional UPDATE on status='pending' and checks
// RowsAffected, so exactly one resolver wins even across processes sharing
// the file.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Structured values are stored as canonical JSON text produced by
// internal/value, so a write followed by a read yields an equal value.
package store
