// Package governance mediates mutation of the shared graph by agents that
// are not trusted to write directly.
//
// A Governance value is the explicitly constructed context owned by the
// process entry point. It bundles:
//   - CapabilityConfig: who may write, propose and vote, and at what weight
//   - ProposalManager: the pending → approved|rejected|withdrawn|expired lifecycle
//   - Coordinator: vote casting, tallies and resolution under a Strategy
//   - ReputationTracker: per-agent voting track record and decay
//   - Registry: extension module identities
//   - Executor: applies approved proposals to the store
//
// All state lives in the store, so proposals and votes survive restarts.
// Casting a vote, tallying and resolving are serialized per proposal inside
// the process, and resolution itself is a conditional write in the store,
// so a proposal resolves exactly once even when several processes share
// the database file.
package governance
