// Package schema holds the value types shared by the store and the
// governance layer: agent identities, node and edge kinds, operations,
// graph entities, events, capability records, proposals, votes and
// reputation records.
//
// Types here carry no behavior beyond parsing, validation of their own
// shape, and conversion to and from event snapshots.
package schema
