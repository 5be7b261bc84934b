package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs generates predictable ids ("n-0001", "n-0002", ...) so
// golden output does not depend on random UUIDs.
//
// Thread-safety: Next is safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates a generator. An empty prefix uses "id".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Next returns the next id.
func (g *SequentialIDs) Next() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}
