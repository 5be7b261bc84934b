package store

import (
	"context"
	"fmt"

	"github.com/roach88/stategraph/internal/fault"
)

// Stats summarizes the size of each table.
type Stats struct {
	Nodes            int64 `json:"nodes" yaml:"nodes"`
	Edges            int64 `json:"edges" yaml:"edges"`
	Events           int64 `json:"events" yaml:"events"`
	Proposals        int64 `json:"proposals" yaml:"proposals"`
	PendingProposals int64 `json:"pending_proposals" yaml:"pending_proposals"`
	Votes            int64 `json:"votes" yaml:"votes"`
	Modules          int64 `json:"modules" yaml:"modules"`
}

// Stats counts rows in every table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM nodes`, &st.Nodes},
		{`SELECT COUNT(*) FROM edges`, &st.Edges},
		{`SELECT COUNT(*) FROM events`, &st.Events},
		{`SELECT COUNT(*) FROM proposals`, &st.Proposals},
		{`SELECT COUNT(*) FROM proposals WHERE status = 'pending'`, &st.PendingProposals},
		{`SELECT COUNT(*) FROM votes`, &st.Votes},
		{`SELECT COUNT(*) FROM modules WHERE retired_at IS NULL`, &st.Modules},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, fault.Persist("stats", fmt.Errorf("%s: %w", c.query, err))
		}
	}
	return st, nil
}
