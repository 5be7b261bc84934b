package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/roach88/stategraph/internal/config"
	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

// parseContent reads node content from the command line. Text that parses
// as JSON becomes the matching value tree; anything else is kept as a
// plain string, so `node create note "buy milk"` needs no quoting.
func parseContent(s string) value.Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return value.String(s)
	}
	if v, err := value.Parse([]byte(trimmed)); err == nil {
		return v
	}
	return value.String(s)
}

// parseMetadata reads a metadata object. An empty string means no change.
func parseMetadata(op, s string) (value.Object, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	obj, err := value.ParseObject([]byte(s))
	if err != nil {
		return nil, fault.InvalidInputf(op, "metadata: %v", err)
	}
	return obj, nil
}

func parseProposalID(op, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fault.InvalidInputf(op, "invalid proposal id %q", s)
	}
	return id, nil
}

func parseAgent(op, s string) (schema.AgentID, error) {
	a, err := schema.ParseAgentID(s)
	if err != nil {
		return "", fault.InvalidInputf(op, "%v", err)
	}
	return a, nil
}

func parseNodeKind(op, s string) (schema.NodeKind, error) {
	if s == "" {
		return "", nil
	}
	k, err := schema.ParseNodeKind(s)
	if err != nil {
		return "", fault.InvalidInputf(op, "%v", err)
	}
	return k, nil
}

func parseEdgeKind(op, s string) (schema.EdgeKind, error) {
	if s == "" {
		return "", nil
	}
	k, err := schema.ParseEdgeKind(s)
	if err != nil {
		return "", fault.InvalidInputf(op, "%v", err)
	}
	return k, nil
}

func parseDuration(op, s string) (time.Duration, error) {
	d, err := config.ParseDuration(s)
	if err != nil {
		return 0, fault.InvalidInputf(op, "%v", err)
	}
	return d, nil
}
