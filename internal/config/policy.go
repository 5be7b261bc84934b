package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/governance"
	"github.com/roach88/stategraph/internal/schema"
)

//go:embed policy_schema.cue
var policySchema string

// Policy is the decoded governance policy file. Absent sections keep the
// built-in defaults.
type Policy struct {
	Strategy            *governance.StrategyConfig    `json:"strategy,omitempty"`
	ReputationScaling   *governance.ReputationScaling `json:"reputation_scaling,omitempty"`
	ReputationScore     *governance.ScorePolicy       `json:"reputation_score,omitempty"`
	ProposalExpiry      string                        `json:"proposal_expiry,omitempty"`
	AllowRuntimeChanges *bool                         `json:"allow_runtime_changes,omitempty"`
	AllowSelfVote       *bool                         `json:"allow_self_vote,omitempty"`
	Capabilities        map[string]CapabilityPolicy   `json:"capabilities,omitempty"`

	// Source is the file the policy was read from, empty for defaults.
	Source string `json:"-"`
}

// CapabilityPolicy is one per-agent override in the policy file.
type CapabilityPolicy struct {
	Mode       string  `json:"mode"`
	CanVote    bool    `json:"can_vote"`
	VoteWeight float64 `json:"vote_weight"`
}

// LoadPolicy reads the CUE policy at path. An empty path yields the
// built-in defaults; a path that does not exist is an error.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return &Policy{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.InvalidInputf("load policy", "policy file not found: %s", path)
		}
		return nil, fault.Persist("load policy", err)
	}
	p, err := ParsePolicy(data, path)
	if err != nil {
		return nil, err
	}
	p.Source = path
	return p, nil
}

// ParsePolicy unifies src with the embedded policy schema and decodes the
// result. filename is used in error positions.
func ParsePolicy(src []byte, filename string) (*Policy, error) {
	const op = "parse policy"
	ctx := cuecontext.New()

	def := ctx.CompileString(policySchema, cue.Filename("policy_schema.cue")).
		LookupPath(cue.ParsePath("#Policy"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("%s: embedded schema: %w", op, err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fault.InvalidInputf(op, "%s", formatCUEError(err))
	}
	v = def.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fault.InvalidInputf(op, "%s", formatCUEError(err))
	}

	var p Policy
	if err := v.Decode(&p); err != nil {
		return nil, fault.InvalidInputf(op, "%s", formatCUEError(err))
	}
	if p.ProposalExpiry != "" {
		if _, err := ParseDuration(p.ProposalExpiry); err != nil {
			return nil, fault.InvalidInputf(op, "proposal_expiry: %v", err)
		}
	}
	for agent := range p.Capabilities {
		if _, err := schema.ParseAgentID(agent); err != nil {
			return nil, fault.InvalidInputf(op, "capabilities: %v", err)
		}
	}
	return &p, nil
}

// Settings overlays the policy on governance.DefaultSettings.
func (p *Policy) Settings() (governance.Settings, error) {
	s := governance.DefaultSettings()
	if p.Strategy != nil {
		s.Strategy = *p.Strategy
	}
	if p.ReputationScaling != nil {
		s.Scaling = *p.ReputationScaling
	}
	if p.ReputationScore != nil {
		s.Scoring = *p.ReputationScore
	}
	if p.ProposalExpiry != "" {
		d, err := ParseDuration(p.ProposalExpiry)
		if err != nil {
			return governance.Settings{}, fault.InvalidInputf("policy settings", "proposal_expiry: %v", err)
		}
		s.ProposalExpiry = d
	}
	if p.AllowRuntimeChanges != nil {
		s.AllowRuntimeChanges = *p.AllowRuntimeChanges
	}
	if p.AllowSelfVote != nil {
		s.AllowSelfVote = *p.AllowSelfVote
	}

	agents := make([]string, 0, len(p.Capabilities))
	for a := range p.Capabilities {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	for _, a := range agents {
		id, err := schema.ParseAgentID(a)
		if err != nil {
			return governance.Settings{}, fault.InvalidInputf("policy settings", "capabilities: %v", err)
		}
		c := p.Capabilities[a]
		s.Capabilities = append(s.Capabilities, schema.Capabilities{
			Agent:      id,
			Mode:       schema.CapabilityMode(c.Mode),
			CanVote:    c.CanVote,
			VoteWeight: c.VoteWeight,
		})
	}
	return s, nil
}

// ParseDuration accepts Go durations plus a whole-day form such as "7d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q (use e.g. 7d, 36h, 90m)", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use e.g. 7d, 36h, 90m)", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	return d, nil
}

// formatCUEError renders the first CUE error with its file position.
func formatCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 && positions[0].IsValid() {
		pos := positions[0]
		return fmt.Sprintf("%s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), first.Error())
	}
	return first.Error()
}
