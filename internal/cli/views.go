package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/roach88/stategraph/internal/governance"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
	"github.com/roach88/stategraph/internal/value"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	heading    = color.New(color.Bold)
	faint      = color.New(color.Faint)
)

func statusColor(s schema.ProposalStatus) *color.Color {
	switch s {
	case schema.StatusPending:
		return color.New(color.FgYellow)
	case schema.StatusApproved:
		return color.New(color.FgGreen)
	case schema.StatusRejected:
		return color.New(color.FgRed)
	}
	return faint
}

func modeColor(m schema.CapabilityMode) *color.Color {
	switch m {
	case schema.ModeDirect:
		return color.New(color.FgGreen)
	case schema.ModeProposal:
		return color.New(color.FgYellow)
	}
	return faint
}

// compact renders v as canonical JSON, shortened to max runes.
func compact(v value.Value, max int) string {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return "<unencodable>"
	}
	s := string(data)
	if r := []rune(s); max > 0 && len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// message is a one-line confirmation.
type message struct {
	Message string `json:"message" yaml:"message"`
}

func (m message) writeText(w io.Writer) {
	fmt.Fprintln(w, m.Message)
}

// nodeView is a node with its content as plain data, so JSON and YAML
// output show the value tree rather than its Go representation.
type nodeView struct {
	ID        string          `json:"id" yaml:"id"`
	Kind      schema.NodeKind `json:"kind" yaml:"kind"`
	Content   any             `json:"content" yaml:"content"`
	Metadata  map[string]any  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"updated_at"`

	node schema.Node
}

func newNodeView(n schema.Node) nodeView {
	v := nodeView{
		ID:        n.ID,
		Kind:      n.Kind,
		Content:   value.ToAny(n.Content),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		node:      n,
	}
	if len(n.Metadata) > 0 {
		v.Metadata = value.ToAny(n.Metadata).(map[string]any)
	}
	return v
}

func (v nodeView) writeText(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", heading.Sprint(v.ID), faint.Sprintf("[%s]", v.Kind))
	fmt.Fprintf(w, "  content:  %s\n", compact(v.node.Content, 0))
	if len(v.node.Metadata) > 0 {
		fmt.Fprintf(w, "  metadata: %s\n", compact(v.node.Metadata, 0))
	}
	fmt.Fprintf(w, "  created:  %s\n", formatTime(v.CreatedAt))
	fmt.Fprintf(w, "  updated:  %s\n", formatTime(v.UpdatedAt))
}

type nodeList []nodeView

func newNodeList(nodes []schema.Node) nodeList {
	out := nodeList{}
	for _, n := range nodes {
		out = append(out, newNodeView(n))
	}
	return out
}

func (l nodeList) writeText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No nodes.")
		return
	}
	for _, v := range l {
		fmt.Fprintf(w, "%-38s %-13s %s\n", v.ID, v.Kind, compact(v.node.Content, 60))
	}
}

type edgeView struct {
	schema.Edge `yaml:",inline"`
}

func (v edgeView) writeText(w io.Writer) {
	fmt.Fprintln(w, edgeLine(v.Edge))
}

func edgeLine(e schema.Edge) string {
	line := fmt.Sprintf("%s  %s -[%s]-> %s", e.ID, e.From, e.Kind, e.To)
	if e.Weight != nil {
		line += fmt.Sprintf(" (weight %g)", *e.Weight)
	}
	return line
}

type edgeList []schema.Edge

func (l edgeList) writeText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No edges.")
		return
	}
	for _, e := range l {
		fmt.Fprintln(w, edgeLine(e))
	}
}

// eventView is an event with snapshots as plain data and the changed
// content keys precomputed.
type eventView struct {
	Seq       int64            `json:"seq" yaml:"seq"`
	Agent     schema.AgentID   `json:"agent" yaml:"agent"`
	Operation schema.Operation `json:"operation" yaml:"operation"`
	Target    string           `json:"target" yaml:"target"`
	Before    any              `json:"before,omitempty" yaml:"before,omitempty"`
	After     any              `json:"after,omitempty" yaml:"after,omitempty"`
	Changed   []string         `json:"changed,omitempty" yaml:"changed,omitempty"`
	Timestamp time.Time        `json:"timestamp" yaml:"timestamp"`

	event schema.Event
}

func newEventView(ev schema.Event) eventView {
	v := eventView{
		Seq:       ev.Seq,
		Agent:     ev.Agent,
		Operation: ev.Operation,
		Target:    ev.Target.String(),
		Timestamp: ev.Timestamp,
		event:     ev,
	}
	if ev.Before != nil {
		v.Before = value.ToAny(ev.Before)
	}
	if ev.After != nil {
		v.After = value.ToAny(ev.After)
	}
	if ev.Target.Kind == schema.TargetNode {
		v.Changed = ev.ChangedKeys()
	}
	return v
}

type eventList struct {
	Events []eventView `json:"events" yaml:"events"`

	// withDiff renders changed keys under each event.
	withDiff bool
}

func newEventList(events []schema.Event, withDiff bool) eventList {
	l := eventList{Events: []eventView{}, withDiff: withDiff}
	for _, ev := range events {
		l.Events = append(l.Events, newEventView(ev))
	}
	return l
}

func (l eventList) writeText(w io.Writer) {
	if len(l.Events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	for _, v := range l.Events {
		fmt.Fprintln(w, v.event.Describe())
		if l.withDiff && len(v.Changed) > 0 {
			fmt.Fprintf(w, "    changed: %s\n", strings.Join(v.Changed, ", "))
		}
	}
}

type proposalView struct {
	ID         int64                 `json:"id" yaml:"id"`
	Proposer   schema.AgentID        `json:"proposer" yaml:"proposer"`
	Operation  schema.Operation      `json:"operation" yaml:"operation"`
	Target     string                `json:"target" yaml:"target"`
	Payload    any                   `json:"payload,omitempty" yaml:"payload,omitempty"`
	Rationale  string                `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Status     schema.ProposalStatus `json:"status" yaml:"status"`
	CreatedAt  time.Time             `json:"created_at" yaml:"created_at"`
	ResolvedAt *time.Time            `json:"resolved_at,omitempty" yaml:"resolved_at,omitempty"`
	ExecutedAt *time.Time            `json:"executed_at,omitempty" yaml:"executed_at,omitempty"`

	payload value.Value
}

func newProposalView(p schema.Proposal) proposalView {
	v := proposalView{
		ID:         p.ID,
		Proposer:   p.Proposer,
		Operation:  p.Operation,
		Target:     p.Target.String(),
		Rationale:  p.Rationale,
		Status:     p.Status,
		CreatedAt:  p.CreatedAt,
		ResolvedAt: p.ResolvedAt,
		ExecutedAt: p.ExecutedAt,
		payload:    p.Payload,
	}
	if p.Payload != nil {
		if _, isNull := p.Payload.(value.Null); !isNull {
			v.Payload = value.ToAny(p.Payload)
		}
	}
	return v
}

func (v proposalView) writeText(w io.Writer) {
	fmt.Fprintf(w, "%s %s %s by %s  %s\n",
		heading.Sprintf("#%d", v.ID), strings.ToUpper(string(v.Operation)), v.Target, v.Proposer,
		statusColor(v.Status).Sprint(v.Status))
	if v.Payload != nil {
		fmt.Fprintf(w, "  payload:   %s\n", compact(v.payload, 0))
	}
	if v.Rationale != "" {
		fmt.Fprintf(w, "  rationale: %s\n", v.Rationale)
	}
	fmt.Fprintf(w, "  created:   %s\n", formatTime(v.CreatedAt))
	if v.ResolvedAt != nil {
		fmt.Fprintf(w, "  resolved:  %s\n", formatTime(*v.ResolvedAt))
	}
	if v.ExecutedAt != nil {
		fmt.Fprintf(w, "  executed:  %s\n", formatTime(*v.ExecutedAt))
	}
}

type proposalList []proposalView

func newProposalList(ps []schema.Proposal) proposalList {
	out := proposalList{}
	for _, p := range ps {
		out = append(out, newProposalView(p))
	}
	return out
}

func (l proposalList) writeText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No proposals.")
		return
	}
	for _, v := range l {
		fmt.Fprintf(w, "#%-4d %s %-6s %-40s %s\n",
			v.ID, statusColor(v.Status).Sprintf("%-9s", v.Status), v.Operation, v.Target, v.Proposer)
	}
}

// votesView is the ballot list of a proposal with its weighted tally.
type votesView struct {
	Proposal int64            `json:"proposal" yaml:"proposal"`
	Status   string           `json:"status" yaml:"status"`
	Strategy string           `json:"strategy" yaml:"strategy"`
	Votes    []schema.Vote    `json:"votes" yaml:"votes"`
	Tally    governance.Tally `json:"tally" yaml:"tally"`
}

func (v votesView) writeText(w io.Writer) {
	fmt.Fprintf(w, "Proposal #%d (%s, %s)\n", v.Proposal, v.Status, v.Strategy)
	if len(v.Votes) == 0 {
		fmt.Fprintln(w, "  no votes")
	}
	for _, vote := range v.Votes {
		line := fmt.Sprintf("  %-8s %s", vote.Decision, vote.Voter)
		if vote.Reason != "" {
			line += ": " + vote.Reason
		}
		fmt.Fprintln(w, line)
	}
	t := v.Tally
	fmt.Fprintf(w, "Tally: %d approve (%g), %d reject (%g), %d abstain\n",
		t.Approvals, t.ApproveWeight, t.Rejections, t.RejectWeight, t.Abstentions)
}

type voteResultView struct {
	governance.VoteResult `yaml:",inline"`
}

func (v voteResultView) writeText(w io.Writer) {
	r := v.VoteResult
	verb := "Recorded"
	if r.Replaced {
		verb = "Replaced"
	}
	fmt.Fprintf(w, "%s %s vote by %s on proposal #%d\n", verb, r.Vote.Decision, r.Vote.Voter, r.Proposal.ID)
	fmt.Fprintf(w, "Tally: %d approve (%g), %d reject (%g), %d abstain\n",
		r.Tally.Approvals, r.Tally.ApproveWeight, r.Tally.Rejections, r.Tally.RejectWeight, r.Tally.Abstentions)
	if r.Resolved {
		fmt.Fprintf(w, "Proposal #%d %s\n", r.Proposal.ID, statusColor(r.Proposal.Status).Sprint(r.Proposal.Status))
	}
}

type executionView struct {
	Proposal proposalView `json:"proposal" yaml:"proposal"`
	Node     *nodeView    `json:"node,omitempty" yaml:"node,omitempty"`
	Edge     *schema.Edge `json:"edge,omitempty" yaml:"edge,omitempty"`
}

func newExecutionView(r governance.ExecutionResult) executionView {
	v := executionView{Proposal: newProposalView(r.Proposal), Edge: r.Edge}
	if r.Node != nil {
		n := newNodeView(*r.Node)
		v.Node = &n
	}
	return v
}

func (v executionView) writeText(w io.Writer) {
	fmt.Fprintf(w, "Executed proposal #%d (%s %s)\n", v.Proposal.ID, v.Proposal.Operation, v.Proposal.Target)
	switch {
	case v.Node != nil:
		v.Node.writeText(w)
	case v.Edge != nil:
		fmt.Fprintln(w, edgeLine(*v.Edge))
	}
}

type agentList []governance.AgentInfo

func (l agentList) writeText(w io.Writer) {
	fmt.Fprintf(w, "%-20s %-9s %-5s %s\n", "AGENT", "MODE", "VOTE", "WEIGHT")
	for _, info := range l {
		c := info.Capabilities
		name := string(info.Agent)
		if info.Module != nil && info.Module.RetiredAt != nil {
			name += " (retired)"
		}
		vote := "no"
		if c.CanVote {
			vote = "yes"
		}
		fmt.Fprintf(w, "%-20s %s %-5s %g\n", name, modeColor(c.Mode).Sprintf("%-9s", c.Mode), vote, c.VoteWeight)
	}
}

// agentView is one agent's capabilities and reputation.
type agentView struct {
	Agent        schema.AgentID      `json:"agent" yaml:"agent"`
	Module       *schema.Module      `json:"module,omitempty" yaml:"module,omitempty"`
	Capabilities schema.Capabilities `json:"capabilities" yaml:"capabilities"`
	Reputation   schema.Reputation   `json:"reputation" yaml:"reputation"`
	Accuracy     float64             `json:"accuracy" yaml:"accuracy"`
}

func (v agentView) writeText(w io.Writer) {
	c := v.Capabilities
	fmt.Fprintln(w, heading.Sprint(v.Agent))
	if v.Module != nil {
		fmt.Fprintf(w, "  module:     %s", v.Module.Name)
		if v.Module.Description != "" {
			fmt.Fprintf(w, " - %s", v.Module.Description)
		}
		if v.Module.RetiredAt != nil {
			fmt.Fprintf(w, " (retired %s)", formatTime(*v.Module.RetiredAt))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  mode:       %s\n", modeColor(c.Mode).Sprint(c.Mode))
	fmt.Fprintf(w, "  can vote:   %t\n", c.CanVote)
	fmt.Fprintf(w, "  weight:     %g\n", c.VoteWeight)
	fmt.Fprintf(w, "  reputation: %.2f (%d/%d correct, %.0f%%)\n",
		v.Reputation.Score, v.Reputation.CorrectVotes, v.Reputation.TotalVotes, v.Accuracy*100)
}

type leaderboardView struct {
	Sort    string              `json:"sort" yaml:"sort"`
	Entries []schema.Reputation `json:"entries" yaml:"entries"`
}

func (v leaderboardView) writeText(w io.Writer) {
	if len(v.Entries) == 0 {
		fmt.Fprintln(w, "No reputation records.")
		return
	}
	fmt.Fprintf(w, "%-4s %-20s %8s %9s %6s\n", "RANK", "AGENT", "SCORE", "ACCURACY", "VOTES")
	for i, r := range v.Entries {
		rank := fmt.Sprintf("%-4d", i+1)
		if i == 0 {
			rank = color.New(color.FgYellow, color.Bold).Sprint(rank)
		}
		fmt.Fprintf(w, "%s %-20s %8.2f %8.0f%% %6d\n", rank, r.Agent, r.Score, r.Accuracy()*100, r.TotalVotes)
	}
}

type statsView struct {
	Path string `json:"path" yaml:"path"`
	store.Stats `yaml:",inline"`
}

func (v statsView) writeText(w io.Writer) {
	s := v.Stats
	fmt.Fprintf(w, "Database:  %s\n", v.Path)
	fmt.Fprintf(w, "Nodes:     %d\n", s.Nodes)
	fmt.Fprintf(w, "Edges:     %d\n", s.Edges)
	fmt.Fprintf(w, "Events:    %d\n", s.Events)
	fmt.Fprintf(w, "Proposals: %d (%d pending)\n", s.Proposals, s.PendingProposals)
	fmt.Fprintf(w, "Votes:     %d\n", s.Votes)
	fmt.Fprintf(w, "Modules:   %d\n", s.Modules)
}

type verifyView struct {
	OK                 bool `json:"ok" yaml:"ok"`
	store.VerifyReport `yaml:",inline"`
}

func (v verifyView) writeText(w io.Writer) {
	if v.OK {
		fmt.Fprintf(w, "OK: %d events replay to the current graph\n", v.Events)
		return
	}
	fmt.Fprintf(w, "%s: tables differ from the replayed log (%d events)\n", errorLabel.Sprint("MISMATCH"), v.Events)
	for _, group := range []struct {
		label string
		ids   []string
	}{
		{"missing node", v.MissingNodes},
		{"extra node", v.ExtraNodes},
		{"changed node", v.ChangedNodes},
		{"missing edge", v.MissingEdges},
		{"extra edge", v.ExtraEdges},
	} {
		for _, id := range group.ids {
			fmt.Fprintf(w, "  %s %s\n", group.label, id)
		}
	}
}
