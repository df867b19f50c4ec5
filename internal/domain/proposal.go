package domain

// ─── Governance Proposals ───────────────────────────────────────────────────

// ProposalType selects what a proposal can do when approved.
type ProposalType string

const (
	ProposalGeneric      ProposalType = "generic"       // Records an outcome only
	ProposalConfigChange ProposalType = "config_change" // Executes a parameter change
)

// ProposalStatus represents the lifecycle of a proposal:
// open → closed → executed | rejected | approved_noop.
type ProposalStatus string

const (
	ProposalOpen         ProposalStatus = "open"
	ProposalClosed       ProposalStatus = "closed"
	ProposalExecuted     ProposalStatus = "executed"
	ProposalRejected     ProposalStatus = "rejected"
	ProposalApprovedNoOp ProposalStatus = "approved_noop"
)

// IsFinal reports whether no further transition is possible.
func (s ProposalStatus) IsFinal() bool {
	return s == ProposalExecuted || s == ProposalRejected || s == ProposalApprovedNoOp
}

// VoteChoice represents a voter's decision.
type VoteChoice string

const (
	VoteYes VoteChoice = "yes"
	VoteNo  VoteChoice = "no"
)

// Outcome is the result of a tally.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Ballot is the counted vote of one voter on one proposal.
type Ballot struct {
	Voter   string     `json:"voter"`
	Choice  VoteChoice `json:"choice"`
	EventID string     `json:"event_id"`
	Clock   uint64     `json:"clock"`
}

// VoteTally summarizes weighted voting at close time. Weights are
// fixed-point micro-units so comparisons are exact on every node.
type VoteTally struct {
	YesWeight  int64   `json:"yes_weight_micro"`
	NoWeight   int64   `json:"no_weight_micro"`
	YesVoters  int     `json:"yes_voters"`
	NoVoters   int     `json:"no_voters"`
	Outcome    Outcome `json:"outcome"`
	LogBase    float64 `json:"log_base"`
	ClosedBy   string  `json:"closed_by"`
	CloseClock uint64  `json:"close_clock"`
}

// ExecutionResult records what the executor did with an approved proposal.
type ExecutionResult struct {
	Success  bool        `json:"success"`
	Key      string      `json:"key,omitempty"`
	OldValue *ParamValue `json:"old_value,omitempty"`
	NewValue *ParamValue `json:"new_value,omitempty"`
	Version  uint64      `json:"version,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// Proposal is derived from proposal_created / vote_cast / proposal_closed.
type Proposal struct {
	ID          string            `json:"id"`
	Channel     string            `json:"channel"`
	Type        ProposalType      `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Author      string            `json:"author"`
	Key         string            `json:"key,omitempty"`
	Value       *ParamValue       `json:"value,omitempty"`
	Status      ProposalStatus    `json:"status"`
	Votes       map[string]Ballot `json:"votes"`

	// Config version and vote weight base active when voting opened.
	OpenedConfigVersion uint64  `json:"opened_config_version"`
	LogBase             float64 `json:"log_base"`

	CreatedAt       int64            `json:"created_at"`
	CreatedClock    uint64           `json:"created_clock"`
	ClosedAt        int64            `json:"closed_at,omitempty"`
	Tally           *VoteTally       `json:"tally,omitempty"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
}

// Clone returns a deep copy safe to hand to callers.
func (p *Proposal) Clone() *Proposal {
	cp := *p
	cp.Votes = make(map[string]Ballot, len(p.Votes))
	for k, v := range p.Votes {
		cp.Votes[k] = v
	}
	if p.Value != nil {
		v := *p.Value
		cp.Value = &v
	}
	if p.Tally != nil {
		t := *p.Tally
		cp.Tally = &t
	}
	if p.ExecutionResult != nil {
		r := *p.ExecutionResult
		cp.ExecutionResult = &r
	}
	return &cp
}
