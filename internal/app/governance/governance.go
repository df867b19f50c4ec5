// Package governance implements reputation-weighted voting on proposals.
//
// Any author may open a proposal. Voters cast yes/no ballots, the latest
// ballot per voter by (clock, id) counts, and a proposal_closed event
// tallies the weights. An approved config_change is executed against the
// Config Registry; a generic proposal only records its outcome.
package governance

import (
	"sort"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// ─── Collaborators ──────────────────────────────────────────────────────────

// Reputation is the slice of the Balance Engine that voting needs.
type Reputation interface {
	Reputation(account string) int64
	AwardReputation(account string, n int64)
}

// Config is the Config Registry as seen by proposals: read the active
// values and execute an approved change.
type Config interface {
	Version() uint64
	Int(key string) int64
	Float(key string) float64
	Execute(proposalID, key string, v domain.ParamValue, at int64) domain.ExecutionResult
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Engine holds derived proposals. Like the ledger, it is owned by a single
// derivation pass and is not safe for concurrent use.
type Engine struct {
	proposals map[string]*domain.Proposal
}

// NewEngine creates an empty governance engine.
func NewEngine() *Engine {
	return &Engine{proposals: make(map[string]*domain.Proposal)}
}

// Proposal returns a copy of a proposal.
func (e *Engine) Proposal(id string) (*domain.Proposal, bool) {
	p, ok := e.proposals[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Proposals returns copies of all proposals sorted by id.
// Pass "" to get every status.
func (e *Engine) Proposals(status domain.ProposalStatus) []*domain.Proposal {
	out := make([]*domain.Proposal, 0, len(e.proposals))
	for _, p := range e.proposals {
		if status == "" || p.Status == status {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ─── Proposal Lifecycle ─────────────────────────────────────────────────────

// Create opens a proposal, pinning the config version and vote weight base
// active at this event.
func (e *Engine) Create(ev domain.Event, p *domain.ProposalCreatedPayload, cfg Config) error {
	if _, exists := e.proposals[p.ProposalID]; exists {
		return domain.Inconsistent(ev.ID, domain.ErrProposalExists, "proposal %s", p.ProposalID)
	}

	prop := &domain.Proposal{
		ID:                  p.ProposalID,
		Channel:             ev.Channel,
		Type:                p.Kind,
		Title:               p.Title,
		Description:         p.Description,
		Author:              ev.Author,
		Key:                 p.Key,
		Status:              domain.ProposalOpen,
		Votes:               make(map[string]domain.Ballot),
		OpenedConfigVersion: cfg.Version(),
		LogBase:             cfg.Float(domain.ParamVoteWeightLogBase),
		CreatedAt:           ev.Time,
		CreatedClock:        ev.Clock,
	}
	if p.Value != nil {
		v := *p.Value
		prop.Value = &v
	}
	e.proposals[prop.ID] = prop
	return nil
}

// CastVote records a ballot. A voter's later ballot by (clock, id) replaces
// the earlier one; an older ballot arriving late is superseded and ignored.
// The first counted ballot per voter and proposal earns vote reputation.
func (e *Engine) CastVote(ev domain.Event, p *domain.VoteCastPayload, cfg Config, rep Reputation) error {
	prop, err := e.lookup(ev, p.ProposalID)
	if err != nil {
		return err
	}
	if prop.Status != domain.ProposalOpen {
		return domain.Inconsistent(ev.ID, domain.ErrVotingClosed, "proposal %s is %s", prop.ID, prop.Status)
	}

	ballot := domain.Ballot{Voter: ev.Author, Choice: p.Choice, EventID: ev.ID, Clock: ev.Clock}
	existing, voted := prop.Votes[ev.Author]
	if voted {
		current := domain.OrderKey{Clock: existing.Clock, ID: existing.EventID}
		if !current.Less(ev.Key()) {
			return nil
		}
	}
	prop.Votes[ev.Author] = ballot
	if !voted {
		rep.AwardReputation(ev.Author, cfg.Int(domain.ParamProposalVoteRep))
	}
	return nil
}

// Close tallies the proposal and resolves it:
// rejected on a losing or tied vote, approved_noop for an approved generic
// proposal, and for an approved config_change either executed or rejected
// with the validation failure recorded.
func (e *Engine) Close(ev domain.Event, p *domain.ProposalClosedPayload, cfg Config, rep Reputation) error {
	prop, err := e.lookup(ev, p.ProposalID)
	if err != nil {
		return err
	}
	if prop.Status != domain.ProposalOpen {
		return domain.Inconsistent(ev.ID, domain.ErrVotingClosed, "proposal %s is already %s", prop.ID, prop.Status)
	}

	tally := Tally(prop, rep)
	tally.ClosedBy = ev.Author
	tally.CloseClock = ev.Clock
	prop.Tally = &tally
	prop.ClosedAt = ev.Time
	prop.Status = domain.ProposalClosed

	switch {
	case tally.Outcome != domain.OutcomeApproved:
		prop.Status = domain.ProposalRejected
	case prop.Type == domain.ProposalGeneric:
		prop.Status = domain.ProposalApprovedNoOp
	default:
		res := cfg.Execute(prop.ID, prop.Key, *prop.Value, ev.Time)
		prop.ExecutionResult = &res
		if res.Success {
			prop.Status = domain.ProposalExecuted
		} else {
			prop.Status = domain.ProposalRejected
		}
	}
	return nil
}

func (e *Engine) lookup(ev domain.Event, id string) (*domain.Proposal, error) {
	prop, ok := e.proposals[id]
	if !ok {
		return nil, domain.Inconsistent(ev.ID, domain.ErrMissingDependency, "proposal %s not created", id)
	}
	if prop.Channel != ev.Channel {
		return nil, domain.Inconsistent(ev.ID, domain.ErrProposalNotFound, "proposal %s lives in channel %s", id, prop.Channel)
	}
	return prop, nil
}
