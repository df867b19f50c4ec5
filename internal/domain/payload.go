package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxSafeInteger is the largest integer whose float64 neighbours are all
// distinct, so RFC 8785 canonical JSON encodes every value up to it
// injectively. Beyond it two signed values can share one canonical form.
const MaxSafeInteger int64 = 1<<53 - 1

// MaxAmountSP caps any single amount so reward*basis-points never overflows
// and the amount stays below MaxSafeInteger.
const MaxAmountSP int64 = 100_000_000_000_000

// Payload is implemented by every typed event body.
type Payload interface {
	// Validate checks shape only; it never consults derived state.
	Validate(ev Event) error
}

type TaskCreatedPayload struct {
	TaskID  string `json:"task_id"`
	Creator string `json:"creator,omitempty"` // defaults to the event author
	Reward  int64  `json:"reward"`
	Title   string `json:"title,omitempty"`
}

// FundingAccount resolves the account escrowing the reward.
func (p TaskCreatedPayload) FundingAccount(ev Event) string {
	if p.Creator == "" {
		return ev.Author
	}
	return p.Creator
}

func (p TaskCreatedPayload) Validate(ev Event) error {
	if p.TaskID == "" {
		return errors.New("task_id is required")
	}
	if err := checkAmount("reward", p.Reward); err != nil {
		return err
	}
	creator := p.FundingAccount(ev)
	switch {
	case IsTreasuryAccount(creator):
		if creator != TreasuryAccount(ev.Channel) {
			return fmt.Errorf("treasury creator %q must fund from its own channel %q", creator, ev.Channel)
		}
	case creator != ev.Author:
		return fmt.Errorf("user creator %q must be the event author", creator)
	}
	return nil
}

type TaskClaimedPayload struct {
	TaskID string `json:"task_id"`
}

func (p TaskClaimedPayload) Validate(Event) error { return requireTask(p.TaskID) }

type TaskProgressedPayload struct {
	TaskID string `json:"task_id"`
	Note   string `json:"note,omitempty"`
}

func (p TaskProgressedPayload) Validate(Event) error { return requireTask(p.TaskID) }

type TaskCompletedPayload struct {
	TaskID string `json:"task_id"`
}

func (p TaskCompletedPayload) Validate(Event) error { return requireTask(p.TaskID) }

type TaskCancelledPayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

func (p TaskCancelledPayload) Validate(Event) error { return requireTask(p.TaskID) }

// TransactionPayload moves SP from the event author to To. No tax applies.
type TransactionPayload struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo,omitempty"`
}

func (p TransactionPayload) Validate(ev Event) error {
	if p.To == "" {
		return errors.New("to is required")
	}
	if strings.HasPrefix(p.To, EscrowPrefix) {
		return errors.New("escrow accounts cannot receive transfers")
	}
	if p.To == ev.Author {
		return errors.New("cannot transfer to self")
	}
	return checkAmount("amount", p.Amount)
}

type ProposalCreatedPayload struct {
	ProposalID  string       `json:"proposal_id"`
	Kind        ProposalType `json:"kind"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Key         string       `json:"key,omitempty"`
	Value       *ParamValue  `json:"value,omitempty"`
}

func (p ProposalCreatedPayload) Validate(Event) error {
	if p.ProposalID == "" {
		return errors.New("proposal_id is required")
	}
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("title is required")
	}
	switch p.Kind {
	case ProposalGeneric:
		if p.Key != "" || p.Value != nil {
			return errors.New("generic proposals carry no parameter change")
		}
	case ProposalConfigChange:
		if p.Key == "" || p.Value == nil {
			return errors.New("config_change requires key and value")
		}
		if p.Value.Kind == ParamInt && (p.Value.Int > MaxSafeInteger || p.Value.Int < -MaxSafeInteger) {
			return fmt.Errorf("value %d exceeds ±%d", p.Value.Int, MaxSafeInteger)
		}
	default:
		return fmt.Errorf("unknown proposal kind %q", p.Kind)
	}
	return nil
}

type VoteCastPayload struct {
	ProposalID string     `json:"proposal_id"`
	Choice     VoteChoice `json:"choice"`
}

func (p VoteCastPayload) Validate(Event) error {
	if p.ProposalID == "" {
		return errors.New("proposal_id is required")
	}
	if p.Choice != VoteYes && p.Choice != VoteNo {
		return fmt.Errorf("choice must be yes or no, got %q", p.Choice)
	}
	return nil
}

type ProposalClosedPayload struct {
	ProposalID string `json:"proposal_id"`
}

func (p ProposalClosedPayload) Validate(Event) error {
	if p.ProposalID == "" {
		return errors.New("proposal_id is required")
	}
	return nil
}

// DecodePayload parses and shape-validates an event body. Unknown fields are
// rejected so that two nodes never interpret the same bytes differently.
func DecodePayload(ev Event) (Payload, error) {
	var p Payload
	switch ev.Type {
	case EventTaskCreated:
		p = &TaskCreatedPayload{}
	case EventTaskClaimed:
		p = &TaskClaimedPayload{}
	case EventTaskProgressed:
		p = &TaskProgressedPayload{}
	case EventTaskCompleted:
		p = &TaskCompletedPayload{}
	case EventTaskCancelled:
		p = &TaskCancelledPayload{}
	case EventTransaction:
		p = &TransactionPayload{}
	case EventProposalCreated:
		p = &ProposalCreatedPayload{}
	case EventVoteCast:
		p = &VoteCastPayload{}
	case EventProposalClosed:
		p = &ProposalClosedPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}

	dec := json.NewDecoder(bytes.NewReader(ev.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := p.Validate(ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return p, nil
}

// ValidateEnvelope checks the fields every event must carry.
func ValidateEnvelope(ev Event) error {
	switch {
	case ev.ID == "":
		return errors.New("id is required")
	case ev.Channel == "":
		return errors.New("channel is required")
	case ev.Author == "":
		return errors.New("author is required")
	case ev.Clock == 0:
		return errors.New("clock must be positive")
	case ev.Time > MaxSafeInteger || ev.Time < -MaxSafeInteger:
		return fmt.Errorf("time %d exceeds ±%d", ev.Time, MaxSafeInteger)
	case !ev.Type.IsValid():
		return fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	case strings.Contains(ev.Author, ":"):
		return errors.New("author must be a bare identity")
	}
	return nil
}

func requireTask(id string) error {
	if id == "" {
		return errors.New("task_id is required")
	}
	return nil
}

func checkAmount(field string, v int64) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", field, v)
	}
	if v > MaxAmountSP {
		return fmt.Errorf("%s exceeds %d", field, MaxAmountSP)
	}
	return nil
}
