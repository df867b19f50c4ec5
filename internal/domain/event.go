// Package domain holds the pure types of the ledger.
// An Event is the only primary fact in the network. Balances, treasuries,
// tasks, proposals and config are all derived by replaying events in
// (clock, id) order.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType names the kind of fact an event records.
type EventType string

const (
	EventTaskCreated     EventType = "task_created"
	EventTaskClaimed     EventType = "task_claimed"
	EventTaskProgressed  EventType = "task_progressed"
	EventTaskCompleted   EventType = "task_completed"
	EventTaskCancelled   EventType = "task_cancelled"
	EventTransaction     EventType = "transaction"
	EventProposalCreated EventType = "proposal_created"
	EventVoteCast        EventType = "vote_cast"
	EventProposalClosed  EventType = "proposal_closed"
)

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventTaskCreated, EventTaskClaimed, EventTaskProgressed,
		EventTaskCompleted, EventTaskCancelled, EventTransaction,
		EventProposalCreated, EventVoteCast, EventProposalClosed:
		return true
	}
	return false
}

// DefaultChannel is always known to every node.
const DefaultChannel = "global"

// Account namespaces. User accounts are bare author ids (hex public keys).
const (
	TreasuryPrefix = "channel:"
	EscrowPrefix   = "escrow:"
)

// TreasuryAccount returns the account id holding a channel's treasury.
func TreasuryAccount(channel string) string {
	return TreasuryPrefix + channel
}

// EscrowAccount returns the account id holding a task's reserved reward.
func EscrowAccount(taskID string) string {
	return EscrowPrefix + taskID
}

// IsTreasuryAccount reports whether account is a "channel:<id>" treasury.
func IsTreasuryAccount(account string) bool {
	return strings.HasPrefix(account, TreasuryPrefix)
}

// Event is an immutable, signed record gossiped between nodes.
type Event struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Author    string          `json:"author"`
	Clock     uint64          `json:"clock"`
	Time      int64           `json:"time"` // unix millis, informational
	Signature string          `json:"signature,omitempty"`
}

// Key returns the deterministic application key of the event.
func (e Event) Key() OrderKey {
	return OrderKey{Clock: e.Clock, ID: e.ID}
}

// Unsigned returns a copy of the event with the signature stripped.
func (e Event) Unsigned() Event {
	e.Signature = ""
	return e
}

// String implements fmt.Stringer for log lines.
func (e Event) String() string {
	return fmt.Sprintf("%s[%s@%d %s]", e.Type, e.Channel, e.Clock, e.ID)
}

// OrderKey totally orders events: logical clock first, event id breaks ties.
type OrderKey struct {
	Clock uint64 `json:"clock"`
	ID    string `json:"id"`
}

// Less reports whether k sorts before o.
func (k OrderKey) Less(o OrderKey) bool {
	if k.Clock != o.Clock {
		return k.Clock < o.Clock
	}
	return k.ID < o.ID
}

// AcceptStatus is the outcome of submitting an event to the store.
type AcceptStatus string

const (
	AcceptAccepted  AcceptStatus = "accepted"
	AcceptDuplicate AcceptStatus = "duplicate"
	AcceptRejected  AcceptStatus = "rejected"
)

// AcceptResult is returned synchronously to the submitter.
type AcceptResult struct {
	EventID string       `json:"event_id"`
	Status  AcceptStatus `json:"status"`
	Reason  string       `json:"reason,omitempty"`
	Seq     int64        `json:"seq,omitempty"` // local store cursor position
}

// StoredEvent is an event with its local insertion sequence (the cursor
// used by events_since).
type StoredEvent struct {
	Seq   int64 `json:"seq"`
	Event Event `json:"event"`
}

// DiagnosticKind classifies derivation-time findings.
type DiagnosticKind string

const (
	DiagInconsistency DiagnosticKind = "inconsistency"
	DiagParked        DiagnosticKind = "parked"
	DiagEvicted       DiagnosticKind = "evicted"
)

// Diagnostic records a well-formed event that did not (yet) take effect.
type Diagnostic struct {
	EventID string         `json:"event_id"`
	Channel string         `json:"channel"`
	Type    EventType      `json:"type"`
	Kind    DiagnosticKind `json:"kind"`
	Reason  string         `json:"reason"`
}

// Fingerprint summarizes a replica's derived state for convergence checks.
// Two replicas with equal EventSet digests must report equal State digests.
type Fingerprint struct {
	State         string `json:"state"`
	EventSet      string `json:"event_set"`
	Events        int    `json:"events"`
	ConfigVersion uint64 `json:"config_version"`
}
