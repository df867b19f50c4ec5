package derive

import (
	"sort"

	"github.com/tutu-network/tutuledger/internal/app/governance"
	"github.com/tutu-network/tutuledger/internal/app/ledger"
	"github.com/tutu-network/tutuledger/internal/app/params"
	"github.com/tutu-network/tutuledger/internal/domain"
)

// State is the result of folding an event set. Ledger, governance and
// config always reflect the same prefix of the application order.
type State struct {
	Ledger *ledger.Ledger
	Gov    *governance.Engine
	Config *params.Registry

	seen        map[string]string // event id -> signature, for every event folded
	lastKey     domain.OrderKey
	parked      map[string]map[string]domain.Event // channel -> event id -> event
	waiting     map[string][]string                // dependency -> parked event ids
	diagnostics map[string]domain.Diagnostic
	diagKeys    map[string]domain.OrderKey
}

func newState(cfg *params.Registry) *State {
	return &State{
		Ledger:      ledger.New(),
		Gov:         governance.NewEngine(),
		Config:      cfg,
		seen:        make(map[string]string),
		parked:      make(map[string]map[string]domain.Event),
		waiting:     make(map[string][]string),
		diagnostics: make(map[string]domain.Diagnostic),
		diagKeys:    make(map[string]domain.OrderKey),
	}
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Balance returns an account balance.
func (s *State) Balance(account string) int64 {
	return s.Ledger.Balance(account, s.Config)
}

// Treasury returns a channel's treasury balance.
func (s *State) Treasury(channel string) int64 {
	return s.Ledger.Treasury(channel, s.Config)
}

// Account returns the balance and reputation view of account.
func (s *State) Account(account string) domain.Account {
	return domain.Account{
		OwnerID:    account,
		BalanceSP:  s.Balance(account),
		Reputation: s.Ledger.Reputation(account),
	}
}

// Seen reports whether an event id has been folded.
func (s *State) Seen(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// EventCount is the number of distinct events folded.
func (s *State) EventCount() int { return len(s.seen) }

// ParkedCount returns the number of events waiting on a dependency.
func (s *State) ParkedCount() int {
	n := 0
	for _, ch := range s.parked {
		n += len(ch)
	}
	return n
}

// Diagnostics returns every recorded diagnostic in application order.
func (s *State) Diagnostics() []domain.Diagnostic {
	ids := make([]string, 0, len(s.diagnostics))
	for id := range s.diagnostics {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.diagKeys[ids[i]].Less(s.diagKeys[ids[j]]) })
	out := make([]domain.Diagnostic, len(ids))
	for i, id := range ids {
		out[i] = s.diagnostics[id]
	}
	return out
}

func (s *State) record(ev domain.Event, kind domain.DiagnosticKind, reason string) {
	s.diagnostics[ev.ID] = domain.Diagnostic{
		EventID: ev.ID,
		Channel: ev.Channel,
		Type:    ev.Type,
		Kind:    kind,
		Reason:  reason,
	}
	s.diagKeys[ev.ID] = ev.Key()
}

func (s *State) clear(id string) {
	delete(s.diagnostics, id)
	delete(s.diagKeys, id)
}
