// Package derive folds the event set into balances, tasks, proposals and
// config. The fold visits events in (clock, id) order, so any permutation of
// the same event set yields the same State.
package derive

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/tutu-network/tutuledger/internal/app/params"
	"github.com/tutu-network/tutuledger/internal/domain"
)

// DefaultMaxParkedPerChannel bounds the out-of-order buffer of one channel.
const DefaultMaxParkedPerChannel = 1024

// Mode names how a State was produced.
type Mode string

const (
	ModeRebuild     Mode = "rebuild"
	ModeIncremental Mode = "incremental"
	ModeNoop        Mode = "noop"
)

// Options tunes derivation.
type Options struct {
	MaxParkedPerChannel int
}

// Engine derives State from events under a fixed schema and genesis config.
type Engine struct {
	schema  *params.Schema
	genesis map[string]domain.ParamValue
	opts    Options
}

// NewEngine validates the genesis overrides against schema.
func NewEngine(schema *params.Schema, genesis map[string]domain.ParamValue, opts Options) (*Engine, error) {
	if _, err := params.NewRegistry(schema, genesis); err != nil {
		return nil, err
	}
	if opts.MaxParkedPerChannel <= 0 {
		opts.MaxParkedPerChannel = DefaultMaxParkedPerChannel
	}
	return &Engine{schema: schema, genesis: genesis, opts: opts}, nil
}

// Schema returns the parameter schema the engine validates against.
func (e *Engine) Schema() *params.Schema { return e.schema }

// Derive folds events from genesis. Duplicated ids are folded once.
func (e *Engine) Derive(events []domain.Event) *State {
	cfg, _ := params.NewRegistry(e.schema, e.genesis)
	s := newState(cfg)
	e.fold(s, events, false)
	return s
}

// Update brings s up to date with events, the full current event set.
// When every unseen event sorts after the last folded key they are applied
// on top of s; otherwise the state is rebuilt from scratch. Both paths
// produce the same State.
func (e *Engine) Update(s *State, events []domain.Event) (*State, Mode) {
	if s == nil {
		return e.Derive(events), ModeRebuild
	}
	var fresh []domain.Event
	for _, ev := range events {
		if !s.Seen(ev.ID) {
			fresh = append(fresh, ev)
		}
	}
	if len(fresh) == 0 {
		return s, ModeNoop
	}
	for _, ev := range fresh {
		if !s.lastKey.Less(ev.Key()) {
			return e.Derive(events), ModeRebuild
		}
	}
	e.fold(s, fresh, true)
	return s, ModeIncremental
}

func (e *Engine) fold(s *State, events []domain.Event, verbose bool) {
	ordered := make([]domain.Event, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Key().Less(ordered[j].Key()) })

	for _, ev := range ordered {
		if s.Seen(ev.ID) {
			continue
		}
		s.seen[ev.ID] = ev.Signature
		if s.lastKey.Less(ev.Key()) {
			s.lastKey = ev.Key()
		}
		e.apply(s, ev, verbose)
	}
}

// apply lands one event's full effect or none of it.
func (e *Engine) apply(s *State, ev domain.Event, verbose bool) {
	payload, err := domain.DecodePayload(ev)
	if err == nil {
		err = dispatch(s, ev, payload)
	}

	switch {
	case err == nil:
		s.clear(ev.ID)
		if dep := providesDependency(payload); dep != "" {
			e.release(s, ev.Channel, dep, verbose)
		}
	case errors.Is(err, domain.ErrMissingDependency):
		e.park(s, ev, payload, err, verbose)
	default:
		s.record(ev, domain.DiagInconsistency, err.Error())
		if verbose {
			log.Printf("[derive] skipped %s: %v", ev, err)
		}
	}
}

func dispatch(s *State, ev domain.Event, payload domain.Payload) error {
	switch p := payload.(type) {
	case *domain.TransactionPayload:
		return s.Ledger.ApplyTransaction(ev, p, s.Config)
	case *domain.TaskCreatedPayload:
		return s.Ledger.CreateTask(ev, p, s.Config)
	case *domain.TaskClaimedPayload:
		return s.Ledger.ClaimTask(ev, p)
	case *domain.TaskProgressedPayload:
		return s.Ledger.ProgressTask(ev, p)
	case *domain.TaskCompletedPayload:
		return s.Ledger.CompleteTask(ev, p, s.Config)
	case *domain.TaskCancelledPayload:
		return s.Ledger.CancelTask(ev, p, s.Config)
	case *domain.ProposalCreatedPayload:
		return s.Gov.Create(ev, p, s.Config)
	case *domain.VoteCastPayload:
		return s.Gov.CastVote(ev, p, s.Config, s.Ledger)
	case *domain.ProposalClosedPayload:
		return s.Gov.Close(ev, p, s.Config, s.Ledger)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownEventType, ev.Type)
	}
}

// ─── Out-of-order Buffer ────────────────────────────────────────────────────

func taskDep(id string) string     { return "task:" + id }
func proposalDep(id string) string { return "proposal:" + id }

// requiresDependency names the entity a parked event waits for.
func requiresDependency(payload domain.Payload) string {
	switch p := payload.(type) {
	case *domain.TaskClaimedPayload:
		return taskDep(p.TaskID)
	case *domain.TaskProgressedPayload:
		return taskDep(p.TaskID)
	case *domain.TaskCompletedPayload:
		return taskDep(p.TaskID)
	case *domain.TaskCancelledPayload:
		return taskDep(p.TaskID)
	case *domain.VoteCastPayload:
		return proposalDep(p.ProposalID)
	case *domain.ProposalClosedPayload:
		return proposalDep(p.ProposalID)
	}
	return ""
}

// providesDependency names the entity an applied event brings into being.
func providesDependency(payload domain.Payload) string {
	switch p := payload.(type) {
	case *domain.TaskCreatedPayload:
		return taskDep(p.TaskID)
	case *domain.ProposalCreatedPayload:
		return proposalDep(p.ProposalID)
	}
	return ""
}

func (e *Engine) park(s *State, ev domain.Event, payload domain.Payload, cause error, verbose bool) {
	dep := requiresDependency(payload)
	ch := s.parked[ev.Channel]
	if ch == nil {
		ch = make(map[string]domain.Event)
		s.parked[ev.Channel] = ch
	}
	ch[ev.ID] = ev
	s.waiting[dep] = append(s.waiting[dep], ev.ID)
	s.record(ev, domain.DiagParked, cause.Error())
	if verbose {
		log.Printf("[derive] parked %s waiting for %s", ev, dep)
	}

	if len(ch) <= e.opts.MaxParkedPerChannel {
		return
	}
	// Evict the greatest (clock, id) in the channel.
	var victim domain.Event
	for _, p := range ch {
		if victim.ID == "" || victim.Key().Less(p.Key()) {
			victim = p
		}
	}
	delete(ch, victim.ID)
	s.record(victim, domain.DiagEvicted, fmt.Sprintf("out-of-order buffer of channel %s full", ev.Channel))
	if verbose {
		log.Printf("[derive] evicted %s", victim)
	}
}

// release retries, in (clock, id) order, the events parked on dep.
func (e *Engine) release(s *State, channel, dep string, verbose bool) {
	ids := s.waiting[dep]
	if len(ids) == 0 {
		return
	}
	delete(s.waiting, dep)

	var ready []domain.Event
	for _, id := range ids {
		for ch, parked := range s.parked {
			if ev, ok := parked[id]; ok {
				delete(parked, id)
				if len(parked) == 0 {
					delete(s.parked, ch)
				}
				ready = append(ready, ev)
			}
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Key().Less(ready[j].Key()) })
	if verbose && len(ready) > 0 {
		log.Printf("[derive] releasing %d parked events in %s for %s", len(ready), channel, dep)
	}
	for _, ev := range ready {
		e.apply(s, ev, verbose)
	}
}
