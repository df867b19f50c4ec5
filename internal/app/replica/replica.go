// Package replica is the node-local facade over the Event Store and the
// derivation engine. Writes go straight to the store; reads re-derive
// lazily when the store has grown since the last pass.
package replica

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tutu-network/tutuledger/internal/app/derive"
	"github.com/tutu-network/tutuledger/internal/app/eventstore"
	"github.com/tutu-network/tutuledger/internal/domain"
	"github.com/tutu-network/tutuledger/internal/infra/metrics"
)

// Replica answers queries from state derived over its own event store.
// Thread-safe: one derivation pass at a time, and readers never observe a
// partially applied pass.
type Replica struct {
	store  *eventstore.Store
	engine *derive.Engine

	mu        sync.Mutex
	state     *derive.State
	derivedAt uint64 // store version of the last pass
	derived   bool
}

// New creates a replica over store.
func New(store *eventstore.Store, engine *derive.Engine) *Replica {
	return &Replica{store: store, engine: engine}
}

// Store exposes the underlying event store.
func (r *Replica) Store() *eventstore.Store { return r.store }

// ─── Ingestion ──────────────────────────────────────────────────────────────

// Submit appends ev to the store. Derived state catches up on the next read.
func (r *Replica) Submit(ctx context.Context, ev domain.Event) (domain.AcceptResult, error) {
	res, err := r.store.Submit(ctx, ev)
	if err != nil {
		return res, err
	}
	metrics.EventsSubmitted.WithLabelValues(string(res.Status)).Inc()
	return res, nil
}

// EventsSince pages through a channel for peer synchronization.
func (r *Replica) EventsSince(ctx context.Context, channel string, cursor int64, limit int) ([]domain.StoredEvent, error) {
	return r.store.EventsSince(ctx, channel, cursor, limit)
}

// Channels lists known channels.
func (r *Replica) Channels() []string { return r.store.Channels() }

// Clock returns the highest witnessed logical clock.
func (r *Replica) Clock() uint64 { return r.store.Clock() }

// NextClock reserves a logical clock for a locally authored event.
func (r *Replica) NextClock() uint64 { return r.store.NextClock() }

// ─── Derivation ─────────────────────────────────────────────────────────────

// view runs fn against up-to-date derived state while holding the lock.
func (r *Replica) view(ctx context.Context, fn func(*derive.State) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refreshLocked(ctx); err != nil {
		return err
	}
	return fn(r.state)
}

func (r *Replica) refreshLocked(ctx context.Context) error {
	version := r.store.Version()
	if r.derived && version == r.derivedAt {
		return nil
	}
	events, err := r.store.All(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	start := time.Now()
	state, mode := r.engine.Update(r.state, events)
	metrics.DerivationDuration.Observe(time.Since(start).Seconds())
	metrics.DerivationPasses.WithLabelValues(string(mode)).Inc()

	r.state = state
	r.derivedAt = version
	r.derived = true
	r.publishLocked()
	return nil
}

func (r *Replica) publishLocked() {
	counts := map[domain.DiagnosticKind]int{
		domain.DiagInconsistency: 0,
		domain.DiagParked:        0,
		domain.DiagEvicted:       0,
	}
	for _, d := range r.state.Diagnostics() {
		counts[d.Kind]++
	}
	for kind, n := range counts {
		metrics.Diagnostics.WithLabelValues(string(kind)).Set(float64(n))
	}
	metrics.ParkedEvents.Set(float64(r.state.ParkedCount()))
	metrics.ConfigVersion.Set(float64(r.state.Config.Version()))
}

// Refresh forces derivation to catch up with the store.
func (r *Replica) Refresh(ctx context.Context) error {
	return r.view(ctx, func(*derive.State) error { return nil })
}

// Rebuild discards the cached state and replays the whole event log.
func (r *Replica) Rebuild(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = nil
	r.derived = false
	return r.refreshLocked(ctx)
}

// Verify re-checks ledger invariants on the current state: postings
// balance and no account is negative.
func (r *Replica) Verify(ctx context.Context) error {
	return r.view(ctx, func(s *derive.State) error {
		if err := s.Ledger.Conserved(); err != nil {
			return err
		}
		for acct, bal := range s.Ledger.Balances() {
			if bal < 0 {
				return fmt.Errorf("account %s is negative: %d", acct, bal)
			}
		}
		return nil
	})
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Balance returns the SP balance of account.
func (r *Replica) Balance(ctx context.Context, account string) (domain.Account, error) {
	var out domain.Account
	err := r.view(ctx, func(s *derive.State) error {
		out = s.Account(account)
		return nil
	})
	return out, err
}

// Treasury returns a channel's treasury.
func (r *Replica) Treasury(ctx context.Context, channel string) (domain.Treasury, error) {
	if !r.store.HasChannel(channel) {
		return domain.Treasury{}, fmt.Errorf("%w: %q", domain.ErrUnknownChannel, channel)
	}
	var out domain.Treasury
	err := r.view(ctx, func(s *derive.State) error {
		out = domain.Treasury{ChannelID: channel, BalanceSP: s.Treasury(channel)}
		return nil
	})
	return out, err
}

// Entries returns recent postings of account, newest first.
func (r *Replica) Entries(ctx context.Context, account string, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := r.view(ctx, func(s *derive.State) error {
		out = s.Ledger.Entries(account, limit)
		return nil
	})
	return out, err
}

// Config returns the active configuration. Every channel shares the
// global registry.
func (r *Replica) Config(ctx context.Context) (domain.ConfigSnapshot, error) {
	var out domain.ConfigSnapshot
	err := r.view(ctx, func(s *derive.State) error {
		out = s.Config.Snapshot()
		return nil
	})
	return out, err
}

// ConfigHistory returns every applied config change, oldest first.
func (r *Replica) ConfigHistory(ctx context.Context) ([]domain.ConfigChange, error) {
	var out []domain.ConfigChange
	err := r.view(ctx, func(s *derive.State) error {
		out = s.Config.History()
		return nil
	})
	return out, err
}

// Schema returns the governable-parameter schema.
func (r *Replica) Schema() []domain.GovernableParam {
	return r.engine.Schema().List()
}

// Proposal returns a proposal by id.
func (r *Replica) Proposal(ctx context.Context, id string) (*domain.Proposal, error) {
	var out *domain.Proposal
	err := r.view(ctx, func(s *derive.State) error {
		p, ok := s.Gov.Proposal(id)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrProposalNotFound, id)
		}
		out = p
		return nil
	})
	return out, err
}

// Proposals lists proposals, optionally filtered by status.
func (r *Replica) Proposals(ctx context.Context, status domain.ProposalStatus) ([]*domain.Proposal, error) {
	var out []*domain.Proposal
	err := r.view(ctx, func(s *derive.State) error {
		out = s.Gov.Proposals(status)
		return nil
	})
	return out, err
}

// Task returns a task by id.
func (r *Replica) Task(ctx context.Context, id string) (*domain.Task, error) {
	var out *domain.Task
	err := r.view(ctx, func(s *derive.State) error {
		t, ok := s.Ledger.Task(id)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
		}
		out = t
		return nil
	})
	return out, err
}

// Tasks lists every task sorted by id.
func (r *Replica) Tasks(ctx context.Context) ([]domain.Task, error) {
	var out []domain.Task
	err := r.view(ctx, func(s *derive.State) error {
		out = s.Ledger.Tasks()
		return nil
	})
	return out, err
}

// Diagnostics returns events that were skipped, parked or evicted.
func (r *Replica) Diagnostics(ctx context.Context) ([]domain.Diagnostic, error) {
	var out []domain.Diagnostic
	err := r.view(ctx, func(s *derive.State) error {
		out = s.Diagnostics()
		return nil
	})
	return out, err
}

// Fingerprint digests the derived state and the event set it came from.
func (r *Replica) Fingerprint(ctx context.Context) (domain.Fingerprint, error) {
	var out domain.Fingerprint
	err := r.view(ctx, func(s *derive.State) error {
		fp, err := s.Fingerprint()
		if err != nil {
			return err
		}
		out = domain.Fingerprint{
			State:         fp,
			EventSet:      s.EventSetDigest(),
			Events:        s.EventCount(),
			ConfigVersion: s.Config.Version(),
		}
		return nil
	})
	return out, err
}

// CheckConvergence compares local state with a peer's fingerprint.
// It returns (false, nil) when the event sets differ and no verdict is
// possible, and a *domain.DivergenceError when equal sets derived
// different states.
func (r *Replica) CheckConvergence(ctx context.Context, remote domain.Fingerprint) (bool, error) {
	local, err := r.Fingerprint(ctx)
	if err != nil {
		return false, err
	}
	if local.EventSet != remote.EventSet {
		return false, nil
	}
	if err := derive.CheckConvergence(local.Events, local.State, remote.State); err != nil {
		return true, err
	}
	return true, nil
}
