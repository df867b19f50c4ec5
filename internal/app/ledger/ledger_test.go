package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tutu-network/tutuledger/internal/app/params"
	"github.com/tutu-network/tutuledger/internal/domain"
)

func testConfig(t *testing.T, overrides map[string]domain.ParamValue) domain.ConfigSnapshot {
	t.Helper()
	r, err := params.NewRegistry(params.MustDefaultSchema(), overrides)
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	return r.Snapshot()
}

var clock uint64

func ev(author, channel string) domain.Event {
	clock++
	return domain.Event{ID: fmt.Sprintf("ev-%d", clock), Channel: channel, Author: author, Clock: clock}
}

func mustApply(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("apply error: %v", err)
	}
}

// setupClaimed creates and claims a task funded by creator.
func setupClaimed(t *testing.T, l *Ledger, cfg domain.ConfigSnapshot, creator, assignee string, reward int64) {
	t.Helper()
	funder := ""
	author := creator
	if domain.IsTreasuryAccount(creator) {
		funder = creator
		author = "alice"
	}
	mustApply(t, l.CreateTask(ev(author, "global"), &domain.TaskCreatedPayload{TaskID: "t1", Creator: funder, Reward: reward}, cfg))
	mustApply(t, l.ClaimTask(ev(assignee, "global"), &domain.TaskClaimedPayload{TaskID: "t1"}))
}

// ─── Transactions ───────────────────────────────────────────────────────────

func TestApplyTransaction(t *testing.T) {
	cfg := testConfig(t, nil)
	l := New()

	mustApply(t, l.ApplyTransaction(ev("alice", "global"), &domain.TransactionPayload{To: "bob", Amount: 30}, cfg))

	if got := l.Balance("alice", cfg); got != 70 {
		t.Errorf("alice = %d, want 70", got)
	}
	if got := l.Balance("bob", cfg); got != 130 {
		t.Errorf("bob = %d, want 130 (no tax on transfers)", got)
	}
	if got := l.Treasury("global", cfg); got != 0 {
		t.Errorf("treasury = %d, want 0", got)
	}
	if err := l.Conserved(); err != nil {
		t.Error(err)
	}
}

func TestApplyTransaction_InsufficientFunds(t *testing.T) {
	cfg := testConfig(t, nil)
	l := New()

	err := l.ApplyTransaction(ev("alice", "global"), &domain.TransactionPayload{To: "bob", Amount: 101}, cfg)
	if !errors.Is(err, domain.ErrInsufficientFunds) || !errors.Is(err, domain.ErrSemanticInconsistency) {
		t.Fatalf("error = %v, want insufficient funds inconsistency", err)
	}
	if len(l.Balances()) != 0 || len(l.Journal()) != 0 {
		t.Error("rejected transaction must not open accounts or post entries")
	}
}

func TestUnopenedAccountUsesCurrentConfig(t *testing.T) {
	l := New()
	low := testConfig(t, nil)
	high := testConfig(t, map[string]domain.ParamValue{domain.ParamInitialBalance: domain.IntValue(500)})

	mustApply(t, l.ApplyTransaction(ev("alice", "global"), &domain.TransactionPayload{To: "bob", Amount: 10}, low))
	if got := l.Balance("alice", high); got != 90 {
		t.Errorf("opened account must keep its balance, got %d", got)
	}
	if got := l.Balance("carol", high); got != 500 {
		t.Errorf("unopened account = %d, want 500", got)
	}
}

// ─── Task Rewards and Tax ───────────────────────────────────────────────────

func TestCompleteTask_UserFundedTax(t *testing.T) {
	cfg := testConfig(t, map[string]domain.ParamValue{domain.ParamInitialBalance: domain.IntValue(1000)})
	l := New()

	setupClaimed(t, l, cfg, "alice", "bob", 100)
	if got := l.Balance("alice", cfg); got != 900 {
		t.Errorf("alice after escrow = %d, want 900", got)
	}
	if got := l.Balance(domain.EscrowAccount("t1"), cfg); got != 100 {
		t.Errorf("escrow = %d, want 100", got)
	}

	mustApply(t, l.CompleteTask(ev("bob", "global"), &domain.TaskCompletedPayload{TaskID: "t1"}, cfg))

	if got := l.Balance("bob", cfg); got != 1098 {
		t.Errorf("bob = %d, want 1098 (+98)", got)
	}
	if got := l.Treasury("global", cfg); got != 2 {
		t.Errorf("treasury = %d, want 2", got)
	}
	if got := l.Balance(domain.EscrowAccount("t1"), cfg); got != 0 {
		t.Errorf("escrow after completion = %d, want 0", got)
	}
	if got := l.Reputation("bob"); got != 10 {
		t.Errorf("bob reputation = %d, want 10", got)
	}
	task, _ := l.Task("t1")
	if task.Status != domain.TaskCompleted || task.TaxBps != 200 {
		t.Errorf("task = %+v", task)
	}
	if err := l.Conserved(); err != nil {
		t.Error(err)
	}
}

func TestCompleteTask_TreasuryFunded(t *testing.T) {
	cfg := testConfig(t, map[string]domain.ParamValue{domain.ParamTreasuryInitialBalance: domain.IntValue(100)})
	l := New()

	setupClaimed(t, l, cfg, domain.TreasuryAccount("global"), "bob", 50)
	if got := l.Treasury("global", cfg); got != 50 {
		t.Errorf("treasury after creation = %d, want 50", got)
	}

	mustApply(t, l.CompleteTask(ev("bob", "global"), &domain.TaskCompletedPayload{TaskID: "t1"}, cfg))

	if got := l.Treasury("global", cfg); got != 51 {
		t.Errorf("treasury after completion = %d, want 51", got)
	}
	if got := l.Balance("bob", cfg); got != 149 {
		t.Errorf("bob = %d, want 149 (+49)", got)
	}
}

func TestCreateTask_InsufficientTreasury(t *testing.T) {
	cfg := testConfig(t, map[string]domain.ParamValue{domain.ParamTreasuryInitialBalance: domain.IntValue(100)})
	l := New()

	err := l.CreateTask(ev("alice", "global"),
		&domain.TaskCreatedPayload{TaskID: "t1", Creator: domain.TreasuryAccount("global"), Reward: 150}, cfg)
	if !errors.Is(err, domain.ErrInsufficientTreasury) {
		t.Fatalf("error = %v, want ErrInsufficientTreasury", err)
	}
	if got := l.Treasury("global", cfg); got != 100 {
		t.Errorf("treasury = %d, want unchanged 100", got)
	}
	if _, ok := l.Task("t1"); ok {
		t.Error("rejected task must not exist")
	}
}

func TestTaxPinnedAtCreation(t *testing.T) {
	at2 := testConfig(t, nil)
	at10 := testConfig(t, map[string]domain.ParamValue{domain.ParamTaskTaxRate: domain.FloatValue(0.10)})
	l := New()

	setupClaimed(t, l, at2, "alice", "bob", 100)
	mustApply(t, l.CompleteTask(ev("bob", "global"), &domain.TaskCompletedPayload{TaskID: "t1"}, at10))

	if got := l.Treasury("global", at10); got != 2 {
		t.Errorf("treasury = %d, want 2 (rate pinned at creation)", got)
	}
}

func TestTaxRoundsDown(t *testing.T) {
	cfg := testConfig(t, map[string]domain.ParamValue{domain.ParamTaskTaxRate: domain.FloatValue(0.03)})
	l := New()

	setupClaimed(t, l, cfg, "alice", "bob", 33)
	mustApply(t, l.CompleteTask(ev("bob", "global"), &domain.TaskCompletedPayload{TaskID: "t1"}, cfg))

	// 33 * 0.03 = 0.99 -> 0
	if got := l.Treasury("global", cfg); got != 0 {
		t.Errorf("treasury = %d, want 0", got)
	}
	if got := l.Balance("bob", cfg); got != 133 {
		t.Errorf("bob = %d, want 133", got)
	}
}

// ─── Task State Machine ─────────────────────────────────────────────────────

func TestTaskTransitions(t *testing.T) {
	cfg := testConfig(t, nil)
	created := func(l *Ledger) {
		mustApply(t, l.CreateTask(ev("alice", "global"), &domain.TaskCreatedPayload{TaskID: "t1", Reward: 10}, cfg))
	}
	claimed := func(l *Ledger) {
		created(l)
		mustApply(t, l.ClaimTask(ev("bob", "global"), &domain.TaskClaimedPayload{TaskID: "t1"}))
	}

	tests := []struct {
		name  string
		setup func(*Ledger)
		apply func(*Ledger) error
		want  error
	}{
		{"complete never-claimed", created, func(l *Ledger) error {
			return l.CompleteTask(ev("alice", "global"), &domain.TaskCompletedPayload{TaskID: "t1"}, cfg)
		}, domain.ErrTaskState},
		{"claim twice", claimed, func(l *Ledger) error {
			return l.ClaimTask(ev("carol", "global"), &domain.TaskClaimedPayload{TaskID: "t1"})
		}, domain.ErrTaskState},
		{"progress by stranger", claimed, func(l *Ledger) error {
			return l.ProgressTask(ev("carol", "global"), &domain.TaskProgressedPayload{TaskID: "t1"})
		}, domain.ErrNotPermitted},
		{"complete by stranger", claimed, func(l *Ledger) error {
			return l.CompleteTask(ev("carol", "global"), &domain.TaskCompletedPayload{TaskID: "t1"}, cfg)
		}, domain.ErrNotPermitted},
		{"cancel by assignee", claimed, func(l *Ledger) error {
			return l.CancelTask(ev("bob", "global"), &domain.TaskCancelledPayload{TaskID: "t1"}, cfg)
		}, domain.ErrNotPermitted},
		{"claim unknown task", func(*Ledger) {}, func(l *Ledger) error {
			return l.ClaimTask(ev("bob", "global"), &domain.TaskClaimedPayload{TaskID: "t1"})
		}, domain.ErrMissingDependency},
		{"claim from other channel", created, func(l *Ledger) error {
			return l.ClaimTask(ev("bob", "dev"), &domain.TaskClaimedPayload{TaskID: "t1"})
		}, domain.ErrTaskNotFound},
		{"create duplicate", created, func(l *Ledger) error {
			return l.CreateTask(ev("alice", "global"), &domain.TaskCreatedPayload{TaskID: "t1", Reward: 10}, cfg)
		}, domain.ErrTaskExists},
		{"progress then complete by author", claimed, func(l *Ledger) error {
			if err := l.ProgressTask(ev("bob", "global"), &domain.TaskProgressedPayload{TaskID: "t1"}); err != nil {
				return err
			}
			return l.CompleteTask(ev("alice", "global"), &domain.TaskCompletedPayload{TaskID: "t1"}, cfg)
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			tt.setup(l)
			before := l.Balances()
			err := tt.apply(l)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			after := l.Balances()
			for k, v := range before {
				if after[k] != v {
					t.Errorf("%s changed %d -> %d on a skipped event", k, v, after[k])
				}
			}
		})
	}
}

func TestCancelTask_Refunds(t *testing.T) {
	cfg := testConfig(t, map[string]domain.ParamValue{domain.ParamTreasuryInitialBalance: domain.IntValue(100)})

	t.Run("user funded", func(t *testing.T) {
		l := New()
		setupClaimed(t, l, cfg, "alice", "bob", 40)
		mustApply(t, l.CancelTask(ev("alice", "global"), &domain.TaskCancelledPayload{TaskID: "t1"}, cfg))
		if got := l.Balance("alice", cfg); got != 100 {
			t.Errorf("alice = %d, want 100 after refund", got)
		}
		if got := l.Balance("bob", cfg); got != 100 {
			t.Errorf("bob = %d, want 100", got)
		}
	})

	t.Run("treasury funded", func(t *testing.T) {
		l := New()
		setupClaimed(t, l, cfg, domain.TreasuryAccount("global"), "bob", 40)
		mustApply(t, l.CancelTask(ev("alice", "global"), &domain.TaskCancelledPayload{TaskID: "t1"}, cfg))
		if got := l.Treasury("global", cfg); got != 100 {
			t.Errorf("treasury = %d, want 100 after refund", got)
		}
		err := l.CompleteTask(ev("bob", "global"), &domain.TaskCompletedPayload{TaskID: "t1"}, cfg)
		if !errors.Is(err, domain.ErrTaskState) {
			t.Errorf("completing a cancelled task = %v, want ErrTaskState", err)
		}
	})
}

func TestEntries_NewestFirst(t *testing.T) {
	cfg := testConfig(t, nil)
	l := New()
	mustApply(t, l.ApplyTransaction(ev("alice", "global"), &domain.TransactionPayload{To: "bob", Amount: 1}, cfg))
	mustApply(t, l.ApplyTransaction(ev("alice", "global"), &domain.TransactionPayload{To: "bob", Amount: 2}, cfg))
	mustApply(t, l.ApplyTransaction(ev("alice", "global"), &domain.TransactionPayload{To: "bob", Amount: 3}, cfg))

	got := l.Entries("alice", 2)
	if len(got) != 2 {
		t.Fatalf("Entries() = %d, want 2", len(got))
	}
	if got[0].Amount != 3 || got[0].Balance != 94 || got[0].EntryType != domain.EntryDebit {
		t.Errorf("newest entry = %+v", got[0])
	}
}
