package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/tutuledger/internal/infra/sqlite"
)

type fakeLedger struct {
	err      error
	rebuilds int
}

func (f *fakeLedger) Verify(context.Context) error { return f.err }

func (f *fakeLedger) Rebuild(context.Context) error {
	f.rebuilds++
	return nil
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func statusOf(t *testing.T, c *Checker, name string) Status {
	t.Helper()
	for _, s := range c.Statuses() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("check %q not found in statuses", name)
	return Status{}
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	c := NewChecker(newTestDB(t), t.TempDir(), &fakeLedger{})
	if c == nil {
		t.Fatal("NewChecker() returned nil")
	}
	if len(c.checks) != 3 {
		t.Errorf("checks = %d, want 3", len(c.checks))
	}
}

func TestChecker_AllPass(t *testing.T) {
	c := NewChecker(newTestDB(t), t.TempDir(), &fakeLedger{})
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(newTestDB(t), t.TempDir(), &fakeLedger{})

	// Before any run, there are no statuses; IsHealthy is vacuously true.
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_LedgerInvariantFailure(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("ledger imbalance")}
	c := NewChecker(newTestDB(t), t.TempDir(), ledger)
	c.runAll(context.Background())

	s := statusOf(t, c, "ledger_invariants")
	if s.Healthy {
		t.Error("ledger_invariants should fail")
	}
	if s.Error != "ledger imbalance" {
		t.Errorf("Error = %q", s.Error)
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false")
	}
	if ledger.rebuilds != 1 {
		t.Errorf("Rebuild() called %d times, want 1", ledger.rebuilds)
	}
}

func TestChecker_PassingLedgerIsNotRebuilt(t *testing.T) {
	ledger := &fakeLedger{}
	c := NewChecker(newTestDB(t), t.TempDir(), ledger)
	c.runAll(context.Background())

	if ledger.rebuilds != 0 {
		t.Errorf("Rebuild() called %d times, want 0", ledger.rebuilds)
	}
}

func TestChecker_SetInterval(t *testing.T) {
	c := NewChecker(newTestDB(t), t.TempDir(), &fakeLedger{})
	c.SetInterval(5 * time.Second)
	if c.interval != 5*time.Second {
		t.Errorf("interval = %v, want 5s", c.interval)
	}
	c.SetInterval(0)
	if c.interval != 5*time.Second {
		t.Errorf("interval = %v after SetInterval(0), want unchanged 5s", c.interval)
	}
}

func TestChecker_DataDirMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nonexistent")
	c := NewChecker(newTestDB(t), dir, &fakeLedger{})
	c.runAll(context.Background())

	if statusOf(t, c, "data_dir").Healthy {
		t.Error("data_dir should fail when the directory is missing")
	}
}

func TestChecker_DataDirIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	os.WriteFile(path, []byte("not a dir"), 0644)

	c := NewChecker(newTestDB(t), path, &fakeLedger{})
	c.runAll(context.Background())

	if statusOf(t, c, "data_dir").Healthy {
		t.Error("data_dir should fail when path is a file")
	}
}

func TestChecker_SQLiteClosed(t *testing.T) {
	db := newTestDB(t)
	db.Close()

	c := NewChecker(db, t.TempDir(), &fakeLedger{})
	c.runAll(context.Background())

	if statusOf(t, c, "sqlite").Healthy {
		t.Error("sqlite should fail after Close")
	}
}

func TestChecker_RecoverCalledOnFailure(t *testing.T) {
	recovered := false
	c := &Checker{
		checks: []Check{
			{
				Name: "always_fail",
				CheckFn: func(ctx context.Context) error {
					return os.ErrPermission
				},
				RecoverFn: func(ctx context.Context) error {
					recovered = true
					return nil
				},
			},
		},
	}

	c.runAll(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error == "" {
		t.Error("failing check should have error message")
	}
	if !recovered {
		t.Error("RecoverFn not called")
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	c := NewChecker(newTestDB(t), t.TempDir(), &fakeLedger{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx) // returns after the initial pass

	if len(c.Statuses()) != 3 {
		t.Errorf("Statuses() = %d, want 3 after initial pass", len(c.Statuses()))
	}
}
