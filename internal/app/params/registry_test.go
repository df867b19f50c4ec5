package params

import (
	"errors"
	"math"
	"testing"

	"github.com/tutu-network/tutuledger/internal/domain"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(MustDefaultSchema(), nil)
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	return r
}

// ─── Schema Tests ───────────────────────────────────────────────────────────

func TestDefaultSchema_Valid(t *testing.T) {
	s, err := NewSchema(DefaultSchema())
	if err != nil {
		t.Fatalf("NewSchema(DefaultSchema()) error: %v", err)
	}
	if len(s.Keys()) != 7 {
		t.Errorf("schema has %d keys, want 7", len(s.Keys()))
	}
	for i := 1; i < len(s.Keys()); i++ {
		if s.Keys()[i-1] >= s.Keys()[i] {
			t.Errorf("Keys() not sorted: %v", s.Keys())
		}
	}
}

func TestNewSchema_RejectsBadDeclarations(t *testing.T) {
	tests := []struct {
		name   string
		params []domain.GovernableParam
	}{
		{"empty key", []domain.GovernableParam{{Kind: domain.ParamInt, Max: 1, Default: domain.IntValue(0)}}},
		{"duplicate", []domain.GovernableParam{
			{Key: "a", Kind: domain.ParamInt, Max: 1, Default: domain.IntValue(0)},
			{Key: "a", Kind: domain.ParamInt, Max: 1, Default: domain.IntValue(0)},
		}},
		{"min above max", []domain.GovernableParam{{Key: "a", Kind: domain.ParamInt, Min: 2, Max: 1, Default: domain.IntValue(2)}}},
		{"default out of bounds", []domain.GovernableParam{{Key: "a", Kind: domain.ParamInt, Max: 1, Default: domain.IntValue(5)}}},
		{"default wrong kind", []domain.GovernableParam{{Key: "a", Kind: domain.ParamInt, Max: 1, Default: domain.FloatValue(0.5)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSchema(tt.params); err == nil {
				t.Error("NewSchema() should fail")
			}
		})
	}
}

func TestSchema_Coerce(t *testing.T) {
	s := MustDefaultSchema()
	tests := []struct {
		key     string
		raw     any
		want    domain.ParamValue
		wantErr bool
	}{
		{domain.ParamInitialBalance, int64(250), domain.IntValue(250), false},
		{domain.ParamInitialBalance, float64(250), domain.IntValue(250), false},
		{domain.ParamInitialBalance, 2.5, domain.ParamValue{}, true},
		{domain.ParamTaskTaxRate, int64(0), domain.FloatValue(0), false},
		{domain.ParamTaskTaxRate, 0.1, domain.FloatValue(0.1), false},
		{domain.ParamTaskTaxRate, 0.9, domain.ParamValue{}, true},
		{domain.ParamVoteWeightLogBase, "2", domain.ParamValue{}, true},
		{"no_such_param", int64(1), domain.ParamValue{}, true},
	}
	for _, tt := range tests {
		got, err := s.Coerce(tt.key, tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Coerce(%s, %v) should fail", tt.key, tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("Coerce(%s, %v) error: %v", tt.key, tt.raw, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Coerce(%s, %v) = %v (%s), want %v (%s)", tt.key, tt.raw, got, got.Kind, tt.want, tt.want.Kind)
		}
	}
}

// ─── Registry Tests ─────────────────────────────────────────────────────────

func TestNewRegistry_Defaults(t *testing.T) {
	r := newTestRegistry(t)
	snap := r.Snapshot()
	if snap.Version != 0 {
		t.Errorf("initial version = %d, want 0", snap.Version)
	}
	if snap.Int(domain.ParamInitialBalance) != 100 {
		t.Errorf("initial_balance_sp = %d, want 100", snap.Int(domain.ParamInitialBalance))
	}
	if snap.Float(domain.ParamTaskTaxRate) != 0.02 {
		t.Errorf("task_tax_rate = %v, want 0.02", snap.Float(domain.ParamTaskTaxRate))
	}
}

func TestNewRegistry_Genesis(t *testing.T) {
	r, err := NewRegistry(MustDefaultSchema(), map[string]domain.ParamValue{
		domain.ParamTreasuryInitialBalance: domain.IntValue(100),
	})
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	if r.Int(domain.ParamTreasuryInitialBalance) != 100 {
		t.Errorf("treasury_initial_balance = %d, want 100", r.Int(domain.ParamTreasuryInitialBalance))
	}
	if r.Version() != 0 {
		t.Errorf("genesis overrides must not bump the version, got %d", r.Version())
	}

	_, err = NewRegistry(MustDefaultSchema(), map[string]domain.ParamValue{
		domain.ParamTaskTaxRate: domain.FloatValue(0.9),
	})
	if !errors.Is(err, domain.ErrParamBounds) {
		t.Errorf("out-of-bounds genesis error = %v, want ErrParamBounds", err)
	}
}

func TestRegistry_Validate(t *testing.T) {
	r := newTestRegistry(t)
	tests := []struct {
		name string
		key  string
		v    domain.ParamValue
		want error
	}{
		{"valid int", domain.ParamTaskCompletionRep, domain.IntValue(15), nil},
		{"valid float", domain.ParamTaskTaxRate, domain.FloatValue(0.05), nil},
		{"boundary max", domain.ParamTaskTaxRate, domain.FloatValue(0.5), nil},
		{"unknown key", "quorum_pct", domain.IntValue(30), domain.ErrUnknownParam},
		{"kind mismatch", domain.ParamTaskCompletionRep, domain.FloatValue(15), domain.ErrParamKind},
		{"above max", domain.ParamTaskCompletionRep, domain.IntValue(1001), domain.ErrParamBounds},
		{"below min", domain.ParamVoteWeightLogBase, domain.FloatValue(1.0), domain.ErrParamBounds},
		{"NaN", domain.ParamTaskTaxRate, domain.FloatValue(math.NaN()), domain.ErrParamBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.key, tt.v)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, domain.ErrValidationFailure) {
				t.Errorf("Validate() = %v, should wrap ErrValidationFailure", err)
			}
		})
	}
}

func TestRegistry_Execute(t *testing.T) {
	r := newTestRegistry(t)

	res := r.Execute("p1", domain.ParamTaskCompletionRep, domain.IntValue(15), 1_700_000_000_000)
	if !res.Success {
		t.Fatalf("Execute() failed: %s", res.Reason)
	}
	if res.Version != 1 || r.Version() != 1 {
		t.Errorf("version = %d / %d, want 1", res.Version, r.Version())
	}
	if res.OldValue.Int != 10 || res.NewValue.Int != 15 {
		t.Errorf("old/new = %v/%v, want 10/15", res.OldValue, res.NewValue)
	}
	if r.Int(domain.ParamTaskCompletionRep) != 15 {
		t.Errorf("active value = %d, want 15", r.Int(domain.ParamTaskCompletionRep))
	}
	if r.Snapshot().UpdatedAt != 1_700_000_000_000 {
		t.Errorf("updated_at = %d", r.Snapshot().UpdatedAt)
	}

	hist := r.History()
	if len(hist) != 1 || hist[0].ProposalID != "p1" || hist[0].Version != 1 {
		t.Errorf("History() = %+v", hist)
	}
}

func TestRegistry_ExecuteInvalidLeavesConfigUntouched(t *testing.T) {
	r := newTestRegistry(t)
	before := r.Snapshot()

	res := r.Execute("p1", domain.ParamTaskTaxRate, domain.FloatValue(0.75), 42)
	if res.Success {
		t.Fatal("Execute() should fail for out-of-bounds value")
	}
	if res.Reason == "" {
		t.Error("failed execution should carry a reason")
	}
	after := r.Snapshot()
	if after.Version != before.Version || after.UpdatedAt != before.UpdatedAt {
		t.Errorf("failed execution changed version/updated_at: %+v -> %+v", before, after)
	}
	if !after.Parameters[domain.ParamTaskTaxRate].Equal(before.Parameters[domain.ParamTaskTaxRate]) {
		t.Error("failed execution changed the parameter")
	}
	if len(r.History()) != 0 {
		t.Error("failed execution should not append history")
	}
}

func TestRegistry_CloneIsIndependent(t *testing.T) {
	r := newTestRegistry(t)
	r.Execute("p1", domain.ParamMinTaskReward, domain.IntValue(5), 1)

	cp := r.Clone()
	cp.Execute("p2", domain.ParamMinTaskReward, domain.IntValue(7), 2)

	if r.Int(domain.ParamMinTaskReward) != 5 || r.Version() != 1 || len(r.History()) != 1 {
		t.Errorf("original mutated through clone: value=%d version=%d history=%d",
			r.Int(domain.ParamMinTaskReward), r.Version(), len(r.History()))
	}
	if cp.Int(domain.ParamMinTaskReward) != 7 || cp.Version() != 2 {
		t.Errorf("clone value=%d version=%d, want 7/2", cp.Int(domain.ParamMinTaskReward), cp.Version())
	}
}
