// Package params holds the governable-parameter schema and the versioned
// Config Registry. The registry is mutated only by the proposal executor,
// one validated change at a time.
package params

import (
	"fmt"
	"math"
	"sort"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// DefaultSchema returns the static governable-parameter table.
func DefaultSchema() []domain.GovernableParam {
	return []domain.GovernableParam{
		// Economic parameters
		{Key: domain.ParamInitialBalance, Kind: domain.ParamInt, Min: 0, Max: 1e9, Default: domain.IntValue(100),
			Category: domain.ParamCategoryEconomic, Description: "SP credited to an account when it first appears"},
		{Key: domain.ParamTreasuryInitialBalance, Kind: domain.ParamInt, Min: 0, Max: 1e12, Default: domain.IntValue(0),
			Category: domain.ParamCategoryEconomic, Description: "SP held by a channel treasury when it first appears"},
		{Key: domain.ParamTaskTaxRate, Kind: domain.ParamFloat, Min: 0, Max: 0.5, Default: domain.FloatValue(0.02),
			Category: domain.ParamCategoryEconomic, Description: "Share of a task reward routed to the channel treasury"},
		{Key: domain.ParamMinTaskReward, Kind: domain.ParamInt, Min: 1, Max: 1e9, Default: domain.IntValue(1),
			Category: domain.ParamCategoryEconomic, Description: "Smallest reward a task may escrow"},

		// Reputation parameters
		{Key: domain.ParamTaskCompletionRep, Kind: domain.ParamInt, Min: 0, Max: 1000, Default: domain.IntValue(10),
			Category: domain.ParamCategoryReputation, Description: "Reputation awarded to the assignee of a completed task"},
		{Key: domain.ParamProposalVoteRep, Kind: domain.ParamInt, Min: 0, Max: 1000, Default: domain.IntValue(1),
			Category: domain.ParamCategoryReputation, Description: "Reputation awarded for the first vote on a proposal"},

		// Governance parameters
		{Key: domain.ParamVoteWeightLogBase, Kind: domain.ParamFloat, Min: 1.1, Max: 100, Default: domain.FloatValue(2),
			Category: domain.ParamCategoryGovernance, Description: "Base of the logarithm turning reputation into vote weight"},
	}
}

// Schema is an indexed, validated parameter table.
type Schema struct {
	params map[string]domain.GovernableParam
	keys   []string
}

// NewSchema indexes params and checks that every default satisfies its own
// declaration.
func NewSchema(params []domain.GovernableParam) (*Schema, error) {
	s := &Schema{params: make(map[string]domain.GovernableParam, len(params))}
	for _, p := range params {
		if p.Key == "" {
			return nil, fmt.Errorf("parameter key cannot be empty")
		}
		if _, dup := s.params[p.Key]; dup {
			return nil, fmt.Errorf("parameter %q declared twice", p.Key)
		}
		if p.Min > p.Max {
			return nil, fmt.Errorf("parameter %q: min %v > max %v", p.Key, p.Min, p.Max)
		}
		s.params[p.Key] = p
		if err := s.Check(p.Key, p.Default); err != nil {
			return nil, fmt.Errorf("default of %q: %w", p.Key, err)
		}
		s.keys = append(s.keys, p.Key)
	}
	sort.Strings(s.keys)
	return s, nil
}

// MustDefaultSchema panics if the built-in table is inconsistent.
func MustDefaultSchema() *Schema {
	s, err := NewSchema(DefaultSchema())
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns a parameter declaration.
func (s *Schema) Lookup(key string) (domain.GovernableParam, bool) {
	p, ok := s.params[key]
	return p, ok
}

// Keys returns parameter keys sorted for deterministic iteration.
func (s *Schema) Keys() []string {
	return append([]string(nil), s.keys...)
}

// List returns declarations sorted by key.
func (s *Schema) List() []domain.GovernableParam {
	out := make([]domain.GovernableParam, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.params[k])
	}
	return out
}

// Check validates v against the declaration of key: same kind, finite,
// and within [min, max]. It is pure so every node reaches the same verdict.
func (s *Schema) Check(key string, v domain.ParamValue) error {
	p, ok := s.params[key]
	if !ok {
		return &domain.ValidationError{Key: key, Err: domain.ErrUnknownParam, Msg: "not in schema"}
	}
	if v.Kind != p.Kind {
		return &domain.ValidationError{Key: key, Err: domain.ErrParamKind,
			Msg: fmt.Sprintf("got %s, want %s", v.Kind, p.Kind)}
	}
	f := v.AsFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &domain.ValidationError{Key: key, Err: domain.ErrParamBounds, Msg: "not finite"}
	}
	if f < p.Min || f > p.Max {
		return &domain.ValidationError{Key: key, Err: domain.ErrParamBounds,
			Msg: fmt.Sprintf("%s not in [%v, %v]", v, p.Min, p.Max)}
	}
	return nil
}

// Coerce converts a loosely typed value (from TOML) into the declared kind.
// Integral floats are accepted for int parameters; ints widen to float.
func (s *Schema) Coerce(key string, raw any) (domain.ParamValue, error) {
	p, ok := s.params[key]
	if !ok {
		return domain.ParamValue{}, fmt.Errorf("%w: %q", domain.ErrUnknownParam, key)
	}
	var v domain.ParamValue
	switch x := raw.(type) {
	case int64:
		v = domain.IntValue(x)
	case int:
		v = domain.IntValue(int64(x))
	case float64:
		v = domain.FloatValue(x)
	default:
		return domain.ParamValue{}, fmt.Errorf("%q: unsupported value type %T", key, raw)
	}
	switch {
	case p.Kind == domain.ParamFloat && v.Kind == domain.ParamInt:
		v = domain.FloatValue(float64(v.Int))
	case p.Kind == domain.ParamInt && v.Kind == domain.ParamFloat:
		if v.Float != math.Trunc(v.Float) {
			return domain.ParamValue{}, &domain.ValidationError{Key: key, Err: domain.ErrParamKind,
				Msg: fmt.Sprintf("%v is not an integer", v.Float)}
		}
		v = domain.IntValue(int64(v.Float))
	}
	if err := s.Check(key, v); err != nil {
		return domain.ParamValue{}, err
	}
	return v, nil
}
