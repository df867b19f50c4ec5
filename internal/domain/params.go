package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ─── Governable Parameters ──────────────────────────────────────────────────
// Parameters are a tagged variant (int | float) checked structurally, never
// by comparing runtime types of arbitrary values.

// ParamKind is the declared type of a governable parameter.
type ParamKind string

const (
	ParamInt   ParamKind = "int"
	ParamFloat ParamKind = "float"
)

// ParamValue holds exactly one of Int or Float, selected by Kind.
type ParamValue struct {
	Kind  ParamKind
	Int   int64
	Float float64
}

// IntValue builds an int-tagged parameter value.
func IntValue(v int64) ParamValue { return ParamValue{Kind: ParamInt, Int: v} }

// FloatValue builds a float-tagged parameter value.
func FloatValue(v float64) ParamValue { return ParamValue{Kind: ParamFloat, Float: v} }

// AsFloat widens the value for bounds comparison.
func (v ParamValue) AsFloat() float64 {
	if v.Kind == ParamInt {
		return float64(v.Int)
	}
	return v.Float
}

// Equal compares kind and payload.
func (v ParamValue) Equal(o ParamValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.Kind == ParamInt {
		return v.Int == o.Int
	}
	return v.Float == o.Float
}

// String renders the value without its tag.
func (v ParamValue) String() string {
	switch v.Kind {
	case ParamInt:
		return strconv.FormatInt(v.Int, 10)
	case ParamFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return "<invalid>"
	}
}

// paramValueJSON is the wire form: {"int": 15} or {"float": 0.02}.
type paramValueJSON struct {
	Int   *int64   `json:"int,omitempty"`
	Float *float64 `json:"float,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v ParamValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ParamInt:
		return json.Marshal(paramValueJSON{Int: &v.Int})
	case ParamFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return nil, fmt.Errorf("param value: non-finite float")
		}
		return json.Marshal(paramValueJSON{Float: &v.Float})
	default:
		return nil, fmt.Errorf("param value: unknown kind %q", v.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *ParamValue) UnmarshalJSON(data []byte) error {
	var raw paramValueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Int != nil && raw.Float != nil:
		return fmt.Errorf("param value: both int and float set")
	case raw.Int != nil:
		*v = IntValue(*raw.Int)
	case raw.Float != nil:
		*v = FloatValue(*raw.Float)
	default:
		return fmt.Errorf("param value: missing int or float")
	}
	return nil
}

// ParamCategory groups governable parameters.
type ParamCategory string

const (
	ParamCategoryEconomic   ParamCategory = "economic"   // Balances, tax
	ParamCategoryReputation ParamCategory = "reputation" // Reputation awards
	ParamCategoryGovernance ParamCategory = "governance" // Voting weights
)

// GovernableParam is one row of the static parameter schema.
// The schema itself is not subject to governance.
type GovernableParam struct {
	Key         string        `json:"key"`
	Kind        ParamKind     `json:"kind"`
	Min         float64       `json:"min"`
	Max         float64       `json:"max"`
	Default     ParamValue    `json:"default"`
	Category    ParamCategory `json:"category"`
	Description string        `json:"description"`
}

// Governable parameter keys.
const (
	ParamInitialBalance         = "initial_balance_sp"
	ParamTreasuryInitialBalance = "treasury_initial_balance"
	ParamTaskTaxRate            = "task_tax_rate"
	ParamTaskCompletionRep      = "task_completion_reputation_reward"
	ParamProposalVoteRep        = "proposal_vote_reputation_reward"
	ParamVoteWeightLogBase      = "vote_weight_log_base"
	ParamMinTaskReward          = "min_task_reward"
)

// ConfigSnapshot is an immutable view of the active configuration.
type ConfigSnapshot struct {
	Parameters map[string]ParamValue `json:"parameters"`
	Version    uint64                `json:"version"`
	UpdatedAt  int64                 `json:"updated_at"` // unix millis of the applying event
}

// Int returns an int parameter, or 0 when absent.
func (s ConfigSnapshot) Int(key string) int64 {
	return s.Parameters[key].Int
}

// Float returns a parameter widened to float64.
func (s ConfigSnapshot) Float(key string) float64 {
	return s.Parameters[key].AsFloat()
}

// ConfigChange is one entry of the registry's append-only version history.
type ConfigChange struct {
	Version    uint64     `json:"version"`
	Key        string     `json:"key"`
	OldValue   ParamValue `json:"old_value"`
	NewValue   ParamValue `json:"new_value"`
	ProposalID string     `json:"proposal_id"`
	UpdatedAt  int64      `json:"updated_at"`
}
