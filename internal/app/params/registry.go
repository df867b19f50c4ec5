package params

import (
	"fmt"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// Registry holds the active parameter values and their version history.
// It is owned by a single derivation pass; callers get Snapshots.
type Registry struct {
	schema    *Schema
	current   map[string]domain.ParamValue
	version   uint64
	updatedAt int64
	history   []domain.ConfigChange
}

// NewRegistry starts at version 0 with schema defaults, replaced by any
// genesis overrides (already coerced and checked by the caller or here).
func NewRegistry(schema *Schema, genesis map[string]domain.ParamValue) (*Registry, error) {
	r := &Registry{
		schema:  schema,
		current: make(map[string]domain.ParamValue, len(schema.keys)),
	}
	for _, p := range schema.List() {
		r.current[p.Key] = p.Default
	}
	for k, v := range genesis {
		if err := schema.Check(k, v); err != nil {
			return nil, fmt.Errorf("genesis: %w", err)
		}
		r.current[k] = v
	}
	return r, nil
}

// Clone returns an independent copy (history shared read-only).
func (r *Registry) Clone() *Registry {
	cp := &Registry{
		schema:    r.schema,
		current:   make(map[string]domain.ParamValue, len(r.current)),
		version:   r.version,
		updatedAt: r.updatedAt,
		history:   r.history[:len(r.history):len(r.history)],
	}
	for k, v := range r.current {
		cp.current[k] = v
	}
	return cp
}

// Schema returns the parameter schema.
func (r *Registry) Schema() *Schema { return r.schema }

// Version returns the current config version.
func (r *Registry) Version() uint64 { return r.version }

// Get returns the active value of key.
func (r *Registry) Get(key string) (domain.ParamValue, bool) {
	v, ok := r.current[key]
	return v, ok
}

// Int returns an int parameter's active value.
func (r *Registry) Int(key string) int64 { return r.current[key].Int }

// Float returns a parameter's active value widened to float64.
func (r *Registry) Float(key string) float64 { return r.current[key].AsFloat() }

// Snapshot copies the active configuration.
func (r *Registry) Snapshot() domain.ConfigSnapshot {
	params := make(map[string]domain.ParamValue, len(r.current))
	for k, v := range r.current {
		params[k] = v
	}
	return domain.ConfigSnapshot{Parameters: params, Version: r.version, UpdatedAt: r.updatedAt}
}

// History returns the applied changes, oldest first.
func (r *Registry) History() []domain.ConfigChange {
	return append([]domain.ConfigChange(nil), r.history...)
}

// Validate checks a proposed change without applying it: the key must exist
// in the active config and the value must match its declared kind and bounds.
func (r *Registry) Validate(key string, v domain.ParamValue) error {
	old, ok := r.current[key]
	if !ok {
		return &domain.ValidationError{Key: key, Err: domain.ErrUnknownParam, Msg: "not in active config"}
	}
	if old.Kind != v.Kind {
		return &domain.ValidationError{Key: key, Err: domain.ErrParamKind,
			Msg: fmt.Sprintf("got %s, active value is %s", v.Kind, old.Kind)}
	}
	return r.schema.Check(key, v)
}

// Execute validates and applies a change atomically: the value, version and
// updated_at move together or not at all. The result is what gets recorded
// on the proposal.
func (r *Registry) Execute(proposalID, key string, v domain.ParamValue, at int64) domain.ExecutionResult {
	if err := r.Validate(key, v); err != nil {
		return domain.ExecutionResult{Success: false, Key: key, Reason: err.Error()}
	}

	old := r.current[key]
	r.current[key] = v
	r.version++
	r.updatedAt = at
	r.history = append(r.history, domain.ConfigChange{
		Version:    r.version,
		Key:        key,
		OldValue:   old,
		NewValue:   v,
		ProposalID: proposalID,
		UpdatedAt:  at,
	})

	oldCopy, newCopy := old, v
	return domain.ExecutionResult{
		Success:  true,
		Key:      key,
		OldValue: &oldCopy,
		NewValue: &newCopy,
		Version:  r.version,
	}
}
