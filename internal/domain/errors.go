package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Ingestion errors (MalformedEvent)
	ErrMalformedEvent   = errors.New("malformed event")
	ErrBadSignature     = errors.New("event signature invalid")
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("event payload malformed")

	// Derivation errors (SemanticInconsistency)
	ErrSemanticInconsistency = errors.New("semantic inconsistency")
	ErrMissingDependency     = errors.New("causal dependency not yet derived")
	ErrTaskNotFound          = errors.New("task not found")
	ErrTaskExists            = errors.New("task already exists")
	ErrTaskState             = errors.New("task not in expected state")
	ErrNotPermitted          = errors.New("author not permitted for this transition")
	ErrInsufficientFunds     = errors.New("insufficient balance")
	ErrInsufficientTreasury  = errors.New("insufficient treasury balance")
	ErrRewardTooSmall        = errors.New("task reward below min_task_reward")
	ErrProposalNotFound      = errors.New("governance proposal not found")
	ErrProposalExists        = errors.New("governance proposal already exists")
	ErrVotingClosed          = errors.New("voting period has ended")

	// Executor errors (ValidationFailure)
	ErrValidationFailure = errors.New("config change validation failed")
	ErrUnknownParam      = errors.New("unknown governable parameter")
	ErrParamKind         = errors.New("parameter kind mismatch")
	ErrParamBounds       = errors.New("parameter value out of bounds")

	// Convergence
	ErrConvergenceDivergence = errors.New("replicas diverged on identical event set")
)

// MalformedEventError rejects an event at ingestion. It is never stored.
type MalformedEventError struct {
	EventID string
	Err     error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event %s: %v", e.EventID, e.Err)
}

func (e *MalformedEventError) Unwrap() []error { return []error{ErrMalformedEvent, e.Err} }

// Malformed wraps err as a MalformedEventError for ev.
func Malformed(eventID string, err error) error {
	return &MalformedEventError{EventID: eventID, Err: err}
}

// SemanticError marks a well-formed event whose preconditions do not hold
// against derived state. Derivation skips it and records a diagnostic.
type SemanticError struct {
	EventID string
	Err     error
	Detail  string
}

func (e *SemanticError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("event %s: %v", e.EventID, e.Err)
	}
	return fmt.Sprintf("event %s: %v: %s", e.EventID, e.Err, e.Detail)
}

func (e *SemanticError) Unwrap() []error { return []error{ErrSemanticInconsistency, e.Err} }

// Inconsistent builds a SemanticError.
func Inconsistent(eventID string, err error, format string, args ...any) error {
	return &SemanticError{EventID: eventID, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// ValidationError explains why an approved config change was not executed.
type ValidationError struct {
	Key string
	Err error
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Key, e.Err, e.Msg)
}

func (e *ValidationError) Unwrap() []error { return []error{ErrValidationFailure, e.Err} }

// DivergenceError reports two replicas deriving different state from the
// same event set. It always indicates an implementation bug.
type DivergenceError struct {
	Events int
	Local  string
	Remote string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("%v: %d events, local fingerprint %s, remote %s",
		ErrConvergenceDivergence, e.Events, e.Local, e.Remote)
}

func (e *DivergenceError) Unwrap() error { return ErrConvergenceDivergence }
