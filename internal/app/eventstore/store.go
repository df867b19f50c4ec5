// Package eventstore implements the append-only, deduplicated Event Store.
// Submitting an event never touches derived state; derivation reads the
// store lazily.
package eventstore

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// MaxClock bounds accepted logical clocks so a hostile peer cannot push the
// Lamport clock to overflow.
const MaxClock uint64 = 1 << 53

// Store validates incoming events and appends them to an EventLog.
type Store struct {
	backend  domain.EventLog
	verifier domain.SignatureVerifier

	mu       sync.Mutex
	channels map[string]bool
	clock    uint64 // highest clock witnessed
	version  uint64 // bumped on every accepted event
}

// Open wraps backend, registering channels (plus the default channel) and
// witnessing the clocks of events already stored.
func Open(ctx context.Context, backend domain.EventLog, verifier domain.SignatureVerifier, channels []string) (*Store, error) {
	s := &Store{
		backend:  backend,
		verifier: verifier,
		channels: make(map[string]bool),
	}
	for _, ch := range append([]string{domain.DefaultChannel}, channels...) {
		if err := s.AddChannel(ctx, ch); err != nil {
			return nil, err
		}
	}
	known, err := backend.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	for _, ch := range known {
		s.channels[ch] = true
	}

	events, err := backend.AllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	for _, ev := range events {
		if ev.Clock > s.clock {
			s.clock = ev.Clock
		}
	}
	s.version = uint64(len(events))
	return s, nil
}

// AddChannel makes a channel known. Events for unknown channels are rejected.
func (s *Store) AddChannel(ctx context.Context, channel string) error {
	if channel == "" {
		return fmt.Errorf("channel name cannot be empty")
	}
	if err := s.backend.RegisterChannel(ctx, channel); err != nil {
		return fmt.Errorf("register channel %s: %w", channel, err)
	}
	s.mu.Lock()
	s.channels[channel] = true
	s.mu.Unlock()
	return nil
}

// Channels lists known channels sorted by name.
func (s *Store) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// HasChannel reports whether channel is known.
func (s *Store) HasChannel(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel]
}

// Submit validates and appends ev. Rejections are reported in the result;
// the returned error is reserved for storage failures.
func (s *Store) Submit(ctx context.Context, ev domain.Event) (domain.AcceptResult, error) {
	res := domain.AcceptResult{EventID: ev.ID}

	if err := s.check(ev); err != nil {
		log.Printf("[eventstore] rejected %s: %v", ev.ID, err)
		res.Status = domain.AcceptRejected
		res.Reason = err.Error()
		return res, nil
	}

	seq, inserted, err := s.backend.InsertEvent(ctx, ev)
	if err != nil {
		return res, fmt.Errorf("append %s: %w", ev.ID, err)
	}
	if !inserted {
		res.Status = domain.AcceptDuplicate
		return res, nil
	}

	s.mu.Lock()
	if ev.Clock > s.clock {
		s.clock = ev.Clock
	}
	s.version++
	s.mu.Unlock()

	res.Status = domain.AcceptAccepted
	res.Seq = seq
	return res, nil
}

// check runs ingestion validation: envelope, channel, signature, payload.
func (s *Store) check(ev domain.Event) error {
	if err := domain.ValidateEnvelope(ev); err != nil {
		return domain.Malformed(ev.ID, err)
	}
	if ev.Clock > MaxClock {
		return domain.Malformed(ev.ID, fmt.Errorf("clock %d exceeds %d", ev.Clock, MaxClock))
	}
	if !s.HasChannel(ev.Channel) {
		return domain.Malformed(ev.ID, fmt.Errorf("%w: %q", domain.ErrUnknownChannel, ev.Channel))
	}
	if err := s.verifier.VerifyEvent(ev); err != nil {
		return domain.Malformed(ev.ID, err)
	}
	if _, err := domain.DecodePayload(ev); err != nil {
		return domain.Malformed(ev.ID, err)
	}
	return nil
}

// EventsSince pages through a channel's events after cursor.
func (s *Store) EventsSince(ctx context.Context, channel string, cursor int64, limit int) ([]domain.StoredEvent, error) {
	if !s.HasChannel(channel) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownChannel, channel)
	}
	if limit <= 0 {
		limit = 100
	}
	return s.backend.EventsSince(ctx, channel, cursor, limit)
}

// All returns every stored event.
func (s *Store) All(ctx context.Context) ([]domain.Event, error) {
	return s.backend.AllEvents(ctx)
}

// Version counts accepted events. Derivation uses it to notice new input.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Clock returns the highest logical clock witnessed.
func (s *Store) Clock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// NextClock reserves a clock for a locally authored event: one past every
// clock witnessed so far.
func (s *Store) NextClock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock++
	return s.clock
}
