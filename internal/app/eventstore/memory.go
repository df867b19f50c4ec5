package eventstore

import (
	"context"
	"sort"
	"sync"

	"github.com/tutu-network/tutuledger/internal/domain"
)

var _ domain.EventLog = (*MemoryLog)(nil)

// MemoryLog is an in-process EventLog for tests and ephemeral nodes.
type MemoryLog struct {
	mu       sync.RWMutex
	events   []domain.StoredEvent
	ids      map[string]bool
	channels map[string]bool
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{ids: make(map[string]bool), channels: make(map[string]bool)}
}

func (m *MemoryLog) InsertEvent(_ context.Context, ev domain.Event) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids[ev.ID] {
		return 0, false, nil
	}
	seq := int64(len(m.events) + 1)
	m.events = append(m.events, domain.StoredEvent{Seq: seq, Event: ev})
	m.ids[ev.ID] = true
	return seq, true, nil
}

func (m *MemoryLog) HasEvent(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ids[id], nil
}

func (m *MemoryLog) EventsSince(_ context.Context, channel string, cursor int64, limit int) ([]domain.StoredEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.StoredEvent
	for _, se := range m.events {
		if se.Seq <= cursor || se.Event.Channel != channel {
			continue
		}
		out = append(out, se)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryLog) AllEvents(context.Context) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Event, len(m.events))
	for i, se := range m.events {
		out[i] = se.Event
	}
	return out, nil
}

func (m *MemoryLog) RegisterChannel(_ context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel] = true
	return nil
}

func (m *MemoryLog) Channels(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.channels))
	for ch := range m.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out, nil
}
