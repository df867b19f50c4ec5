package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// EventLog abstracts persistent, append-only event storage.
// Implemented by infra/sqlite.DB and eventstore.MemoryLog.
type EventLog interface {
	// InsertEvent stores ev unless its id is already present.
	// inserted=false means the id was seen before (no-op).
	InsertEvent(ctx context.Context, ev Event) (seq int64, inserted bool, err error)

	// HasEvent reports whether an event id is already stored.
	HasEvent(ctx context.Context, id string) (bool, error)

	// EventsSince returns up to limit events of a channel with seq > cursor.
	EventsSince(ctx context.Context, channel string, cursor int64, limit int) ([]StoredEvent, error)

	// AllEvents returns every stored event, in insertion order.
	AllEvents(ctx context.Context) ([]Event, error)

	// RegisterChannel adds a channel to the known set (idempotent).
	RegisterChannel(ctx context.Context, channel string) error

	// Channels lists known channels.
	Channels(ctx context.Context) ([]string, error)
}

// SignatureVerifier checks that an event was signed by its author.
type SignatureVerifier interface {
	VerifyEvent(ev Event) error
}
