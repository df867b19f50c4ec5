package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// ─── Event Log ──────────────────────────────────────────────────────────────
// DB implements domain.EventLog.

var _ domain.EventLog = (*DB)(nil)

// InsertEvent appends ev. A repeated id is a no-op reported as inserted=false.
func (d *DB) InsertEvent(ctx context.Context, ev domain.Event) (int64, bool, error) {
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO events (id, channel, type, payload, author, clock, time, signature, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		ev.ID, ev.Channel, string(ev.Type), []byte(ev.Payload), ev.Author,
		int64(ev.Clock), ev.Time, ev.Signature, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	seq, err := result.LastInsertId()
	return seq, true, err
}

// HasEvent reports whether an event id is stored.
func (d *DB) HasEvent(ctx context.Context, id string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EventsSince returns up to limit events of channel with seq > cursor.
func (d *DB) EventsSince(ctx context.Context, channel string, cursor int64, limit int) ([]domain.StoredEvent, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT seq, id, channel, type, payload, author, clock, time, signature
		 FROM events WHERE channel = ? AND seq > ? ORDER BY seq ASC LIMIT ?`,
		channel, cursor, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StoredEvent
	for rows.Next() {
		var se domain.StoredEvent
		if err := scanEvent(rows, &se.Seq, &se.Event); err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

// AllEvents returns every stored event in insertion order.
func (d *DB) AllEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT seq, id, channel, type, payload, author, clock, time, signature
		 FROM events ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			seq int64
			ev  domain.Event
		)
		if err := scanEvent(rows, &seq, &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountEvents returns the number of stored events.
func (d *DB) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// ─── Channels ───────────────────────────────────────────────────────────────

// RegisterChannel adds a channel to the known set.
func (d *DB) RegisterChannel(ctx context.Context, channel string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO channels (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		channel, time.Now().Unix(),
	)
	return err
}

// Channels lists known channels sorted by id.
func (d *DB) Channels(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM channels ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanEvent(s scanner, seq *int64, ev *domain.Event) error {
	var (
		typ     string
		payload []byte
		clock   int64
	)
	err := s.Scan(seq, &ev.ID, &ev.Channel, &typ, &payload, &ev.Author, &clock, &ev.Time, &ev.Signature)
	if err != nil {
		return fmt.Errorf("scan event: %w", err)
	}
	ev.Type = domain.EventType(typ)
	ev.Payload = payload
	ev.Clock = uint64(clock)
	return nil
}
