package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore appends events to the domain_events table.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s *PGStore) Insert(ctx context.Context, e Event) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Topic, e.AggregateID, []byte(e.Payload), e.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns the newest events for a topic, newest first. Used by the
// admin surface for debugging deliveries.
func (s *PGStore) Recent(ctx context.Context, topic string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id, topic, aggregate_id, payload, occurred_at
		 FROM domain_events WHERE topic = $1
		 ORDER BY occurred_at DESC LIMIT $2`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
