package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is a persisted record of something that happened in the domain.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Store persists events before they are handed to subscribers.
type Store interface {
	Insert(ctx context.Context, e Event) error
}

// Handler reacts to a published event. Handlers run synchronously on the
// publishing goroutine and must not block; anything slow belongs behind a
// queue the handler only schedules into.
type Handler func(ctx context.Context, e Event)

// Bus persists events and fans them out to in-process subscribers. Persist
// failures abort the publish; handler panics are contained.
type Bus struct {
	Store Store
	Log   zerolog.Logger

	// Now is a test seam.
	Now func() time.Time

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string][]Handler)
	}
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Emit persists the event and notifies subscribers of the topic.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	now := time.Now()
	if b.Now != nil {
		now = b.Now()
	}
	e := Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     raw,
		OccurredAt:  now,
	}
	if b.Store != nil {
		if err := b.Store.Insert(ctx, e); err != nil {
			return fmt.Errorf("events: persist: %w", err)
		}
	}

	b.mu.RLock()
	subs := b.handlers[topic]
	b.mu.RUnlock()
	for _, h := range subs {
		b.dispatch(ctx, h, e)
	}
	return nil
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.Log.Error().Interface("panic", r).Str("topic", e.Topic).Msg("event handler panicked")
		}
	}()
	h(ctx, e)
}
