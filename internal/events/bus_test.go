package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	events  []Event
	failing bool
}

func (s *memStore) Insert(_ context.Context, e Event) error {
	if s.failing {
		return errors.New("insert failed")
	}
	s.events = append(s.events, e)
	return nil
}

func TestEmitPersistsAndFansOut(t *testing.T) {
	store := &memStore{}
	bus := &Bus{
		Store: store,
		Log:   zerolog.Nop(),
		Now:   func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) },
	}

	var got []Event
	bus.Subscribe(TopicVoucherRedeemed, func(_ context.Context, e Event) {
		got = append(got, e)
	})
	bus.Subscribe(TopicPassportIssued, func(_ context.Context, e Event) {
		t.Error("handler for another topic should not fire")
	})

	err := bus.Emit(context.Background(), TopicVoucherRedeemed, "v-1", map[string]string{"code": "ROC-A2B3C"})
	require.NoError(t, err)

	require.Len(t, store.events, 1)
	require.Len(t, got, 1)
	require.Equal(t, TopicVoucherRedeemed, got[0].Topic)
	require.Equal(t, "v-1", got[0].AggregateID)
	require.NotEmpty(t, got[0].ID)
	require.Equal(t, bus.Now(), got[0].OccurredAt)
	require.JSONEq(t, `{"code":"ROC-A2B3C"}`, string(got[0].Payload))
}

func TestEmitAbortsWhenPersistFails(t *testing.T) {
	bus := &Bus{Store: &memStore{failing: true}, Log: zerolog.Nop()}

	fired := false
	bus.Subscribe(TopicPassportIssued, func(_ context.Context, _ Event) { fired = true })

	err := bus.Emit(context.Background(), TopicPassportIssued, "u-1", nil)
	require.Error(t, err)
	require.False(t, fired, "handlers must not see an event that was never persisted")
}

func TestEmitContainsHandlerPanic(t *testing.T) {
	store := &memStore{}
	bus := &Bus{Store: store, Log: zerolog.Nop()}

	bus.Subscribe(TopicVoucherExpired, func(_ context.Context, _ Event) { panic("boom") })
	calls := 0
	bus.Subscribe(TopicVoucherExpired, func(_ context.Context, _ Event) { calls++ })

	err := bus.Emit(context.Background(), TopicVoucherExpired, "sweep", map[string]int{"count": 3})
	require.NoError(t, err)
	require.Equal(t, 1, calls, "a panicking handler must not starve the others")
}

func TestKnownTopic(t *testing.T) {
	for _, topic := range Topics() {
		require.True(t, KnownTopic(topic))
	}
	require.False(t, KnownTopic("order.created"))
}
