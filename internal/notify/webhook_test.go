package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roc-passaporte/backend-passaporte/internal/events"
	"github.com/roc-passaporte/backend-passaporte/internal/notify"
)

type memWebhookStore struct {
	mu         sync.Mutex
	endpoints  map[string]notify.Endpoint
	events     map[string]events.Event
	deliveries map[string]*notify.Delivery
	dlq        []string
}

func newMemWebhookStore() *memWebhookStore {
	return &memWebhookStore{
		endpoints:  make(map[string]notify.Endpoint),
		events:     make(map[string]events.Event),
		deliveries: make(map[string]*notify.Delivery),
	}
}

func (m *memWebhookStore) ListActiveEndpointsForTopic(_ context.Context, topic string) ([]notify.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Endpoint
	for _, ep := range m.endpoints {
		if !ep.Active {
			continue
		}
		for _, t := range ep.Topics {
			if t == topic {
				out = append(out, ep)
				break
			}
		}
	}
	return out, nil
}

func (m *memWebhookStore) GetEndpoint(_ context.Context, id string) (notify.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[id]
	if !ok {
		return notify.Endpoint{}, notify.ErrEndpointNotFound
	}
	return ep, nil
}

func (m *memWebhookStore) EnqueueDelivery(_ context.Context, endpointID, eventID string, maxAttempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deliveries {
		if d.EndpointID == endpointID && d.EventID == eventID {
			return nil
		}
	}
	id := uuid.NewString()
	m.deliveries[id] = &notify.Delivery{
		ID:         id,
		EndpointID: endpointID,
		EventID:    eventID,
		Status:     notify.DeliveryPending,
		MaxAttempt: maxAttempt,
		NextRunAt:  time.Now(),
	}
	return nil
}

func (m *memWebhookStore) DequeueDueDeliveries(_ context.Context, batch int) ([]notify.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Delivery
	for _, d := range m.deliveries {
		if len(out) >= batch {
			break
		}
		due := d.Status == notify.DeliveryPending || d.Status == notify.DeliveryFailed
		if due && !d.NextRunAt.After(time.Now()) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memWebhookStore) MarkDelivering(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return errors.New("missing delivery")
	}
	d.Status = notify.DeliveryDelivering
	d.Attempt++
	return nil
}

func (m *memWebhookStore) MarkDelivered(_ context.Context, id string, _ int, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[id].Status = notify.DeliveryDelivered
	return nil
}

func (m *memWebhookStore) MarkFailedWithBackoff(_ context.Context, id string, delay time.Duration, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	d.Status = notify.DeliveryFailed
	d.LastError = reason
	d.NextRunAt = time.Now().Add(delay)
	return nil
}

func (m *memWebhookStore) MoveToDLQ(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	d.Status = notify.DeliveryDead
	d.LastError = reason
	m.dlq = append(m.dlq, id)
	return nil
}

func (m *memWebhookStore) GetEvent(_ context.Context, id string) (events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return events.Event{}, errors.New("missing event")
	}
	return e, nil
}

func seedEventAndEndpoint(store *memWebhookStore, url string) events.Event {
	ep := notify.Endpoint{
		ID:     uuid.NewString(),
		URL:    url,
		Secret: "endpoint-secret",
		Topics: []string{events.TopicVoucherRedeemed},
		Active: true,
	}
	ev := events.Event{
		ID:          uuid.NewString(),
		Topic:       events.TopicVoucherRedeemed,
		AggregateID: uuid.NewString(),
		Payload:     json.RawMessage(`{"code":"ROC-AAAAA"}`),
		OccurredAt:  time.Now(),
	}
	store.endpoints[ep.ID] = ep
	store.events[ev.ID] = ev
	return ev
}

func TestScheduleAndDeliverWithSignature(t *testing.T) {
	type recorded struct {
		headers http.Header
		body    []byte
	}
	received := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- recorded{headers: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store := newMemWebhookStore()
	ev := seedEventAndEndpoint(store, srv.URL)
	dispatcher := &notify.Dispatcher{
		Store:   store,
		Client:  srv.Client(),
		Enabled: true,
	}

	require.NoError(t, dispatcher.Schedule(context.Background(), ev))
	require.Len(t, store.deliveries, 1)

	// Scheduling the same event again must not duplicate the delivery.
	require.NoError(t, dispatcher.Schedule(context.Background(), ev))
	require.Len(t, store.deliveries, 1)

	require.NoError(t, dispatcher.WorkOnce(context.Background(), 10))

	var got recorded
	select {
	case got = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint never called")
	}

	require.Equal(t, ev.ID, got.headers.Get("X-Event-ID"))
	ts, err := strconv.ParseInt(got.headers.Get("X-Timestamp"), 10, 64)
	require.NoError(t, err)
	expected := notify.ComputeSignature("endpoint-secret", ts, ev.ID, got.body)
	require.Equal(t, expected, got.headers.Get("X-Signature"))

	var payload struct {
		EventID string          `json:"eventId"`
		Topic   string          `json:"topic"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.body, &payload))
	require.Equal(t, ev.Topic, payload.Topic)
	require.JSONEq(t, `{"code":"ROC-AAAAA"}`, string(payload.Data))

	for _, d := range store.deliveries {
		require.Equal(t, notify.DeliveryDelivered, d.Status)
	}
}

func TestFailedDeliveriesBackOffThenDLQ(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := newMemWebhookStore()
	ev := seedEventAndEndpoint(store, srv.URL)
	dispatcher := &notify.Dispatcher{
		Store:              store,
		Client:             srv.Client(),
		Enabled:            true,
		BackoffBase:        time.Millisecond,
		DefaultMaxAttempts: 2,
	}

	require.NoError(t, dispatcher.Schedule(context.Background(), ev))
	require.NoError(t, dispatcher.WorkOnce(context.Background(), 10))

	var d notify.Delivery
	for _, v := range store.deliveries {
		d = *v
	}
	require.Equal(t, notify.DeliveryFailed, d.Status)
	require.Equal(t, 1, d.Attempt)
	require.Contains(t, d.LastError, "status=500")

	// Second attempt exhausts the budget and lands in the DLQ.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, dispatcher.WorkOnce(context.Background(), 10))
	for _, v := range store.deliveries {
		require.Equal(t, notify.DeliveryDead, v.Status)
	}
	require.Len(t, store.dlq, 1)
}

func TestDisabledDispatcherDoesNothing(t *testing.T) {
	store := newMemWebhookStore()
	ev := seedEventAndEndpoint(store, "https://example.com/hook")
	dispatcher := &notify.Dispatcher{Store: store, Enabled: false}

	require.NoError(t, dispatcher.Schedule(context.Background(), ev))
	require.Empty(t, store.deliveries)
	require.NoError(t, dispatcher.WorkOnce(context.Background(), 10))
}

func TestValidateURLRejectsPlainHTTP(t *testing.T) {
	store := newMemWebhookStore()
	ev := seedEventAndEndpoint(store, "http://attacker.example.com/hook")
	dispatcher := &notify.Dispatcher{
		Store:              store,
		Enabled:            true,
		DefaultMaxAttempts: 1,
	}

	require.NoError(t, dispatcher.Schedule(context.Background(), ev))
	require.NoError(t, dispatcher.WorkOnce(context.Background(), 10))

	for _, d := range store.deliveries {
		require.Equal(t, notify.DeliveryDead, d.Status)
		require.Contains(t, d.LastError, "localhost")
	}
}
