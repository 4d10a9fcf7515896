package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roc-passaporte/backend-passaporte/internal/events"
)

// ErrEndpointNotFound is returned when a webhook endpoint lookup misses.
var ErrEndpointNotFound = errors.New("notify: endpoint not found")

// Delivery states persisted in webhook_deliveries.status.
const (
	DeliveryPending    = "pending"
	DeliveryDelivering = "delivering"
	DeliveryDelivered  = "delivered"
	DeliveryFailed     = "failed"
	DeliveryDead       = "dead"
)

// Endpoint is a registered webhook receiver with its subscribed topics.
type Endpoint struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Topics    []string  `json:"topics"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Delivery is one attempt chain of an event toward one endpoint.
type Delivery struct {
	ID         string
	EndpointID string
	EventID    string
	Status     string
	Attempt    int
	MaxAttempt int
	NextRunAt  time.Time
	LastError  string
}

// Store is the persistence boundary for webhook endpoints and deliveries.
type Store interface {
	ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (Endpoint, error)

	EnqueueDelivery(ctx context.Context, endpointID, eventID string, maxAttempt int) error
	DequeueDueDeliveries(ctx context.Context, batch int) ([]Delivery, error)
	MarkDelivering(ctx context.Context, id string) error
	MarkDelivered(ctx context.Context, id string, status int, body string) error
	MarkFailedWithBackoff(ctx context.Context, id string, delay time.Duration, reason string) error
	MoveToDLQ(ctx context.Context, id, reason string) error

	GetEvent(ctx context.Context, id string) (events.Event, error)
}

// PGStore implements Store on Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s *PGStore) ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, url, secret, topics, active, created_at
		 FROM webhook_endpoints WHERE active AND $1 = ANY(topics)`, topic)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var out []Endpoint
	for rows.Next() {
		var ep Endpoint
		if err := rows.Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *PGStore) GetEndpoint(ctx context.Context, id string) (Endpoint, error) {
	var ep Endpoint
	err := s.Pool.QueryRow(ctx,
		`SELECT id, url, secret, topics, active, created_at
		 FROM webhook_endpoints WHERE id = $1`, id).
		Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, ErrEndpointNotFound
	}
	if err != nil {
		return Endpoint{}, fmt.Errorf("get endpoint: %w", err)
	}
	return ep, nil
}

func (s *PGStore) EnqueueDelivery(ctx context.Context, endpointID, eventID string, maxAttempt int) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO webhook_deliveries (endpoint_id, event_id, status, attempt, max_attempt, next_run_at)
		 VALUES ($1, $2, $3, 0, $4, now())`,
		endpointID, eventID, DeliveryPending, maxAttempt)
	if err != nil {
		var pgErr *pgconn.PgError
		// A delivery already queued for this endpoint/event pair is fine.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}

func (s *PGStore) DequeueDueDeliveries(ctx context.Context, batch int) ([]Delivery, error) {
	if batch <= 0 {
		batch = 1
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id, endpoint_id, event_id, status, attempt, max_attempt, next_run_at, COALESCE(last_error, '')
		 FROM webhook_deliveries
		 WHERE status IN ($1, $2) AND next_run_at <= now()
		 ORDER BY next_run_at
		 LIMIT $3
		 FOR UPDATE SKIP LOCKED`,
		DeliveryPending, DeliveryFailed, batch)
	if err != nil {
		return nil, fmt.Errorf("dequeue deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.EndpointID, &d.EventID, &d.Status, &d.Attempt, &d.MaxAttempt, &d.NextRunAt, &d.LastError); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGStore) MarkDelivering(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE webhook_deliveries SET status = $1, attempt = attempt + 1 WHERE id = $2`,
		DeliveryDelivering, id)
	return err
}

func (s *PGStore) MarkDelivered(ctx context.Context, id string, status int, body string) error {
	respStatus := pgtype.Int4{}
	if status > 0 {
		respStatus = pgtype.Int4{Int32: int32(status), Valid: true}
	}
	respBody := pgtype.Text{}
	if body != "" {
		respBody = pgtype.Text{String: body, Valid: true}
	}
	_, err := s.Pool.Exec(ctx,
		`UPDATE webhook_deliveries SET status = $1, response_status = $2, response_body = $3, delivered_at = now()
		 WHERE id = $4`,
		DeliveryDelivered, respStatus, respBody, id)
	return err
}

func (s *PGStore) MarkFailedWithBackoff(ctx context.Context, id string, delay time.Duration, reason string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE webhook_deliveries
		 SET status = $1, last_error = $2, next_run_at = now() + make_interval(secs => $3)
		 WHERE id = $4`,
		DeliveryFailed, reason, int(delay.Seconds()), id)
	return err
}

func (s *PGStore) MoveToDLQ(ctx context.Context, id, reason string) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("dlq begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE webhook_deliveries SET status = $1, last_error = $2 WHERE id = $3`,
		DeliveryDead, reason, id); err != nil {
		return fmt.Errorf("dlq mark: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO webhook_dlq (delivery_id, reason) VALUES ($1, $2)`,
		id, reason); err != nil {
		return fmt.Errorf("dlq insert: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PGStore) GetEvent(ctx context.Context, id string) (events.Event, error) {
	var e events.Event
	err := s.Pool.QueryRow(ctx,
		`SELECT id, topic, aggregate_id, payload, occurred_at FROM domain_events WHERE id = $1`, id).
		Scan(&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.OccurredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return events.Event{}, fmt.Errorf("event %s not found", id)
	}
	if err != nil {
		return events.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// CreateEndpoint registers a new webhook receiver.
func (s *PGStore) CreateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error) {
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO webhook_endpoints (id, url, secret, topics, active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		ep.ID, ep.URL, ep.Secret, ep.Topics, ep.Active).Scan(&ep.CreatedAt)
	if err != nil {
		return Endpoint{}, fmt.Errorf("create endpoint: %w", err)
	}
	return ep, nil
}

// ListEndpoints returns all registered endpoints for the admin surface.
func (s *PGStore) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, url, secret, topics, active, created_at FROM webhook_endpoints ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var out []Endpoint
	for rows.Next() {
		var ep Endpoint
		if err := rows.Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// DeactivateEndpoint stops future deliveries to an endpoint without deleting
// its history.
func (s *PGStore) DeactivateEndpoint(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE webhook_endpoints SET active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}
	return nil
}
