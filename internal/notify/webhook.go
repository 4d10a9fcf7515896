package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/roc-passaporte/backend-passaporte/internal/events"
	"github.com/roc-passaporte/backend-passaporte/internal/obs"
)

// Dispatcher coordinates webhook scheduling and delivery. Schedule runs on
// the publishing path and only enqueues; the actual HTTP work happens in
// WorkOnce on the worker.
type Dispatcher struct {
	Store              Store
	Client             *http.Client
	BackoffBase        time.Duration
	DefaultMaxAttempts int
	Enabled            bool
	Replay             ReplayProtector
	ReplayTTL          time.Duration
}

// Schedule enqueues deliveries for active endpoints subscribed to the topic.
func (d *Dispatcher) Schedule(ctx context.Context, event events.Event) error {
	if d == nil || !d.Enabled || d.Store == nil {
		return nil
	}
	if strings.TrimSpace(event.Topic) == "" {
		return nil
	}
	endpoints, err := d.Store.ListActiveEndpointsForTopic(ctx, event.Topic)
	if err != nil {
		return err
	}
	maxAttempt := d.DefaultMaxAttempts
	if maxAttempt <= 0 {
		maxAttempt = 6
	}
	var joined error
	for _, ep := range endpoints {
		if err := d.Store.EnqueueDelivery(ctx, ep.ID, event.ID, maxAttempt); err != nil {
			joined = errors.Join(joined, fmt.Errorf("enqueue delivery for %s: %w", ep.ID, err))
		}
	}
	return joined
}

// WorkOnce dequeues eligible deliveries and attempts delivery.
func (d *Dispatcher) WorkOnce(ctx context.Context, batch int) error {
	if d == nil || !d.Enabled || d.Store == nil {
		return nil
	}
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.WorkOnce")
	defer span.End()
	span.SetAttributes(attribute.Int("webhook.batch", batch))

	deliveries, err := d.Store.DequeueDueDeliveries(ctx, batch)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for _, del := range deliveries {
		attemptStart := time.Now()
		if err := d.Store.MarkDelivering(ctx, del.ID); err != nil {
			continue
		}
		endpoint, err := d.Store.GetEndpoint(ctx, del.EndpointID)
		if err != nil {
			d.failDelivery(ctx, del, fmt.Errorf("load endpoint: %w", err))
			continue
		}
		event, err := d.Store.GetEvent(ctx, del.EventID)
		if err != nil {
			d.failDelivery(ctx, del, fmt.Errorf("load event: %w", err))
			continue
		}
		status, respBody, deliverErr := d.deliver(ctx, endpoint, event, del)
		if deliverErr == nil && status >= 200 && status < 300 {
			countDelivery("delivered")
			observeAttempt("delivered", attemptStart)
			if err := d.Store.MarkDelivered(ctx, del.ID, status, respBody); err != nil {
				return err
			}
			continue
		}
		d.failDelivery(ctx, del, fmt.Errorf("status=%d err=%v", status, deliverErr))
		observeAttempt("failed", attemptStart)
	}
	return nil
}

func (d *Dispatcher) failDelivery(ctx context.Context, del Delivery, cause error) {
	reason := cause.Error()
	if del.Attempt+1 >= del.MaxAttempt {
		countDelivery("dlq")
		_ = d.Store.MoveToDLQ(ctx, del.ID, reason)
		return
	}
	countDelivery("failed")
	_ = d.Store.MarkFailedWithBackoff(ctx, del.ID, d.nextDelay(del.Attempt), reason)
}

// countDelivery and observeAttempt tolerate unset domain collectors so the
// dispatcher works without metric registration.
func countDelivery(result string) {
	if obs.WebhookDeliveriesTotal != nil {
		obs.WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	}
}

func observeAttempt(result string, start time.Time) {
	if obs.WebhookAttemptLatency != nil {
		obs.WebhookAttemptLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
	}
}

func (d *Dispatcher) nextDelay(attempt int) time.Duration {
	base := d.BackoffBase
	if base <= 0 {
		base = 5 * time.Second
	}
	factor := 1 << attempt
	if factor < 1 {
		factor = 1
	}
	return base * time.Duration(factor)
}

func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, ev events.Event, del Delivery) (int, string, error) {
	if d.Client == nil {
		d.Client = HTTPClient(5*time.Second, false)
	}
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.endpoint_id", ep.ID),
		attribute.String("webhook.delivery_id", del.ID),
		attribute.String("webhook.topic", ev.Topic),
	)
	if err := validateURL(ep.URL); err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	payload := struct {
		EventID    string          `json:"eventId"`
		Topic      string          `json:"topic"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{
		EventID:    ev.ID,
		Topic:      ev.Topic,
		Data:       ev.Payload,
		OccurredAt: occurred,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	ts := time.Now().Unix()
	if d.Replay != nil && d.ReplayTTL > 0 {
		key := "wh:" + ep.ID + ":" + ev.ID
		ok, err := d.Replay.Acquire(ctx, key, d.ReplayTTL)
		if err != nil {
			span.RecordError(err)
			return 0, "", err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return http.StatusOK, "replay-suppressed", nil
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "passaporte-webhooks/1.0")
	req.Header.Set("X-Event-ID", ev.ID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Idempotency-Key", del.ID)
	req.Header.Set("X-Signature", ComputeSignature(ep.Secret, ts, ev.ID, body))
	resp, err := d.Client.Do(req)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return resp.StatusCode, "", err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, string(responseBody), nil
}

// Deliver exposes the low-level delivery routine to allow manual replays and testing.
func (d *Dispatcher) Deliver(ctx context.Context, ep Endpoint, ev events.Event, del Delivery) (int, string, error) {
	return d.deliver(ctx, ep, ev, del)
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

// ComputeSignature calculates the webhook signature for the provided payload. The
// format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the endpoint secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns an HTTP client configured for webhook delivery.
// allowInsecureTLS skips certificate verification for self-signed POS
// endpoints in staging environments only.
func HTTPClient(timeout time.Duration, allowInsecureTLS bool) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := &http.Transport{}
	if allowInsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

// ReplayProtector guards against sending duplicate deliveries within a TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
