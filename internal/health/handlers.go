// Package health serves the liveness and readiness probes. Liveness only
// proves the process answers; readiness also probes Postgres and Redis and
// flips off during shutdown so the load balancer drains the instance.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker probes the backing stores with a per-dependency timeout.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler answers the probe endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes each dependency and reports per-dependency status. Any
// failing probe, or a draining instance, answers 503.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !Ready() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	status := map[string]string{"db": "ok", "redis": "ok"}
	if err := h.Checker.PingDB(ctx, h.timeout(h.DBTimeout, 500*time.Millisecond)); err != nil {
		status["db"] = err.Error()
	}
	if err := h.Checker.PingRedis(ctx, h.timeout(h.RedisTimeout, 300*time.Millisecond)); err != nil {
		status["redis"] = err.Error()
	}

	code := http.StatusOK
	for _, s := range status {
		if s != "ok" {
			code = http.StatusServiceUnavailable
			break
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (Handler) timeout(configured, fallback time.Duration) time.Duration {
	if configured <= 0 {
		return fallback
	}
	return configured
}
