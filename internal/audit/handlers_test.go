package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type stubBrowser struct {
	gotCode  string
	gotLimit int
	attempts []Attempt
	err      error
}

func (s *stubBrowser) RecentByCode(_ context.Context, code string, limit int) ([]Attempt, error) {
	s.gotCode = code
	s.gotLimit = limit
	return s.attempts, s.err
}

func newAdminRouter(store *stubBrowser) http.Handler {
	h := &AdminHandler{Store: store}
	r := chi.NewRouter()
	r.Group(h.Routes)
	return r
}

func TestAttemptsByCodeNormalizesInput(t *testing.T) {
	store := &stubBrowser{attempts: []Attempt{{
		ID:        "a-1",
		Operation: OpConfirm,
		Code:      "ROC-A2B3C",
		Outcome:   OutcomeOK,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}}
	router := newAdminRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attempts?code=roca2b3c&limit=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if store.gotCode != "ROC-A2B3C" {
		t.Fatalf("store queried with %q, want normalized code", store.gotCode)
	}
	if store.gotLimit != 5 {
		t.Fatalf("limit = %d, want 5", store.gotLimit)
	}
	var body struct {
		Attempts []Attempt `json:"attempts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Attempts) != 1 || body.Attempts[0].Outcome != OutcomeOK {
		t.Fatalf("unexpected attempts payload: %+v", body.Attempts)
	}
}

func TestAttemptsByCodeRequiresCode(t *testing.T) {
	router := newAdminRouter(&stubBrowser{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attempts", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAttemptsByCodeEmptyLog(t *testing.T) {
	router := newAdminRouter(&stubBrowser{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attempts?code=ROC-A2B3C", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Attempts []Attempt `json:"attempts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Attempts == nil || len(body.Attempts) != 0 {
		t.Fatalf("want empty array, got %#v", body.Attempts)
	}
}

func TestAttemptsByCodeStoreFailure(t *testing.T) {
	router := newAdminRouter(&stubBrowser{err: errors.New("db down")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attempts?code=ROC-A2B3C", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
