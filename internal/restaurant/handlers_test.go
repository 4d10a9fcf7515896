package restaurant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type stubCatalog struct {
	items []Restaurant
	err   error
}

func (s *stubCatalog) ListActive(context.Context) ([]Restaurant, error) {
	return s.items, s.err
}

func (s *stubCatalog) Get(_ context.Context, id string) (Restaurant, error) {
	for _, r := range s.items {
		if r.ID == id {
			return r, nil
		}
	}
	if s.err != nil {
		return Restaurant{}, s.err
	}
	return Restaurant{}, fmt.Errorf("load restaurant %s: %w", id, ErrNotFound)
}

func newCatalogRouter(catalog Catalog) http.Handler {
	h := &Handler{Svc: catalog}
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestListReturnsCatalog(t *testing.T) {
	router := newCatalogRouter(&stubCatalog{items: []Restaurant{{
		ID:            "rest-01",
		Name:          "Cantina da Serra",
		City:          "Curitiba",
		DiscountLabel: "20% off",
		Active:        true,
		CreatedAt:     time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Restaurants []Restaurant `json:"restaurants"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Restaurants) != 1 || body.Restaurants[0].ID != "rest-01" {
		t.Fatalf("unexpected catalog payload: %+v", body.Restaurants)
	}
}

func TestListEmptyCatalogIsArray(t *testing.T) {
	router := newCatalogRouter(&stubCatalog{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); !json.Valid([]byte(got)) || got == "" {
		t.Fatalf("invalid body %q", got)
	}
	var body struct {
		Restaurants []Restaurant `json:"restaurants"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Restaurants == nil {
		t.Fatal("restaurants should serialize as an empty array")
	}
}

func TestGetUnknownRestaurantIs404(t *testing.T) {
	// The stub wraps ErrNotFound, so the handler must match it unwrapped.
	router := newCatalogRouter(&stubCatalog{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rest-99", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetKnownRestaurant(t *testing.T) {
	router := newCatalogRouter(&stubCatalog{items: []Restaurant{{ID: "rest-01", Name: "Cantina da Serra"}}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rest-01", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got Restaurant
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Name != "Cantina da Serra" {
		t.Fatalf("unexpected restaurant %+v", got)
	}
}
