package restaurant

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roc-passaporte/backend-passaporte/internal/common"
)

// Catalog is the service surface the public endpoints read from.
type Catalog interface {
	ListActive(ctx context.Context) ([]Restaurant, error)
	Get(ctx context.Context, id string) (Restaurant, error)
}

// Handler exposes the public catalog endpoints.
type Handler struct {
	Svc Catalog
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.ListActive(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not load restaurants", nil)
		return
	}
	if items == nil {
		items = []Restaurant{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"restaurants": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rest, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "restaurant not found", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not load restaurant", nil)
		return
	}
	common.JSON(w, http.StatusOK, rest)
}
