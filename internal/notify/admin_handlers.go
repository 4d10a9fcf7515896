package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/roc-passaporte/backend-passaporte/internal/common"
	"github.com/roc-passaporte/backend-passaporte/internal/events"
)

// AdminHandler exposes management endpoints for webhook configuration.
type AdminHandler struct {
	Store *PGStore
}

func (h *AdminHandler) Routes(r chi.Router) {
	r.Post("/endpoints", h.createEndpoint)
	r.Get("/endpoints", h.listEndpoints)
	r.Delete("/endpoints/{id}", h.deactivateEndpoint)
}

type endpointRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Active *bool    `json:"active"`
	Topics []string `json:"topics"`
}

func (h *AdminHandler) createEndpoint(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Secret) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "url and secret are required", nil)
		return
	}
	if err := validateURL(req.URL); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	topics := normalizeTopics(req.Topics)
	if len(topics) == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "at least one known topic is required", nil)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	endpoint, err := h.Store.CreateEndpoint(r.Context(), Endpoint{
		ID:     uuid.NewString(),
		URL:    req.URL,
		Secret: req.Secret,
		Topics: topics,
		Active: active,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not create endpoint", nil)
		return
	}
	common.JSON(w, http.StatusCreated, endpoint)
}

func (h *AdminHandler) listEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.Store.ListEndpoints(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not list endpoints", nil)
		return
	}
	if endpoints == nil {
		endpoints = []Endpoint{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"endpoints": endpoints})
}

func (h *AdminHandler) deactivateEndpoint(w http.ResponseWriter, r *http.Request) {
	err := h.Store.DeactivateEndpoint(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrEndpointNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "endpoint not found", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not deactivate endpoint", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func normalizeTopics(raw []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range raw {
		t = strings.TrimSpace(strings.ToLower(t))
		if t == "" || seen[t] || !events.KnownTopic(t) {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
