package audit

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/roc-passaporte/backend-passaporte/internal/common"
	"github.com/roc-passaporte/backend-passaporte/internal/voucher"
)

// Browser reads back recorded attempts for support queries.
type Browser interface {
	RecentByCode(ctx context.Context, code string, limit int) ([]Attempt, error)
}

// AdminHandler lets support staff inspect the attempt log for a code when a
// merchant and a customer disagree about a redemption.
type AdminHandler struct {
	Store Browser
}

func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/attempts", h.attemptsByCode)
}

func (h *AdminHandler) attemptsByCode(w http.ResponseWriter, r *http.Request) {
	code := voucher.NormalizeCode(r.URL.Query().Get("code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code query parameter is required", nil)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be a number", nil)
			return
		}
		limit = n
	}
	attempts, err := h.Store.RecentByCode(r.Context(), code, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not load attempts", nil)
		return
	}
	if attempts == nil {
		attempts = []Attempt{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}
