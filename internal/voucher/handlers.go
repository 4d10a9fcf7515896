package voucher

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roc-passaporte/backend-passaporte/internal/common"
)

// Handler exposes the passport endpoints for authenticated customers.
type Handler struct {
	Svc     *Service
	Display *DisplayStore

	// Idem, when set, wraps the display begin endpoint so retried taps
	// with the same Idempotency-Key don't restart the window.
	Idem func(http.Handler) http.Handler
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/vouchers", h.passport)
	if h.Idem != nil {
		r.With(h.Idem).Post("/vouchers/{code}/display", h.beginDisplay)
	} else {
		r.Post("/vouchers/{code}/display", h.beginDisplay)
	}
	r.Get("/vouchers/{code}/display", h.pollDisplay)
}

func (h *Handler) passport(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	items, err := h.Svc.Passport(r.Context(), ownerID)
	if err != nil {
		writeOwnerError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"vouchers": items})
}

func (h *Handler) beginDisplay(w http.ResponseWriter, r *http.Request) {
	ownerID, v, ok := h.resolveOwned(w, r)
	if !ok {
		return
	}
	if err := v.Redeemable(h.Svc.now()); err != nil {
		writeOwnerError(w, err)
		return
	}
	state, err := h.Display.Begin(r.Context(), ownerID, v.Code)
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "try again shortly", nil)
		return
	}
	common.JSON(w, http.StatusOK, state)
}

func (h *Handler) pollDisplay(w http.ResponseWriter, r *http.Request) {
	ownerID, v, ok := h.resolveOwned(w, r)
	if !ok {
		return
	}
	if v.Used() {
		common.JSON(w, http.StatusOK, DisplayState{Code: v.Code, State: DisplayUsed})
		return
	}
	state, err := h.Display.Get(r.Context(), ownerID, v.Code)
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "try again shortly", nil)
		return
	}
	common.JSON(w, http.StatusOK, state)
}

func (h *Handler) resolveOwned(w http.ResponseWriter, r *http.Request) (string, Voucher, bool) {
	ownerID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", Voucher{}, false
	}
	code := NormalizeCode(chi.URLParam(r, "code"))
	v, err := h.Svc.Store.FindByOwnerAndCode(r.Context(), ownerID, code)
	if err != nil {
		writeOwnerError(w, err)
		return "", Voucher{}, false
	}
	return ownerID, v, true
}

func writeOwnerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrOwnerMismatch):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "invalid or already used code", nil)
	case errors.Is(err, ErrAlreadyUsed):
		common.JSONError(w, http.StatusConflict, "ALREADY_USED", "voucher already used", nil)
	case errors.Is(err, ErrExpired):
		common.JSONError(w, http.StatusGone, "EXPIRED", "voucher expired", nil)
	case errors.Is(err, ErrStoreUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "try again shortly", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}
