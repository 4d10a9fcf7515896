// Package validation exposes the merchant-facing endpoints of the two-phase
// redemption flow: a read-only check that previews the voucher and customer,
// and a confirm that consumes the voucher at most once.
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/roc-passaporte/backend-passaporte/internal/audit"
	"github.com/roc-passaporte/backend-passaporte/internal/common"
	"github.com/roc-passaporte/backend-passaporte/internal/customer"
	"github.com/roc-passaporte/backend-passaporte/internal/obs"
	"github.com/roc-passaporte/backend-passaporte/internal/ratelimit"
	"github.com/roc-passaporte/backend-passaporte/internal/voucher"
)

// CPFResolver maps a customer CPF to their profile when the merchant scopes
// the lookup to a specific customer.
type CPFResolver interface {
	GetByCPF(ctx context.Context, cpf string) (customer.Profile, error)
}

// Handler serves the validator API used by restaurant staff.
type Handler struct {
	Svc       *voucher.Service
	Customers CPFResolver
	Audit     audit.Recorder
	Validate  *validator.Validate
	Limiter   ratelimit.Limiter
	Log       zerolog.Logger

	// Per-code sliding window guards against brute-forced codes.
	RateWindow time.Duration
	RateMax    int
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/check", h.check)
	r.Post("/confirm", h.confirm)
}

type redeemRequest struct {
	// Code accepts typed codes, bare codes, or scanned QR URLs.
	Code string `json:"code" validate:"required,max=512"`
	// CPF optionally scopes resolution to the customer holding that CPF.
	CPF string `json:"cpf" validate:"omitempty,min=11,max=14"`
}

type voucherBody struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Restaurant struct {
		Name  string `json:"name"`
		City  string `json:"city"`
		Offer string `json:"offer"`
	} `json:"restaurant"`
}

type customerBody struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	CPF  string `json:"cpf,omitempty"`
}

type redeemResponse struct {
	Valid      bool          `json:"valid"`
	Message    string        `json:"message,omitempty"`
	Voucher    *voucherBody  `json:"voucher,omitempty"`
	Customer   *customerBody `json:"customer,omitempty"`
	RedeemedAt *time.Time    `json:"redeemedAt,omitempty"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	h.redeem(w, r, audit.OpCheck)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	h.redeem(w, r, audit.OpConfirm)
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request, op string) {
	ctx := r.Context()
	metric := obs.RedemptionCheckTotal
	if op == audit.OpConfirm {
		metric = obs.RedemptionConfirmTotal
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		countOutcome(metric, audit.OutcomeInvalidRequest)
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		countOutcome(metric, audit.OutcomeInvalidRequest)
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "code is required", nil)
		return
	}

	code := voucher.NormalizeCode(req.Code)
	attempt := audit.Attempt{
		Operation:  op,
		Code:       code,
		RemoteAddr: r.RemoteAddr,
		RequestID:  chimw.GetReqID(ctx),
	}

	if code != "" && h.RateMax > 0 {
		allowed, _, reset, err := h.Limiter.Allow(ctx, "validator:code:"+code, h.RateWindow, h.RateMax)
		if err != nil {
			h.Log.Warn().Err(err).Msg("validator rate limit unavailable")
		} else if !allowed {
			h.record(ctx, metric, attempt, audit.OutcomeRateLimited)
			w.Header().Set("Retry-After", reset.UTC().Format(http.TimeFormat))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts for this code", nil)
			return
		}
	}

	in := voucher.CheckInput{Code: req.Code}
	if req.CPF != "" && h.Customers != nil {
		profile, err := h.Customers.GetByCPF(ctx, req.CPF)
		if err != nil {
			// An unknown CPF is indistinguishable from a wrong code on purpose.
			h.record(ctx, metric, attempt, audit.OutcomeNotFound)
			common.JSON(w, http.StatusOK, rejected("invalid or already used code"))
			return
		}
		in.OwnerID = profile.ID
	}

	if op == audit.OpCheck {
		p, err := h.Svc.Check(ctx, in)
		if err != nil {
			h.reject(ctx, w, metric, attempt, err)
			return
		}
		attempt.VoucherID = p.Voucher.ID
		h.record(ctx, metric, attempt, audit.OutcomeOK)
		common.JSON(w, http.StatusOK, redeemResponse{
			Valid:    true,
			Voucher:  toVoucherBody(p.Voucher, p.Restaurant.Name, p.Restaurant.City, p.Restaurant.DiscountLabel),
			Customer: toCustomerBody(p.Customer),
		})
		return
	}

	rec, err := h.Svc.Confirm(ctx, in)
	if err != nil {
		h.reject(ctx, w, metric, attempt, err)
		return
	}
	attempt.VoucherID = rec.Voucher.ID
	h.record(ctx, metric, attempt, audit.OutcomeOK)
	redeemedAt := rec.RedeemedAt
	common.JSON(w, http.StatusOK, redeemResponse{
		Valid:      true,
		Message:    "voucher redeemed",
		Voucher:    toVoucherBody(rec.Voucher, rec.Restaurant.Name, rec.Restaurant.City, rec.Restaurant.DiscountLabel),
		Customer:   toCustomerBody(rec.Customer),
		RedeemedAt: &redeemedAt,
	})
}

// reject translates domain errors into merchant responses. Business
// rejections come back HTTP 200 with valid=false so the validator app can
// render them inline; only infrastructure trouble surfaces as an error
// status. Owner mismatch deliberately reads like an unknown code.
func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, metric *prometheus.CounterVec, attempt audit.Attempt, err error) {
	switch {
	case errors.Is(err, voucher.ErrAlreadyUsed):
		h.record(ctx, metric, attempt, audit.OutcomeAlreadyUsed)
		common.JSON(w, http.StatusOK, rejected("voucher already used"))
	case errors.Is(err, voucher.ErrExpired):
		h.record(ctx, metric, attempt, audit.OutcomeExpired)
		common.JSON(w, http.StatusOK, rejected("voucher expired"))
	case errors.Is(err, voucher.ErrOwnerMismatch):
		h.record(ctx, metric, attempt, audit.OutcomeOwnerMismatch)
		common.JSON(w, http.StatusOK, rejected("invalid or already used code"))
	case errors.Is(err, voucher.ErrNotFound):
		h.record(ctx, metric, attempt, audit.OutcomeNotFound)
		common.JSON(w, http.StatusOK, rejected("invalid or already used code"))
	case errors.Is(err, voucher.ErrStoreUnavailable):
		h.record(ctx, metric, attempt, audit.OutcomeStoreError)
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "try again shortly", nil)
	default:
		h.record(ctx, metric, attempt, audit.OutcomeStoreError)
		h.Log.Error().Err(err).Str("operation", attempt.Operation).Msg("redemption failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}

// countOutcome increments the outcome counter when domain metrics are
// registered. Tests run with the collectors unset.
func countOutcome(metric *prometheus.CounterVec, outcome string) {
	if metric != nil {
		metric.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) record(ctx context.Context, metric *prometheus.CounterVec, attempt audit.Attempt, outcome string) {
	countOutcome(metric, outcome)
	if h.Audit == nil {
		return
	}
	attempt.Outcome = outcome
	if err := h.Audit.Record(ctx, attempt); err != nil {
		h.Log.Warn().Err(err).Str("code", attempt.Code).Msg("audit write failed")
	}
}

func rejected(message string) redeemResponse {
	return redeemResponse{Valid: false, Message: message}
}

func toVoucherBody(v voucher.Voucher, name, city, offer string) *voucherBody {
	b := &voucherBody{ID: v.ID, Code: v.Code}
	b.Restaurant.Name = name
	b.Restaurant.City = city
	b.Restaurant.Offer = offer
	return b
}

func toCustomerBody(c customer.Profile) *customerBody {
	if c.ID == "" {
		return nil
	}
	return &customerBody{ID: c.ID, Name: customer.MaskName(c.Name), CPF: customer.MaskCPF(c.CPF)}
}
