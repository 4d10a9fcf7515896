// Package audit records every merchant redemption attempt, successful or
// not, so disputes over "the app said it was already used" can be settled
// from the log.
package audit

import (
	"context"
	"time"
)

// Operations recorded for redemption attempts.
const (
	OpCheck   = "check"
	OpConfirm = "confirm"
)

// Outcomes recorded for redemption attempts.
const (
	OutcomeOK             = "ok"
	OutcomeNotFound       = "not_found"
	OutcomeAlreadyUsed    = "already_used"
	OutcomeExpired        = "expired"
	OutcomeOwnerMismatch  = "owner_mismatch"
	OutcomeRateLimited    = "rate_limited"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeStoreError     = "store_error"
)

// Attempt is one recorded redemption attempt. Code is stored normalized;
// VoucherID is empty when the code resolved to nothing.
type Attempt struct {
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	Code       string    `json:"code"`
	VoucherID  string    `json:"voucherId,omitempty"`
	Outcome    string    `json:"outcome"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Recorder persists attempts. Recording is best effort at call sites; a
// failed audit write never fails the redemption itself.
type Recorder interface {
	Record(ctx context.Context, a Attempt) error
}
