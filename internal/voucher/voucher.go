package voucher

import (
	"errors"
	"time"
)

// Status enumerates the lifecycle states of a voucher. Used and expired are
// terminal: no transition leaves them.
type Status string

const (
	// StatusAvailable marks a voucher that can still be redeemed.
	StatusAvailable Status = "available"
	// StatusUsed marks a voucher consumed by a merchant confirm.
	StatusUsed Status = "used"
	// StatusExpired marks a voucher past its validity window.
	StatusExpired Status = "expired"
)

var (
	// ErrNotFound is returned when no voucher matches the lookup.
	ErrNotFound = errors.New("voucher not found")
	// ErrAlreadyUsed is returned when a redemption targets a voucher that is no longer available.
	ErrAlreadyUsed = errors.New("voucher already used")
	// ErrExpired is returned when the voucher validity window has passed.
	ErrExpired = errors.New("voucher expired")
	// ErrOwnerMismatch is returned when the code exists but belongs to another owner.
	ErrOwnerMismatch = errors.New("voucher owner mismatch")
	// ErrBatchExists signals that the owner already holds an issued batch.
	ErrBatchExists = errors.New("voucher batch already issued")
	// ErrCodeConflict signals a generated code collided with an existing one.
	ErrCodeConflict = errors.New("voucher code conflict")
	// ErrStoreUnavailable wraps persistence failures surfaced to callers as retryable.
	ErrStoreUnavailable = errors.New("voucher store unavailable")
)

// Voucher is a single-restaurant, single-use discount entitlement issued to one user.
type Voucher struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"-"`
	Code         string     `json:"code"`
	RestaurantID string     `json:"restaurantId"`
	Status       Status     `json:"status"`
	UsedAt       *time.Time `json:"usedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// Used reports whether the voucher has been redeemed.
func (v Voucher) Used() bool { return v.Status == StatusUsed }

// Redeemable reports whether the voucher can still be confirmed at the given instant.
func (v Voucher) Redeemable(now time.Time) error {
	switch v.Status {
	case StatusUsed:
		return ErrAlreadyUsed
	case StatusExpired:
		return ErrExpired
	}
	if !v.ExpiresAt.IsZero() && now.After(v.ExpiresAt) {
		return ErrExpired
	}
	return nil
}
