package restaurant

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no restaurant matches the lookup.
var ErrNotFound = errors.New("restaurant not found")

// Restaurant is a participating establishment. DiscountLabel is the
// customer-facing offer text printed on the voucher, e.g. "20% off dinner".
type Restaurant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	City          string    `json:"city"`
	Category      string    `json:"category"`
	DiscountLabel string    `json:"discountLabel"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
}
