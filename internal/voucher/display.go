package voucher

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Display states reported to the polling client. The window is a merchant
// anti-screenshot aid rendered client side; it never gates redemption, which
// is decided solely by the voucher status at confirm time.
const (
	DisplayActive  = "active"
	DisplayElapsed = "elapsed"
	DisplayUsed    = "used"
)

// DisplayState is what the passport screen renders while a voucher is shown
// to a merchant.
type DisplayState struct {
	Code      string     `json:"code"`
	QRPayload string     `json:"qrPayload,omitempty"`
	State     string     `json:"state"`
	ExpiresAt *time.Time `json:"displayExpiresAt,omitempty"`
}

// DisplayStore keeps per-voucher display deadlines in Redis, keyed by owner
// and code with a TTL equal to the window.
type DisplayStore struct {
	R      *redis.Client
	Window time.Duration

	// Now is a test seam.
	Now func() time.Time
}

func (d *DisplayStore) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func displayKey(ownerID, code string) string {
	return "display:" + ownerID + ":" + code
}

// Begin starts (or restarts) a display window for the voucher and returns the
// active state. Restarting is harmless because the window is cosmetic.
func (d *DisplayStore) Begin(ctx context.Context, ownerID, code string) (DisplayState, error) {
	window := d.Window
	if window <= 0 {
		window = 10 * time.Minute
	}
	deadline := d.now().Add(window)
	err := d.R.Set(ctx, displayKey(ownerID, code), deadline.Format(time.RFC3339Nano), window).Err()
	if err != nil {
		return DisplayState{}, err
	}
	return DisplayState{Code: code, QRPayload: code, State: DisplayActive, ExpiresAt: &deadline}, nil
}

// Get reports the current window for the voucher. A missing or lapsed key
// means the client should offer to show the code again.
func (d *DisplayStore) Get(ctx context.Context, ownerID, code string) (DisplayState, error) {
	raw, err := d.R.Get(ctx, displayKey(ownerID, code)).Result()
	if errors.Is(err, redis.Nil) {
		return DisplayState{Code: code, State: DisplayElapsed}, nil
	}
	if err != nil {
		return DisplayState{}, err
	}
	deadline, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil || !deadline.After(d.now()) {
		return DisplayState{Code: code, State: DisplayElapsed}, nil
	}
	return DisplayState{Code: code, QRPayload: code, State: DisplayActive, ExpiresAt: &deadline}, nil
}
