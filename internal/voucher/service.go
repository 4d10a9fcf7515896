package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roc-passaporte/backend-passaporte/internal/customer"
	"github.com/roc-passaporte/backend-passaporte/internal/events"
	"github.com/roc-passaporte/backend-passaporte/internal/obs"
	"github.com/roc-passaporte/backend-passaporte/internal/restaurant"
)

// insertRetries bounds code-collision retries during issuance. The code space
// is large enough that hitting the bound means something else is wrong.
const insertRetries = 3

// RestaurantSource resolves the participating catalog for issuance and previews.
type RestaurantSource interface {
	ListActive(ctx context.Context) ([]restaurant.Restaurant, error)
	Get(ctx context.Context, id string) (restaurant.Restaurant, error)
}

// CustomerSource resolves the voucher owner's profile for merchant screens.
type CustomerSource interface {
	Get(ctx context.Context, id string) (customer.Profile, error)
}

// Emitter publishes domain events after state changes.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) error
}

// Locker serializes issuance per owner across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service implements passport issuance and the two-phase redemption flow.
// Check never mutates; Confirm delegates the used transition to the store's
// compare-and-set so it succeeds at most once per voucher.
type Service struct {
	Store       Store
	Restaurants RestaurantSource
	Customers   CustomerSource
	Events      Emitter
	Locker      Locker
	Log         zerolog.Logger

	BatchSize int
	Validity  time.Duration
	LockTTL   time.Duration

	// Now is a test seam for time-dependent behavior.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PassportItem is one voucher joined with its restaurant for passport listings.
type PassportItem struct {
	Voucher
	Used           bool   `json:"used"`
	RestaurantName string `json:"restaurantName"`
	City           string `json:"city"`
	Category       string `json:"category"`
	DiscountLabel  string `json:"discountLabel"`
	ImageURL       string `json:"imageUrl,omitempty"`
}

// Preview is the read-only result of a merchant check.
type Preview struct {
	Voucher    Voucher
	Restaurant restaurant.Restaurant
	Customer   customer.Profile
}

// Receipt is the result of a successful confirm.
type Receipt struct {
	Voucher    Voucher
	Restaurant restaurant.Restaurant
	Customer   customer.Profile
	RedeemedAt time.Time
}

// IssueBatchIfAbsent gives the owner their voucher batch, one voucher per
// active restaurant up to the configured batch size. It is idempotent: owners
// who already hold vouchers get the existing batch back untouched, including
// used and expired ones.
func (s *Service) IssueBatchIfAbsent(ctx context.Context, ownerID string) ([]Voucher, error) {
	existing, err := s.Store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	issue := func(ctx context.Context) error {
		// Re-check under the lock; another replica may have issued first.
		current, err := s.Store.ListByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if len(current) > 0 {
			existing = current
			return nil
		}
		batch, err := s.issueBatch(ctx, ownerID)
		if err != nil {
			return err
		}
		existing = batch
		return nil
	}

	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, "passport:issue:"+ownerID, s.LockTTL, issue)
	} else {
		err = issue(ctx)
	}
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) issueBatch(ctx context.Context, ownerID string) ([]Voucher, error) {
	restaurants, err := s.Restaurants.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue batch: %w", err)
	}
	if len(restaurants) == 0 {
		return nil, errors.New("issue batch: no active restaurants")
	}
	if s.BatchSize > 0 && len(restaurants) > s.BatchSize {
		restaurants = restaurants[:s.BatchSize]
	}

	now := s.now()
	expires := now.Add(s.Validity)

	for attempt := 0; attempt < insertRetries; attempt++ {
		batch := make([]Voucher, 0, len(restaurants))
		for _, r := range restaurants {
			code, err := GenerateCode()
			if err != nil {
				return nil, err
			}
			batch = append(batch, Voucher{
				ID:           uuid.NewString(),
				OwnerID:      ownerID,
				Code:         code,
				RestaurantID: r.ID,
				Status:       StatusAvailable,
				CreatedAt:    now,
				ExpiresAt:    expires,
			})
		}

		err := s.Store.InsertBatch(ctx, batch)
		switch {
		case err == nil:
			if obs.PassportIssuedTotal != nil {
				obs.PassportIssuedTotal.Inc()
			}
			s.emit(ctx, events.TopicPassportIssued, ownerID, map[string]any{
				"ownerId":   ownerID,
				"vouchers":  len(batch),
				"expiresAt": expires,
			})
			s.Log.Info().Str("owner_id", ownerID).Int("vouchers", len(batch)).Msg("passport issued")
			return batch, nil
		case errors.Is(err, ErrBatchExists):
			// Lost the race despite the lock (lock expiry or disabled locker).
			return s.Store.ListByOwner(ctx, ownerID)
		case errors.Is(err, ErrCodeConflict):
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("issue batch: %w", ErrCodeConflict)
}

// Passport returns the owner's vouchers joined with restaurant details,
// issuing the batch first if the owner has none.
func (s *Service) Passport(ctx context.Context, ownerID string) ([]PassportItem, error) {
	vouchers, err := s.IssueBatchIfAbsent(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	items := make([]PassportItem, 0, len(vouchers))
	for _, v := range vouchers {
		item := PassportItem{Voucher: v, Used: v.Used()}
		if r, err := s.Restaurants.Get(ctx, v.RestaurantID); err == nil {
			item.RestaurantName = r.Name
			item.City = r.City
			item.Category = r.Category
			item.DiscountLabel = r.DiscountLabel
			item.ImageURL = r.ImageURL
		} else {
			s.Log.Warn().Err(err).Str("restaurant_id", v.RestaurantID).Msg("restaurant lookup failed")
		}
		items = append(items, item)
	}
	return items, nil
}

// CheckInput carries a raw code from any capture path. OwnerID, when set,
// restricts resolution to that owner's passport.
type CheckInput struct {
	Code    string
	OwnerID string
}

// Check resolves and validates a code without changing any state. Calling it
// any number of times leaves every voucher as it was.
func (s *Service) Check(ctx context.Context, in CheckInput) (Preview, error) {
	v, err := s.resolve(ctx, in)
	if err != nil {
		return Preview{}, err
	}
	if err := v.Redeemable(s.now()); err != nil {
		return Preview{}, err
	}
	return s.preview(ctx, v)
}

// Confirm consumes an available voucher. The store-level compare-and-set
// guarantees that concurrent confirms for the same voucher yield exactly one
// success; the losers observe ErrAlreadyUsed.
func (s *Service) Confirm(ctx context.Context, in CheckInput) (Receipt, error) {
	v, err := s.resolve(ctx, in)
	if err != nil {
		return Receipt{}, err
	}
	now := s.now()
	if err := v.Redeemable(now); err != nil {
		return Receipt{}, err
	}

	used, err := s.Store.MarkUsed(ctx, v.ID, now)
	if err != nil {
		return Receipt{}, err
	}

	p, err := s.preview(ctx, used)
	if err != nil {
		return Receipt{}, err
	}
	s.emit(ctx, events.TopicVoucherRedeemed, used.ID, map[string]any{
		"voucherId":     used.ID,
		"code":          used.Code,
		"ownerId":       used.OwnerID,
		"restaurantId":  used.RestaurantID,
		"usedAt":        now,
		"customerEmail": p.Customer.Email,
	})
	s.Log.Info().
		Str("voucher_id", used.ID).
		Str("code", used.Code).
		Str("restaurant_id", used.RestaurantID).
		Msg("voucher redeemed")
	return Receipt{Voucher: used, Restaurant: p.Restaurant, Customer: p.Customer, RedeemedAt: now}, nil
}

func (s *Service) resolve(ctx context.Context, in CheckInput) (Voucher, error) {
	code := NormalizeCode(in.Code)
	if code == "" {
		return Voucher{}, ErrNotFound
	}
	if in.OwnerID != "" {
		return s.Store.FindByOwnerAndCode(ctx, in.OwnerID, code)
	}
	return s.Store.FindByCode(ctx, code)
}

func (s *Service) preview(ctx context.Context, v Voucher) (Preview, error) {
	p := Preview{Voucher: v}
	r, err := s.Restaurants.Get(ctx, v.RestaurantID)
	if err != nil {
		return Preview{}, fmt.Errorf("preview restaurant: %w", err)
	}
	p.Restaurant = r
	if s.Customers != nil {
		c, err := s.Customers.Get(ctx, v.OwnerID)
		if err != nil {
			s.Log.Warn().Err(err).Str("owner_id", v.OwnerID).Msg("customer lookup failed")
		} else {
			p.Customer = c
		}
	}
	return p, nil
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.Log.Warn().Err(err).Str("topic", topic).Msg("event emit failed")
	}
}
