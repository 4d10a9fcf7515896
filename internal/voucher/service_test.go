package voucher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roc-passaporte/backend-passaporte/internal/customer"
	"github.com/roc-passaporte/backend-passaporte/internal/restaurant"
)

type stubRestaurants struct {
	items []restaurant.Restaurant
}

func (s *stubRestaurants) ListActive(context.Context) ([]restaurant.Restaurant, error) {
	return s.items, nil
}

func (s *stubRestaurants) Get(_ context.Context, id string) (restaurant.Restaurant, error) {
	for _, r := range s.items {
		if r.ID == id {
			return r, nil
		}
	}
	return restaurant.Restaurant{}, restaurant.ErrNotFound
}

type stubCustomers struct{}

func (stubCustomers) Get(_ context.Context, id string) (customer.Profile, error) {
	return customer.Profile{ID: id, Name: "Maria Souza Lima", Email: "maria@example.com", CPF: "12345678909"}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic, _ string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingEmitter) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func catalogOf(n int) []restaurant.Restaurant {
	items := make([]restaurant.Restaurant, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, restaurant.Restaurant{
			ID:            fmt.Sprintf("rest-%02d", i),
			Name:          fmt.Sprintf("Restaurante %02d", i),
			City:          "Curitiba",
			Category:      "almoço",
			DiscountLabel: "20% off",
			Active:        true,
		})
	}
	return items
}

func newTestService(t *testing.T, catalogSize int) (*Service, *recordingEmitter) {
	t.Helper()
	emitter := &recordingEmitter{}
	svc := &Service{
		Store:       NewMemStore(),
		Restaurants: &stubRestaurants{items: catalogOf(catalogSize)},
		Customers:   stubCustomers{},
		Events:      emitter,
		Log:         zerolog.Nop(),
		BatchSize:   25,
		Validity:    180 * 24 * time.Hour,
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return svc, emitter
}

func TestIssueBatchIfAbsentIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, emitter := newTestService(t, 30)

	first, err := svc.IssueBatchIfAbsent(ctx, "alice")
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if len(first) != 25 {
		t.Fatalf("batch size = %d, want 25", len(first))
	}
	for _, v := range first {
		if v.Status != StatusAvailable {
			t.Fatalf("fresh voucher status = %q", v.Status)
		}
		if NormalizeCode(v.Code) != v.Code {
			t.Fatalf("issued code %q not canonical", v.Code)
		}
	}

	second, err := svc.IssueBatchIfAbsent(ctx, "alice")
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("repeat issue changed batch size: %d vs %d", len(second), len(first))
	}
	for i := range first {
		if second[i].ID != first[i].ID || second[i].Code != first[i].Code {
			t.Fatalf("repeat issue returned different vouchers at %d", i)
		}
	}
	if n := emitter.count("passport.issued"); n != 1 {
		t.Fatalf("passport.issued emitted %d times, want 1", n)
	}
}

func TestIssueBatchConcurrentSingleBatch(t *testing.T) {
	ctx := context.Background()
	svc, emitter := newTestService(t, 30)

	const workers = 16
	var wg sync.WaitGroup
	batches := make([][]Voucher, workers)
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			batches[i], errs[i] = svc.IssueBatchIfAbsent(ctx, "alice")
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
		if len(batches[i]) != 25 {
			t.Fatalf("worker %d got %d vouchers, want 25", i, len(batches[i]))
		}
	}
	ids := map[string]bool{}
	for _, v := range batches[0] {
		ids[v.ID] = true
	}
	for i := 1; i < workers; i++ {
		for _, v := range batches[i] {
			if !ids[v.ID] {
				t.Fatalf("worker %d saw voucher %s outside the first batch", i, v.ID)
			}
		}
	}
	stored, err := svc.Store.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 25 {
		t.Fatalf("store holds %d vouchers, want one batch of 25", len(stored))
	}
	if n := emitter.count("passport.issued"); n != 1 {
		t.Fatalf("passport.issued emitted %d times, want 1", n)
	}
}

func TestIssueBatchSmallerCatalog(t *testing.T) {
	svc, _ := newTestService(t, 10)
	batch, err := svc.IssueBatchIfAbsent(context.Background(), "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(batch) != 10 {
		t.Fatalf("batch size = %d, want one per restaurant", len(batch))
	}
	seen := make(map[string]bool)
	for _, v := range batch {
		if seen[v.RestaurantID] {
			t.Fatalf("restaurant %s appears twice", v.RestaurantID)
		}
		seen[v.RestaurantID] = true
	}
}

func TestCheckDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 5)
	batch, _ := svc.IssueBatchIfAbsent(ctx, "alice")
	code := batch[0].Code

	for i := 0; i < 5; i++ {
		p, err := svc.Check(ctx, CheckInput{Code: code})
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if p.Voucher.Status != StatusAvailable {
			t.Fatalf("check %d saw status %q", i, p.Voucher.Status)
		}
	}
	v, _ := svc.Store.FindByCode(ctx, code)
	if v.Status != StatusAvailable || v.UsedAt != nil {
		t.Fatalf("check mutated voucher: %+v", v)
	}
}

func TestCheckNormalizesInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 3)
	batch, _ := svc.IssueBatchIfAbsent(ctx, "alice")
	canonical := batch[0].Code
	bare := "roc" + canonical[len("ROC-"):]

	variants := []string{
		canonical,
		bare,
		"  " + canonical + " ",
		"https://passaporte.example.com/v?code=" + bare,
	}
	for _, in := range variants {
		if _, err := svc.Check(ctx, CheckInput{Code: in}); err != nil {
			t.Fatalf("check(%q): %v", in, err)
		}
	}
}

func TestConfirmThenCheckReportsUsed(t *testing.T) {
	ctx := context.Background()
	svc, emitter := newTestService(t, 3)
	batch, _ := svc.IssueBatchIfAbsent(ctx, "alice")
	code := batch[0].Code

	rec, err := svc.Confirm(ctx, CheckInput{Code: code})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if rec.Voucher.Status != StatusUsed || rec.Voucher.UsedAt == nil {
		t.Fatalf("receipt voucher not used: %+v", rec.Voucher)
	}
	if rec.Restaurant.Name == "" || rec.Customer.Name == "" {
		t.Fatalf("receipt missing restaurant or customer: %+v", rec)
	}
	if _, err := svc.Check(ctx, CheckInput{Code: code}); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("check after confirm: got %v, want ErrAlreadyUsed", err)
	}
	if _, err := svc.Confirm(ctx, CheckInput{Code: code}); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("second confirm: got %v, want ErrAlreadyUsed", err)
	}
	if n := emitter.count("voucher.redeemed"); n != 1 {
		t.Fatalf("voucher.redeemed emitted %d times, want 1", n)
	}
}

func TestConfirmConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, emitter := newTestService(t, 3)
	batch, _ := svc.IssueBatchIfAbsent(ctx, "alice")
	code := batch[0].Code

	const workers = 32
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Confirm(ctx, CheckInput{Code: code})
		}(i)
	}
	close(start)
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyUsed):
			losses++
		default:
			t.Fatalf("unexpected confirm error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("confirm wins = %d, want exactly 1 (losses %d)", wins, losses)
	}
	if n := emitter.count("voucher.redeemed"); n != 1 {
		t.Fatalf("voucher.redeemed emitted %d times, want 1", n)
	}
}

func TestConfirmUnknownCode(t *testing.T) {
	svc, _ := newTestService(t, 3)
	if _, err := svc.Confirm(context.Background(), CheckInput{Code: "ROC-99999"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown code: got %v, want ErrNotFound", err)
	}
	if _, err := svc.Confirm(context.Background(), CheckInput{Code: "!!"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty normalized code: got %v, want ErrNotFound", err)
	}
}

func TestOwnerScopedResolution(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 3)
	batch, _ := svc.IssueBatchIfAbsent(ctx, "alice")
	code := batch[0].Code

	if _, err := svc.Check(ctx, CheckInput{Code: code, OwnerID: "alice"}); err != nil {
		t.Fatalf("owner check: %v", err)
	}
	if _, err := svc.Check(ctx, CheckInput{Code: code, OwnerID: "bob"}); !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("foreign owner: got %v, want ErrOwnerMismatch", err)
	}
}

func TestExpiredVoucherRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 3)
	batch, _ := svc.IssueBatchIfAbsent(ctx, "alice")
	code := batch[0].Code

	// Move the clock past the validity window without running the sweep.
	svc.Now = func() time.Time { return time.Date(2027, 3, 1, 12, 0, 0, 0, time.UTC) }

	if _, err := svc.Check(ctx, CheckInput{Code: code}); !errors.Is(err, ErrExpired) {
		t.Fatalf("check past expiry: got %v, want ErrExpired", err)
	}
	if _, err := svc.Confirm(ctx, CheckInput{Code: code}); !errors.Is(err, ErrExpired) {
		t.Fatalf("confirm past expiry: got %v, want ErrExpired", err)
	}
	v, _ := svc.Store.FindByCode(ctx, code)
	if v.Status == StatusUsed {
		t.Fatalf("expired voucher got consumed")
	}
}

func TestPassportJoinsRestaurantDetails(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 4)
	items, err := svc.Passport(ctx, "alice")
	if err != nil {
		t.Fatalf("passport: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("passport size = %d", len(items))
	}
	for _, it := range items {
		if it.RestaurantName == "" || it.DiscountLabel == "" || it.City == "" {
			t.Fatalf("passport item missing restaurant detail: %+v", it)
		}
		if it.Used {
			t.Fatalf("fresh passport item marked used")
		}
	}
}
