package voucher

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedVoucher(t *testing.T, m *MemStore, id, owner, code string, exp time.Time) Voucher {
	t.Helper()
	v := Voucher{
		ID:           id,
		OwnerID:      owner,
		Code:         code,
		RestaurantID: "rest-" + id,
		Status:       StatusAvailable,
		CreatedAt:    time.Now(),
		ExpiresAt:    exp,
	}
	if err := m.InsertBatch(context.Background(), []Voucher{v}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return v
}

func TestMemStoreLookups(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	exp := time.Now().Add(time.Hour)
	v := seedVoucher(t, m, "v1", "alice", "ROC-AAAAA", exp)

	got, err := m.FindByCode(ctx, "ROC-AAAAA")
	if err != nil || got.ID != v.ID {
		t.Fatalf("FindByCode = %+v, %v", got, err)
	}
	if _, err := m.FindByCode(ctx, "ROC-ZZZZZ"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing code: got %v, want ErrNotFound", err)
	}
	if _, err := m.FindByOwnerAndCode(ctx, "bob", "ROC-AAAAA"); !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("wrong owner: got %v, want ErrOwnerMismatch", err)
	}

	list, err := m.ListByOwner(ctx, "alice")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByOwner = %v, %v", list, err)
	}
}

func TestMemStoreInsertBatchConflicts(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	exp := time.Now().Add(time.Hour)
	seedVoucher(t, m, "v1", "alice", "ROC-AAAAA", exp)

	dupCode := Voucher{ID: "v2", OwnerID: "bob", Code: "ROC-AAAAA", RestaurantID: "r2", Status: StatusAvailable, ExpiresAt: exp}
	if err := m.InsertBatch(ctx, []Voucher{dupCode}); !errors.Is(err, ErrCodeConflict) {
		t.Fatalf("duplicate code: got %v, want ErrCodeConflict", err)
	}
	dupRestaurant := Voucher{ID: "v3", OwnerID: "alice", Code: "ROC-BBBBB", RestaurantID: "rest-v1", Status: StatusAvailable, ExpiresAt: exp}
	if err := m.InsertBatch(ctx, []Voucher{dupRestaurant}); !errors.Is(err, ErrBatchExists) {
		t.Fatalf("duplicate restaurant for owner: got %v, want ErrBatchExists", err)
	}
	// Failed batches must write nothing.
	if _, err := m.FindByCode(ctx, "ROC-BBBBB"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("partial write after failed batch: %v", err)
	}
}

func TestMemStoreMarkUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	now := time.Now()
	v := seedVoucher(t, m, "v1", "alice", "ROC-AAAAA", now.Add(time.Hour))

	used, err := m.MarkUsed(ctx, v.ID, now)
	if err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if used.Status != StatusUsed || used.UsedAt == nil || !used.UsedAt.Equal(now) {
		t.Fatalf("unexpected voucher after MarkUsed: %+v", used)
	}
	if _, err := m.MarkUsed(ctx, v.ID, now); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("second MarkUsed: got %v, want ErrAlreadyUsed", err)
	}
	if _, err := m.MarkUsed(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing voucher: got %v, want ErrNotFound", err)
	}
}

func TestMemStoreMarkUsedExpired(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	now := time.Now()
	v := seedVoucher(t, m, "v1", "alice", "ROC-AAAAA", now.Add(-time.Minute))

	if _, err := m.MarkUsed(ctx, v.ID, now); !errors.Is(err, ErrExpired) {
		t.Fatalf("expired voucher: got %v, want ErrExpired", err)
	}
	got, _ := m.FindByCode(ctx, "ROC-AAAAA")
	if got.Status != StatusExpired {
		t.Fatalf("status after expired MarkUsed = %q, want expired", got.Status)
	}
}

func TestMemStoreExpireBefore(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	now := time.Now()
	seedVoucher(t, m, "v1", "alice", "ROC-AAAAA", now.Add(-time.Hour))
	seedVoucher(t, m, "v2", "bob", "ROC-BBBBB", now.Add(time.Hour))

	n, err := m.ExpireBefore(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("ExpireBefore = %d, %v; want 1", n, err)
	}
	fresh, _ := m.FindByCode(ctx, "ROC-BBBBB")
	if fresh.Status != StatusAvailable {
		t.Fatalf("unexpired voucher flipped to %q", fresh.Status)
	}
}
