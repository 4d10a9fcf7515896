package voucher

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store guarded by a single mutex. It backs tests
// and local development without Postgres while keeping the same
// compare-and-set semantics as the SQL store.
type MemStore struct {
	mu       sync.Mutex
	byID     map[string]*Voucher
	byCode   map[string]string   // code -> voucher id
	byOwner  map[string][]string // owner id -> voucher ids in insertion order
	perOwner map[string]map[string]bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		byID:     make(map[string]*Voucher),
		byCode:   make(map[string]string),
		byOwner:  make(map[string][]string),
		perOwner: make(map[string]map[string]bool),
	}
}

func (m *MemStore) ListByOwner(_ context.Context, ownerID string) ([]Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byOwner[ownerID]
	out := make([]Voucher, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.byID[id])
	}
	return out, nil
}

func (m *MemStore) InsertBatch(_ context.Context, batch []Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range batch {
		if _, taken := m.byCode[v.Code]; taken {
			return ErrCodeConflict
		}
		if m.perOwner[v.OwnerID][v.RestaurantID] {
			return ErrBatchExists
		}
	}
	for i := range batch {
		v := batch[i]
		m.byID[v.ID] = &v
		m.byCode[v.Code] = v.ID
		m.byOwner[v.OwnerID] = append(m.byOwner[v.OwnerID], v.ID)
		if m.perOwner[v.OwnerID] == nil {
			m.perOwner[v.OwnerID] = make(map[string]bool)
		}
		m.perOwner[v.OwnerID][v.RestaurantID] = true
	}
	return nil
}

func (m *MemStore) FindByOwnerAndCode(_ context.Context, ownerID, code string) (Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCode[code]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	v := m.byID[id]
	if v.OwnerID != ownerID {
		return Voucher{}, ErrOwnerMismatch
	}
	return *v, nil
}

func (m *MemStore) FindByCode(_ context.Context, code string) (Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCode[code]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	return *m.byID[id], nil
}

func (m *MemStore) MarkUsed(_ context.Context, id string, usedAt time.Time) (Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	switch v.Status {
	case StatusUsed:
		return Voucher{}, ErrAlreadyUsed
	case StatusExpired:
		return Voucher{}, ErrExpired
	}
	if !v.ExpiresAt.IsZero() && usedAt.After(v.ExpiresAt) {
		v.Status = StatusExpired
		return Voucher{}, ErrExpired
	}
	v.Status = StatusUsed
	t := usedAt
	v.UsedAt = &t
	return *v, nil
}

func (m *MemStore) ExpireBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, v := range m.byID {
		if v.Status == StatusAvailable && !v.ExpiresAt.IsZero() && v.ExpiresAt.Before(cutoff) {
			v.Status = StatusExpired
			n++
		}
	}
	return n, nil
}
