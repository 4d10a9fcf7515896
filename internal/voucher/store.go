package voucher

import (
	"context"
	"time"
)

// Store is the persistence boundary for vouchers. Implementations must make
// MarkUsed an atomic compare-and-set: of N concurrent calls for the same
// available voucher, exactly one succeeds.
type Store interface {
	// ListByOwner returns the owner's vouchers ordered by creation, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Voucher, error)

	// InsertBatch persists a freshly issued batch. It fails with
	// ErrBatchExists when the owner already holds vouchers for any of the
	// batch restaurants, and with ErrCodeConflict when a generated code is
	// taken. Either way nothing is written.
	InsertBatch(ctx context.Context, batch []Voucher) error

	// FindByOwnerAndCode resolves a code within one owner's passport. It
	// returns ErrOwnerMismatch when the code exists under a different owner.
	FindByOwnerAndCode(ctx context.Context, ownerID, code string) (Voucher, error)

	// FindByCode resolves a code across all owners.
	FindByCode(ctx context.Context, code string) (Voucher, error)

	// MarkUsed flips an available, unexpired voucher to used. It returns the
	// updated voucher, or ErrAlreadyUsed / ErrExpired / ErrNotFound when the
	// transition is not possible.
	MarkUsed(ctx context.Context, id string, usedAt time.Time) (Voucher, error)

	// ExpireBefore marks available vouchers whose validity ended before the
	// cutoff as expired and reports how many changed.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
