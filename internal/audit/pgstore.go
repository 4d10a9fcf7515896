package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore writes attempts to the redemption_attempts table.
type PGStore struct {
	Pool *pgxpool.Pool

	// Now is a test seam.
	Now func() time.Time
}

func (s *PGStore) Record(ctx context.Context, a Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		if s.Now != nil {
			a.CreatedAt = s.Now()
		} else {
			a.CreatedAt = time.Now()
		}
	}
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO redemption_attempts (id, operation, code, voucher_id, outcome, remote_addr, request_id, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`,
		a.ID, a.Operation, a.Code, a.VoucherID, a.Outcome, a.RemoteAddr, a.RequestID, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// RecentByCode returns the newest attempts for a normalized code, newest
// first, for support tooling.
func (s *PGStore) RecentByCode(ctx context.Context, code string, limit int) ([]Attempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id, operation, code, COALESCE(voucher_id, ''), outcome, remote_addr, request_id, created_at
		 FROM redemption_attempts WHERE code = $1
		 ORDER BY created_at DESC LIMIT $2`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.Operation, &a.Code, &a.VoucherID, &a.Outcome, &a.RemoteAddr, &a.RequestID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
