package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on Postgres. The used transition is a single
// conditional UPDATE so concurrent confirms race on the row, not in Go.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const voucherColumns = `id, owner_id, code, restaurant_id, status, used_at, created_at, expires_at`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var (
		v      Voucher
		usedAt pgtype.Timestamptz
	)
	err := row.Scan(&v.ID, &v.OwnerID, &v.Code, &v.RestaurantID, &v.Status, &usedAt, &v.CreatedAt, &v.ExpiresAt)
	if err != nil {
		return Voucher{}, err
	}
	if usedAt.Valid {
		t := usedAt.Time
		v.UsedAt = &t
	}
	return v, nil
}

func (s *PGStore) ListByOwner(ctx context.Context, ownerID string) ([]Voucher, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, storeErr("list by owner", err)
	}
	defer rows.Close()

	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, storeErr("scan voucher", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list by owner", err)
	}
	return out, nil
}

func (s *PGStore) InsertBatch(ctx context.Context, batch []Voucher) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr("begin batch", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, v := range batch {
		_, err := tx.Exec(ctx,
			`INSERT INTO vouchers (id, owner_id, code, restaurant_id, status, created_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			v.ID, v.OwnerID, v.Code, v.RestaurantID, v.Status, v.CreatedAt, v.ExpiresAt)
		if err != nil {
			if isUniqueViolation(err, "vouchers_code_key") {
				return ErrCodeConflict
			}
			if isUniqueViolation(err, "vouchers_owner_restaurant_key") {
				return ErrBatchExists
			}
			return storeErr("insert voucher", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit batch", err)
	}
	return nil
}

func (s *PGStore) FindByOwnerAndCode(ctx context.Context, ownerID, code string) (Voucher, error) {
	v, err := s.FindByCode(ctx, code)
	if err != nil {
		return Voucher{}, err
	}
	if v.OwnerID != ownerID {
		return Voucher{}, ErrOwnerMismatch
	}
	return v, nil
}

func (s *PGStore) FindByCode(ctx context.Context, code string) (Voucher, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code)
	v, err := scanVoucher(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, ErrNotFound
	}
	if err != nil {
		return Voucher{}, storeErr("find by code", err)
	}
	return v, nil
}

func (s *PGStore) MarkUsed(ctx context.Context, id string, usedAt time.Time) (Voucher, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE vouchers SET status = $1, used_at = $2
		 WHERE id = $3 AND status = $4 AND expires_at > $2
		 RETURNING `+voucherColumns,
		StatusUsed, usedAt, id, StatusAvailable)
	v, err := scanVoucher(row)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, storeErr("mark used", err)
	}

	// The CAS matched nothing. Re-read to tell the caller why.
	cur, err := s.findByID(ctx, id)
	if err != nil {
		return Voucher{}, err
	}
	if cur.Status == StatusUsed {
		return Voucher{}, ErrAlreadyUsed
	}
	return Voucher{}, ErrExpired
}

func (s *PGStore) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vouchers SET status = $1 WHERE status = $2 AND expires_at < $3`,
		StatusExpired, StatusAvailable, cutoff)
	if err != nil {
		return 0, storeErr("expire sweep", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) findByID(ctx context.Context, id string) (Voucher, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, id)
	v, err := scanVoucher(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, ErrNotFound
	}
	if err != nil {
		return Voucher{}, storeErr("find by id", err)
	}
	return v, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || strings.Contains(pgErr.ConstraintName, constraint)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
