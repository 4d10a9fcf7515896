package restaurant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const cacheKeyActive = "restaurants:active"

// Service reads the participating restaurant catalog. Listings are cached in
// Redis because issuance hits the full list on every new passport.
type Service struct {
	Pool  *pgxpool.Pool
	Cache Cache
	Log   zerolog.Logger
}

const restaurantColumns = `id, name, city, category, discount_label, image_url, active, created_at`

func scanRestaurant(row pgx.Row) (Restaurant, error) {
	var r Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.City, &r.Category, &r.DiscountLabel, &r.ImageURL, &r.Active, &r.CreatedAt)
	return r, err
}

// ListActive returns active restaurants ordered by id so batch issuance is
// deterministic across replicas.
func (s *Service) ListActive(ctx context.Context) ([]Restaurant, error) {
	var cached []Restaurant
	if hit, err := s.Cache.GetJSON(ctx, cacheKeyActive, &cached); err != nil {
		s.Log.Warn().Err(err).Msg("restaurant cache read failed")
	} else if hit {
		return cached, nil
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	var out []Restaurant
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}

	if err := s.Cache.SetJSON(ctx, cacheKeyActive, out); err != nil {
		s.Log.Warn().Err(err).Msg("restaurant cache write failed")
	}
	return out, nil
}

// Get returns one restaurant by id, active or not. Inactive restaurants stay
// resolvable so already issued vouchers keep rendering.
func (s *Service) Get(ctx context.Context, id string) (Restaurant, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE id = $1`, id)
	r, err := scanRestaurant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Restaurant{}, ErrNotFound
	}
	if err != nil {
		return Restaurant{}, fmt.Errorf("get restaurant: %w", err)
	}
	return r, nil
}
