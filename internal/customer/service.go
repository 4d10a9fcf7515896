package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service reads customer profiles from the users table owned by auth.
type Service struct {
	Pool *pgxpool.Pool
}

const profileColumns = `id, name, email, cpf, created_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CPF, &p.CreatedAt)
	return p, err
}

func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM users WHERE id = $1`, id)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *Service) GetByCPF(ctx context.Context, cpf string) (Profile, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM users WHERE cpf = $1`, NormalizeCPF(cpf))
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile by cpf: %w", err)
	}
	return p, nil
}
