package auth

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

var (
	ErrEmailTaken      = errors.New("auth: email already registered")
	ErrCPFTaken        = errors.New("auth: cpf already registered")
	ErrUserNotFound    = errors.New("auth: user not found")
	ErrSessionNotFound = errors.New("auth: session not found")
)

// UserRecord is the persisted user row including the password hash. Handlers
// never see it; the service converts to User first.
type UserRecord struct {
	ID           string
	Name         string
	Email        string
	CPF          string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRecord is one refresh token session. The token itself is never
// stored, only its SHA-256 hash.
type SessionRecord struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	UserAgent        string
	IP               string
	ExpiresAt        time.Time
}

// Store is the persistence boundary for users and sessions.
type Store interface {
	CreateUser(ctx context.Context, u UserRecord) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)

	CreateSession(ctx context.Context, s SessionRecord) error
	GetSessionByTokenHash(ctx context.Context, hash string) (SessionRecord, error)
	RotateSession(ctx context.Context, id, newHash string, expiresAt time.Time) error
	DeleteSessionByTokenHash(ctx context.Context, hash string) error
	DeleteSessionsByUser(ctx context.Context, userID string) error
}

// PGStore implements Store on Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s *PGStore) CreateUser(ctx context.Context, u UserRecord) (UserRecord, error) {
	row := s.Pool.QueryRow(ctx,
		`INSERT INTO users (id, name, email, cpf, password_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, name, email, cpf, password_hash, created_at, updated_at`,
		u.ID, u.Name, u.Email, u.CPF, u.PasswordHash)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "cpf") {
				return UserRecord{}, ErrCPFTaken
			}
			return UserRecord{}, ErrEmailTaken
		}
		return UserRecord{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (s *PGStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, name, email, cpf, password_hash, created_at, updated_at
		 FROM users WHERE email = $1`, email)
	return userOrNotFound(row)
}

func (s *PGStore) GetUserByID(ctx context.Context, id string) (UserRecord, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, name, email, cpf, password_hash, created_at, updated_at
		 FROM users WHERE id = $1`, id)
	return userOrNotFound(row)
}

func (s *PGStore) CreateSession(ctx context.Context, sess SessionRecord) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, refresh_token, user_agent, ip, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.UserID, sess.RefreshTokenHash, pgText(sess.UserAgent), pgText(sess.IP), sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PGStore) GetSessionByTokenHash(ctx context.Context, hash string) (SessionRecord, error) {
	var (
		sess      SessionRecord
		userAgent pgtype.Text
		ip        pgtype.Text
	)
	err := s.Pool.QueryRow(ctx,
		`SELECT id, user_id, refresh_token, user_agent, ip, expires_at
		 FROM sessions WHERE refresh_token = $1`, hash).
		Scan(&sess.ID, &sess.UserID, &sess.RefreshTokenHash, &userAgent, &ip, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	sess.UserAgent = userAgent.String
	sess.IP = ip.String
	return sess, nil
}

func (s *PGStore) RotateSession(ctx context.Context, id, newHash string, expiresAt time.Time) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE sessions SET refresh_token = $1, expires_at = $2 WHERE id = $3`,
		newHash, expiresAt, id)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PGStore) DeleteSessionByTokenHash(ctx context.Context, hash string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, hash)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteSessionsByUser(ctx context.Context, userID string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (UserRecord, error) {
	var u UserRecord
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CPF, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func userOrNotFound(row pgx.Row) (UserRecord, error) {
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func pgText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
