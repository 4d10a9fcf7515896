package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/roc-passaporte/backend-passaporte/internal/common"
	"github.com/roc-passaporte/backend-passaporte/internal/customer"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// Service coordinates registration, login, and session persistence.
type Service struct {
	store      Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
	clockSkew  time.Duration
}

// Config configures the auth service.
type Config struct {
	Store           Store
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
}

// User is the safe subset of the user model returned to clients.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CPF       string    `json:"cpf"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoginResult bundles token material returned after a successful login.
type LoginResult struct {
	User          User      `json:"user"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// RefreshResult represents the outcome of a refresh operation.
type RefreshResult struct {
	AccessToken   string    `json:"access_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshToken  string    `json:"refresh_token"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}

	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-passaporte"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "passaporte-app"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		store:      cfg.Store,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		signer:     jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a new user. CPF is required because merchants can scope
// redemptions by it; the check digits are verified before anything is stored.
func (s *Service) Register(ctx context.Context, name, email, cpf, password string) (User, error) {
	if strings.TrimSpace(name) == "" {
		return User{}, common.NewAppError("VALIDATION_ERROR", "name is required", httpStatusBadRequest, nil)
	}
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	if normalizedEmail == "" {
		return User{}, common.NewAppError("VALIDATION_ERROR", "email is required", httpStatusBadRequest, nil)
	}
	normalizedCPF := customer.NormalizeCPF(cpf)
	if !customer.ValidCPF(normalizedCPF) {
		return User{}, common.NewAppError("VALIDATION_ERROR", "cpf is invalid", httpStatusBadRequest, nil)
	}
	if len(password) < 8 {
		return User{}, common.NewAppError("VALIDATION_ERROR", "password must be at least 8 characters", httpStatusBadRequest, nil)
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateUser(ctx, UserRecord{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        normalizedEmail,
		CPF:          normalizedCPF,
		PasswordHash: hash,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			return User{}, common.NewAppError("EMAIL_ALREADY_USED", "email is already registered", httpStatusConflict, err)
		case errors.Is(err, ErrCPFTaken):
			return User{}, common.NewAppError("CPF_ALREADY_USED", "cpf is already registered", httpStatusConflict, err)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	return toUser(created), nil
}

// Login verifies credentials and issues a new JWT/refresh token pair.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ip string) (LoginResult, error) {
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	if normalizedEmail == "" || password == "" {
		return LoginResult{}, invalidCredentials(nil)
	}

	user, err := s.store.GetUserByEmail(ctx, normalizedEmail)
	if err != nil {
		return LoginResult{}, invalidCredentials(err)
	}

	ok, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalidCredentials(err)
	}

	accessToken, accessExpiry, err := s.signAccessToken(user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, refreshExpiry, err := s.createSession(ctx, user.ID, userAgent, ip)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}

	return LoginResult{
		User:          toUser(user),
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	return s.store.DeleteSessionByTokenHash(ctx, hashRefreshToken(token))
}

// Refresh validates and rotates a refresh token, issuing a fresh token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return RefreshResult{}, invalidRefresh(nil)
	}

	hashed := hashRefreshToken(token)
	session, err := s.store.GetSessionByTokenHash(ctx, hashed)
	if err != nil {
		return RefreshResult{}, invalidRefresh(err)
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.store.DeleteSessionByTokenHash(ctx, hashed)
		return RefreshResult{}, invalidRefresh(nil)
	}

	accessToken, accessExpiry, err := s.signAccessToken(session.UserID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("sign access token: %w", err)
	}

	newToken, newHash, refreshExpiry, err := s.newRefreshToken()
	if err != nil {
		return RefreshResult{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.store.RotateSession(ctx, session.ID, newHash, refreshExpiry); err != nil {
		_ = s.store.DeleteSessionByTokenHash(ctx, hashed)
		return RefreshResult{}, fmt.Errorf("rotate session token: %w", err)
	}

	return RefreshResult{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  newToken,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Me fetches the current authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, common.NewAppError("UNAUTHORIZED", "unauthorized", httpStatusUnauthorized, nil)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return User{}, common.NewAppError("UNAUTHORIZED", "unauthorized", httpStatusUnauthorized, err)
	}
	return toUser(user), nil
}

// ParseAccessToken validates an access token and returns the subject (user ID).
func (s *Service) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError("UNAUTHORIZED", "missing token", httpStatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	return parsed.Subject(), nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func (s *Service) createSession(ctx context.Context, userID, userAgent, ip string) (string, time.Time, error) {
	token, hashed, expiresAt, err := s.newRefreshToken()
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.store.CreateSession(ctx, SessionRecord{
		ID:               uuid.NewString(),
		UserID:           userID,
		RefreshTokenHash: hashed,
		UserAgent:        userAgent,
		IP:               ip,
		ExpiresAt:        expiresAt,
	}); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *Service) newRefreshToken() (string, string, time.Time, error) {
	token, err := generateToken(48)
	if err != nil {
		return "", "", time.Time{}, err
	}
	expiresAt := s.now().Add(s.refreshTTL)
	return token, hashRefreshToken(token), expiresAt, nil
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashRefreshToken(token string) string {
	return common.Sha256Hex(token)
}

func toUser(u UserRecord) User {
	return User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CPF:       u.CPF,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func invalidCredentials(err error) error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", httpStatusUnauthorized, err)
}

func invalidRefresh(err error) error {
	return common.NewAppError("UNAUTHORIZED", "invalid refresh token", httpStatusUnauthorized, err)
}

const httpStatusBadRequest = 400
const httpStatusUnauthorized = 401
const httpStatusConflict = 409
