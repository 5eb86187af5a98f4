// Package service holds the backend business logic, delegating persistence
// to repository interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/consultdesk/internal/models"
	"github.com/atinyakov/consultdesk/internal/token"
)

// AuthRepository defines the persistence operations required by the
// authentication service.
type AuthRepository interface {
	// UserExists returns true if a member with the email exists.
	UserExists(ctx context.Context, email string) (bool, error)
	// CreateUser inserts a member and returns it with id and join date.
	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	// UserByEmail returns models.ErrNotFound for unknown addresses.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID returns models.ErrNotFound for unknown ids.
	UserByID(ctx context.Context, id int64) (*models.User, error)
	// RevokeToken blocks a token id until it expires. It returns false
	// when the id was already blocked.
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	// IsRevoked reports whether a token id was revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Service implements member registration, sign-in and token rotation.
type Service struct {
	repo   AuthRepository
	tokens *token.Manager
	cost   int
}

// NewAuthService constructs a Service.
func NewAuthService(repo AuthRepository, tokens *token.Manager) *Service {
	return &Service{repo: repo, tokens: tokens, cost: bcrypt.DefaultCost}
}

const minPasswordLen = 8

func validateSignUp(su models.SignUp) error {
	v := &ValidationError{Message: "invalid sign-up"}

	if su.Email == "" {
		v.add("email", "required")
	} else if addr, err := mail.ParseAddress(su.Email); err != nil || addr.Address != su.Email {
		v.add("email", "not a valid email address")
	}

	var letter, digit bool
	for _, r := range su.Password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case su.Password == "":
		v.add("password", "required")
	case len(su.Password) < minPasswordLen:
		v.add("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	case !letter || !digit:
		v.add("password", "must contain a letter and a digit")
	}

	if len(su.FirstName) > 150 {
		v.add("first_name", "too long")
	}
	if len(su.LastName) > 150 {
		v.add("last_name", "too long")
	}
	return v.orNil()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a member account. It does not sign the member in.
func (s *Service) Register(ctx context.Context, su models.SignUp) (*models.Identity, error) {
	su.Email = normalizeEmail(su.Email)
	su.FirstName = strings.TrimSpace(su.FirstName)
	su.LastName = strings.TrimSpace(su.LastName)
	if err := validateSignUp(su); err != nil {
		return nil, err
	}

	exists, err := s.repo.UserExists(ctx, su.Email)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if exists {
		return nil, ErrConflict
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repo.CreateUser(ctx, &models.User{
		Identity: models.Identity{
			Email:     su.Email,
			FirstName: su.FirstName,
			LastName:  su.LastName,
		},
		PasswordHash: string(hash),
	})
	if errors.Is(err, models.ErrDuplicate) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &u.Identity, nil
}

// Login checks credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, creds models.Credentials) (models.TokenPair, error) {
	u, err := s.repo.UserByEmail(ctx, normalizeEmail(creds.Email))
	if errors.Is(err, models.ErrNotFound) {
		return models.TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(creds.Password)); err != nil {
		return models.TokenPair{}, ErrInvalidCredentials
	}
	return s.tokens.Issue(u.Identity)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued with the member's current flags.
func (s *Service) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	claims, err := s.usableRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}
	uid, err := claims.UserID()
	if err != nil {
		return models.TokenPair{}, err
	}

	u, err := s.repo.UserByID(ctx, uid)
	if errors.Is(err, models.ErrNotFound) {
		return models.TokenPair{}, token.ErrInvalidToken
	}
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	claimed, err := s.repo.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !claimed {
		return models.TokenPair{}, fmt.Errorf("%w: already used", token.ErrInvalidToken)
	}
	return s.tokens.Issue(u.Identity)
}

// Logout revokes a refresh token. Tokens that are already invalid are
// ignored.
func (s *Service) Logout(ctx context.Context, refresh string) error {
	claims, err := s.tokens.Parse(refresh, token.Refresh)
	if err != nil {
		return nil
	}
	if _, err := s.repo.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Authenticate turns a bearer access token into the identity it carries.
func (s *Service) Authenticate(_ context.Context, access string) (*models.Identity, error) {
	claims, err := s.tokens.Parse(access, token.Access)
	if err != nil {
		return nil, err
	}
	return claims.Identity()
}

// Me returns the stored profile of the member.
func (s *Service) Me(ctx context.Context, id int64) (*models.Identity, error) {
	u, err := s.repo.UserByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, token.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u.Identity, nil
}

func (s *Service) usableRefresh(ctx context.Context, raw string) (*token.Claims, error) {
	claims, err := s.tokens.Parse(raw, token.Refresh)
	if err != nil {
		return nil, err
	}
	revoked, err := s.repo.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: revoked", token.ErrInvalidToken)
	}
	return claims, nil
}
