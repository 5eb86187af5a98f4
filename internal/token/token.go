// Package token issues and verifies the HS256 access and refresh tokens
// handed to members.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/atinyakov/consultdesk/internal/models"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// ErrInvalidToken covers malformed, expired, wrongly signed and wrongly
// typed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Type distinguishes access from refresh tokens.
type Type string

const (
	Access  Type = "access"
	Refresh Type = "refresh"
)

// Claims is the payload of both token types.
type Claims struct {
	Email       string `json:"email"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
	Type        Type   `json:"typ"`
	jwtlib.RegisteredClaims
}

// UserID returns the numeric subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

// Identity rebuilds the member identity carried by the claims.
func (c *Claims) Identity() (*models.Identity, error) {
	id, err := c.UserID()
	if err != nil {
		return nil, err
	}
	return &models.Identity{
		ID:          id,
		Email:       c.Email,
		IsStaff:     c.IsStaff,
		IsSuperuser: c.IsSuperuser,
	}, nil
}

// Manager signs and parses tokens with a shared secret.
type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager creates a Manager. The secret must not be empty.
func NewManager(secret string, accessTTL, refreshTTL time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &Manager{
		secret:     []byte(secret),
		issuer:     "consultdesk",
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// Issue creates a fresh access/refresh pair for the member.
func (m *Manager) Issue(id models.Identity) (models.TokenPair, error) {
	access, err := m.sign(id, Access, m.accessTTL)
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, err := m.sign(id, Refresh, m.refreshTTL)
	if err != nil {
		return models.TokenPair{}, err
	}
	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (m *Manager) sign(id models.Identity, typ Type, ttl time.Duration) (string, error) {
	now := NowTimeFunc()
	claims := Claims{
		Email:       id.Email,
		IsStaff:     id.IsStaff,
		IsSuperuser: id.IsSuperuser,
		Type:        typ,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(id.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Parse verifies raw and checks it is of the expected type.
func (m *Manager) Parse(raw string, want Type) (*Claims, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(raw, claims,
		func(*jwtlib.Token) (any, error) { return m.secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(m.issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, want, claims.Type)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	return claims, nil
}
