package token

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/atinyakov/consultdesk/internal/models"
)

func withNow(t *testing.T, now time.Time) {
	t.Helper()
	prev := NowTimeFunc
	NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { NowTimeFunc = prev })
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("test-secret", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestNewManager_Invalid(t *testing.T) {
	if _, err := NewManager("", time.Minute, time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewManager("s", 0, time.Hour); err == nil {
		t.Error("expected error for zero access ttl")
	}
}

func TestIssueAndParse(t *testing.T) {
	m := newManager(t)
	id := models.Identity{ID: 42, Email: "a@b.com", IsStaff: true}

	pair, err := m.Issue(id)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" || pair.Access == pair.Refresh {
		t.Fatalf("unexpected pair: %+v", pair)
	}

	claims, err := m.Parse(pair.Access, Access)
	if err != nil {
		t.Fatalf("Parse access failed: %v", err)
	}
	got, err := claims.Identity()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 42 || got.Email != "a@b.com" || !got.IsStaff || got.IsSuperuser {
		t.Errorf("unexpected identity: %+v", got)
	}

	refresh, err := m.Parse(pair.Refresh, Refresh)
	if err != nil {
		t.Fatalf("Parse refresh failed: %v", err)
	}
	if refresh.ID == claims.ID {
		t.Errorf("access and refresh share jti %q", claims.ID)
	}
}

func TestParse_WrongType(t *testing.T) {
	m := newManager(t)
	pair, _ := m.Issue(models.Identity{ID: 1})

	if _, err := m.Parse(pair.Refresh, Access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh accepted as access: %v", err)
	}
	if _, err := m.Parse(pair.Access, Refresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access accepted as refresh: %v", err)
	}
}

func TestParse_Expired(t *testing.T) {
	m := newManager(t)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	withNow(t, start)
	pair, _ := m.Issue(models.Identity{ID: 1})

	withNow(t, start.Add(16*time.Minute))
	if _, err := m.Parse(pair.Access, Access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired access token accepted: %v", err)
	}
	if _, err := m.Parse(pair.Refresh, Refresh); err != nil {
		t.Errorf("refresh token should still be valid: %v", err)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	pair, _ := newManager(t).Issue(models.Identity{ID: 1})
	other, _ := NewManager("other-secret", time.Minute, time.Hour)

	if _, err := other.Parse(pair.Access, Access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token signed with another secret accepted: %v", err)
	}
}

func TestParse_RejectsNone(t *testing.T) {
	m := newManager(t)
	claims := Claims{
		Type: Access,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    "consultdesk",
			Subject:   "1",
			ID:        "x",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Parse(raw, Access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unsigned token accepted: %v", err)
	}
}

func TestParse_Garbage(t *testing.T) {
	m := newManager(t)
	for _, raw := range []string{"", "abc", "a.b.c"} {
		if _, err := m.Parse(raw, Access); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Parse(%q) = %v; want ErrInvalidToken", raw, err)
		}
	}
}

func TestClaims_BadSubject(t *testing.T) {
	c := &Claims{RegisteredClaims: jwtlib.RegisteredClaims{Subject: "bob"}}
	if _, err := c.Identity(); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Identity with non-numeric subject = %v", err)
	}
}
