package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/consultdesk/internal/models"
	"github.com/atinyakov/consultdesk/internal/token"
)

type mockAuthRepo struct {
	UserExistsFunc  func(ctx context.Context, email string) (bool, error)
	CreateUserFunc  func(ctx context.Context, u *models.User) (*models.User, error)
	UserByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	UserByIDFunc    func(ctx context.Context, id int64) (*models.User, error)
	RevokeTokenFunc func(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	IsRevokedFunc   func(ctx context.Context, jti string) (bool, error)
}

func (m *mockAuthRepo) UserExists(ctx context.Context, email string) (bool, error) {
	return m.UserExistsFunc(ctx, email)
}
func (m *mockAuthRepo) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	return m.CreateUserFunc(ctx, u)
}
func (m *mockAuthRepo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.UserByEmailFunc(ctx, email)
}
func (m *mockAuthRepo) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return m.UserByIDFunc(ctx, id)
}
func (m *mockAuthRepo) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	return m.RevokeTokenFunc(ctx, jti, expiresAt)
}
func (m *mockAuthRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return m.IsRevokedFunc(ctx, jti)
}

func newTestService(t *testing.T, repo AuthRepository) (*Service, *token.Manager) {
	t.Helper()
	tm, err := token.NewManager("secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewAuthService(repo, tm)
	svc.cost = bcrypt.MinCost
	return svc, tm
}

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func TestRegister_Success(t *testing.T) {
	var stored *models.User
	repo := &mockAuthRepo{
		UserExistsFunc: func(ctx context.Context, email string) (bool, error) {
			if email != "ada@example.com" {
				t.Errorf("UserExists received email = %q; want normalized address", email)
			}
			return false, nil
		},
		CreateUserFunc: func(ctx context.Context, u *models.User) (*models.User, error) {
			stored = u
			out := *u
			out.ID = 10
			out.DateJoined = time.Now()
			return &out, nil
		},
	}
	svc, _ := newTestService(t, repo)

	id, err := svc.Register(context.Background(), models.SignUp{
		Email: "  Ada@Example.com ", Password: "secret12", FirstName: " Ada ",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if id.ID != 10 || id.FirstName != "Ada" {
		t.Errorf("unexpected identity: %+v", id)
	}
	if stored.PasswordHash == "secret12" || bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret12")) != nil {
		t.Errorf("password not hashed correctly")
	}
	if stored.IsStaff || stored.IsSuperuser {
		t.Errorf("new members must not be admins")
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    models.SignUp
		field string
	}{
		{"missing email", models.SignUp{Password: "secret12"}, "email"},
		{"bad email", models.SignUp{Email: "not-an-email", Password: "secret12"}, "email"},
		{"display name", models.SignUp{Email: "Ada <a@b.com>", Password: "secret12"}, "email"},
		{"missing password", models.SignUp{Email: "a@b.com"}, "password"},
		{"short password", models.SignUp{Email: "a@b.com", Password: "ab1"}, "password"},
		{"no digit", models.SignUp{Email: "a@b.com", Password: "abcdefghij"}, "password"},
		{"no letter", models.SignUp{Email: "a@b.com", Password: "1234567890"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, &mockAuthRepo{})
			_, err := svc.Register(context.Background(), tt.in)

			var v *ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("Register error = %v; want ValidationError", err)
			}
			if _, ok := v.Fields[tt.field]; !ok {
				t.Errorf("expected problem on %q, got %v", tt.field, v.Fields)
			}
		})
	}
}

func TestRegister_Conflict(t *testing.T) {
	t.Run("exists", func(t *testing.T) {
		svc, _ := newTestService(t, &mockAuthRepo{
			UserExistsFunc: func(context.Context, string) (bool, error) { return true, nil },
		})
		_, err := svc.Register(context.Background(), models.SignUp{Email: "a@b.com", Password: "secret12"})
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Register error = %v; want ErrConflict", err)
		}
	})

	t.Run("race on insert", func(t *testing.T) {
		svc, _ := newTestService(t, &mockAuthRepo{
			UserExistsFunc: func(context.Context, string) (bool, error) { return false, nil },
			CreateUserFunc: func(context.Context, *models.User) (*models.User, error) {
				return nil, models.ErrDuplicate
			},
		})
		_, err := svc.Register(context.Background(), models.SignUp{Email: "a@b.com", Password: "secret12"})
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Register error = %v; want ErrConflict", err)
		}
	})
}

func TestLogin(t *testing.T) {
	user := &models.User{
		Identity:     models.Identity{ID: 3, Email: "a@b.com", IsSuperuser: true},
		PasswordHash: hashed(t, "secret12"),
	}
	repo := &mockAuthRepo{
		UserByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == "a@b.com" {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	}
	svc, tm := newTestService(t, repo)

	pair, err := svc.Login(context.Background(), models.Credentials{Email: "A@B.com", Password: "secret12"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	claims, err := tm.Parse(pair.Access, token.Access)
	if err != nil {
		t.Fatalf("issued access token invalid: %v", err)
	}
	if claims.Subject != "3" || !claims.IsSuperuser {
		t.Errorf("unexpected claims: %+v", claims)
	}

	for _, creds := range []models.Credentials{
		{Email: "a@b.com", Password: "wrong123"},
		{Email: "nobody@b.com", Password: "secret12"},
	} {
		if _, err := svc.Login(context.Background(), creds); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%+v) error = %v; want ErrInvalidCredentials", creds, err)
		}
	}
}

func TestLogin_RepoError(t *testing.T) {
	wantErr := errors.New("db down")
	svc, _ := newTestService(t, &mockAuthRepo{
		UserByEmailFunc: func(context.Context, string) (*models.User, error) { return nil, wantErr },
	})
	if _, err := svc.Login(context.Background(), models.Credentials{Email: "a@b.com"}); !errors.Is(err, wantErr) {
		t.Errorf("Login error = %v; want %v", err, wantErr)
	}
}

func TestRefresh_Rotates(t *testing.T) {
	revoked := map[string]bool{}
	repo := &mockAuthRepo{
		IsRevokedFunc: func(ctx context.Context, jti string) (bool, error) { return revoked[jti], nil },
		RevokeTokenFunc: func(ctx context.Context, jti string, exp time.Time) (bool, error) {
			if revoked[jti] {
				return false, nil
			}
			revoked[jti] = true
			return true, nil
		},
		UserByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
			return &models.User{Identity: models.Identity{ID: id, Email: "a@b.com", IsStaff: true}}, nil
		},
	}
	svc, tm := newTestService(t, repo)
	first, _ := tm.Issue(models.Identity{ID: 4, Email: "a@b.com"})

	second, err := svc.Refresh(context.Background(), first.Refresh)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	claims, _ := tm.Parse(second.Access, token.Access)
	if !claims.IsStaff {
		t.Errorf("refreshed token must carry current flags")
	}

	if _, err := svc.Refresh(context.Background(), first.Refresh); !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("reused refresh token error = %v; want ErrInvalidToken", err)
	}
}

func TestRefresh_ConcurrentReuseLoses(t *testing.T) {
	// Both rotations pass the revocation check before either revokes; the
	// store lets only the first claim the token id.
	var mu sync.Mutex
	claimed := map[string]bool{}
	repo := &mockAuthRepo{
		IsRevokedFunc: func(context.Context, string) (bool, error) { return false, nil },
		RevokeTokenFunc: func(ctx context.Context, jti string, exp time.Time) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if claimed[jti] {
				return false, nil
			}
			claimed[jti] = true
			return true, nil
		},
		UserByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
			return &models.User{Identity: models.Identity{ID: id}}, nil
		},
	}
	svc, tm := newTestService(t, repo)
	pair, _ := tm.Issue(models.Identity{ID: 4})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Refresh(context.Background(), pair.Refresh)
		}(i)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, token.ErrInvalidToken):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("successes = %d, rejections = %d; want 1 and 1", ok, rejected)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	svc, tm := newTestService(t, &mockAuthRepo{})
	pair, _ := tm.Issue(models.Identity{ID: 1})
	if _, err := svc.Refresh(context.Background(), pair.Access); !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("Refresh with access token = %v; want ErrInvalidToken", err)
	}
}

func TestRefresh_DeletedUser(t *testing.T) {
	svc, tm := newTestService(t, &mockAuthRepo{
		IsRevokedFunc: func(context.Context, string) (bool, error) { return false, nil },
		UserByIDFunc:  func(context.Context, int64) (*models.User, error) { return nil, models.ErrNotFound },
	})
	pair, _ := tm.Issue(models.Identity{ID: 1})
	if _, err := svc.Refresh(context.Background(), pair.Refresh); !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("Refresh for deleted user = %v; want ErrInvalidToken", err)
	}
}

func TestLogout(t *testing.T) {
	var revokedJTI string
	svc, tm := newTestService(t, &mockAuthRepo{
		RevokeTokenFunc: func(ctx context.Context, jti string, exp time.Time) (bool, error) {
			revokedJTI = jti
			return true, nil
		},
	})
	pair, _ := tm.Issue(models.Identity{ID: 1})
	claims, _ := tm.Parse(pair.Refresh, token.Refresh)

	if err := svc.Logout(context.Background(), pair.Refresh); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if revokedJTI != claims.ID {
		t.Errorf("revoked %q; want %q", revokedJTI, claims.ID)
	}

	if err := svc.Logout(context.Background(), "garbage"); err != nil {
		t.Errorf("Logout with invalid token = %v; want nil", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, tm := newTestService(t, &mockAuthRepo{})
	pair, _ := tm.Issue(models.Identity{ID: 8, Email: "a@b.com", IsStaff: true})

	id, err := svc.Authenticate(context.Background(), pair.Access)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if id.ID != 8 || !id.IsAdmin() {
		t.Errorf("unexpected identity: %+v", id)
	}
	if _, err := svc.Authenticate(context.Background(), pair.Refresh); !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("refresh token accepted as bearer")
	}
}

func TestMe(t *testing.T) {
	joined := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, &mockAuthRepo{
		UserByIDFunc: func(ctx context.Context, id int64) (*models.User, error) {
			if id != 8 {
				return nil, models.ErrNotFound
			}
			return &models.User{Identity: models.Identity{ID: 8, Email: "a@b.com", DateJoined: joined}, PasswordHash: "x"}, nil
		},
	})

	id, err := svc.Me(context.Background(), 8)
	if err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if !id.DateJoined.Equal(joined) {
		t.Errorf("unexpected identity: %+v", id)
	}
	if _, err := svc.Me(context.Background(), 9); !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("Me for deleted user = %v; want ErrInvalidToken", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	v := &ValidationError{Message: "invalid sign-up"}
	v.add("password", "too short")
	v.add("email", "required")
	v.add("email", "ignored")
	if got := v.Error(); got != "invalid sign-up (email: required; password: too short)" {
		t.Errorf("Error() = %q", got)
	}
}
