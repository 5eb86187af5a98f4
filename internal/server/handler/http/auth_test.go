package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atinyakov/consultdesk/internal/middleware"
	"github.com/atinyakov/consultdesk/internal/models"
	"github.com/atinyakov/consultdesk/internal/service"
	"github.com/atinyakov/consultdesk/internal/token"
)

// fakeAuthService implements AuthService for testing.
type fakeAuthService struct {
	registerFunc func(ctx context.Context, su models.SignUp) (*models.Identity, error)
	loginFunc    func(ctx context.Context, creds models.Credentials) (models.TokenPair, error)
	refreshFunc  func(ctx context.Context, refresh string) (models.TokenPair, error)
	logoutFunc   func(ctx context.Context, refresh string) error
	meFunc       func(ctx context.Context, id int64) (*models.Identity, error)
}

func (f *fakeAuthService) Register(ctx context.Context, su models.SignUp) (*models.Identity, error) {
	return f.registerFunc(ctx, su)
}
func (f *fakeAuthService) Login(ctx context.Context, creds models.Credentials) (models.TokenPair, error) {
	return f.loginFunc(ctx, creds)
}
func (f *fakeAuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	return f.refreshFunc(ctx, refresh)
}
func (f *fakeAuthService) Logout(ctx context.Context, refresh string) error {
	return f.logoutFunc(ctx, refresh)
}
func (f *fakeAuthService) Me(ctx context.Context, id int64) (*models.Identity, error) {
	return f.meFunc(ctx, id)
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	return body
}

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "invalid JSON",
			body:         `not a json`,
			expectedCode: http.StatusBadRequest,
			expectedErr:  "invalid request body",
		},
		{
			name: "validation",
			body: `{"email":"bad"}`,
			err: &service.ValidationError{
				Message: "invalid sign-up",
				Fields:  map[string]string{"email": "invalid address"},
			},
			expectedCode: http.StatusBadRequest,
			expectedErr:  "invalid sign-up",
		},
		{
			name:         "duplicate",
			body:         `{"email":"a@b.com","password":"secret12"}`,
			err:          service.ErrConflict,
			expectedCode: http.StatusConflict,
			expectedErr:  "account already exists",
		},
		{
			name:         "storage failure",
			body:         `{"email":"a@b.com","password":"secret12"}`,
			err:          errors.New("db down"),
			expectedCode: http.StatusInternalServerError,
			expectedErr:  "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &AuthHandler{AuthService: &fakeAuthService{
				registerFunc: func(context.Context, models.SignUp) (*models.Identity, error) { return nil, tt.err },
			}}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(tt.body))
			h.Register(rec, req)

			if rec.Code != tt.expectedCode {
				t.Errorf("expected status %d, got %d", tt.expectedCode, rec.Code)
			}
			if body := decodeErrorBody(t, rec); body.Error != tt.expectedErr {
				t.Errorf("expected error %q, got %q", tt.expectedErr, body.Error)
			}
		})
	}
}

func TestAuthHandler_Register_Created(t *testing.T) {
	var got models.SignUp
	h := &AuthHandler{AuthService: &fakeAuthService{
		registerFunc: func(ctx context.Context, su models.SignUp) (*models.Identity, error) {
			got = su
			return &models.Identity{ID: 5, Email: su.Email, FirstName: su.FirstName}, nil
		},
	}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"a@b.com","password":"secret12","first_name":"Ada"}`))
	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got.Password != "secret12" || got.FirstName != "Ada" {
		t.Errorf("sign-up not passed through: %+v", got)
	}
	var id models.Identity
	_ = json.NewDecoder(rec.Body).Decode(&id)
	if id.ID != 5 || id.Email != "a@b.com" {
		t.Errorf("unexpected identity %+v", id)
	}
}

func TestAuthHandler_Login(t *testing.T) {
	svc := &fakeAuthService{
		loginFunc: func(ctx context.Context, c models.Credentials) (models.TokenPair, error) {
			if c.Password != "secret12" {
				return models.TokenPair{}, service.ErrInvalidCredentials
			}
			return models.TokenPair{Access: "a", Refresh: "r"}, nil
		},
	}
	h := &AuthHandler{AuthService: svc}

	t.Run("success", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Login(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com","password":"secret12"}`)))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var pair models.TokenPair
		_ = json.NewDecoder(rec.Body).Decode(&pair)
		if pair.Access != "a" || pair.Refresh != "r" {
			t.Errorf("unexpected pair %+v", pair)
		}
	})

	t.Run("bad password", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Login(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com","password":"nope"}`)))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if body := decodeErrorBody(t, rec); body.Error != "Invalid credentials" {
			t.Errorf("unexpected message %q", body.Error)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Login(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com"}`)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		body := decodeErrorBody(t, rec)
		if _, ok := body.Fields["password"]; !ok || len(body.Fields) != 1 {
			t.Errorf("expected only password to be reported, got %v", body.Fields)
		}
	})
}

func TestAuthHandler_Refresh(t *testing.T) {
	h := &AuthHandler{AuthService: &fakeAuthService{
		refreshFunc: func(ctx context.Context, refresh string) (models.TokenPair, error) {
			if refresh != "r1" {
				return models.TokenPair{}, token.ErrInvalidToken
			}
			return models.TokenPair{Access: "a2", Refresh: "r2"}, nil
		},
	}}

	cases := []struct {
		body string
		code int
	}{
		{`{"refresh":"r1"}`, http.StatusOK},
		{`{"refresh":"stale"}`, http.StatusUnauthorized},
		{`{}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(c.body)))
		if rec.Code != c.code {
			t.Errorf("Refresh(%s) = %d; want %d", c.body, rec.Code, c.code)
		}
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	var revoked []string
	h := &AuthHandler{AuthService: &fakeAuthService{
		logoutFunc: func(ctx context.Context, refresh string) error {
			revoked = append(revoked, refresh)
			return nil
		},
	}}

	for _, body := range []string{`{"refresh":"r1"}`, `{}`} {
		rec := httptest.NewRecorder()
		h.Logout(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		if rec.Code != http.StatusNoContent {
			t.Errorf("Logout(%s) = %d; want 204", body, rec.Code)
		}
	}
	if len(revoked) != 1 || revoked[0] != "r1" {
		t.Errorf("revoked = %v; want [r1]", revoked)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	h := &AuthHandler{AuthService: &fakeAuthService{
		meFunc: func(ctx context.Context, id int64) (*models.Identity, error) {
			if id == 2 {
				return nil, token.ErrInvalidToken
			}
			return &models.Identity{ID: id, Email: "a@b.com", IsStaff: true}, nil
		},
	}}

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Me(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("member", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(middleware.WithUser(req.Context(), &models.Identity{ID: 1}))
		h.Me(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var id models.Identity
		_ = json.NewDecoder(rec.Body).Decode(&id)
		if !id.IsStaff || id.Email != "a@b.com" {
			t.Errorf("unexpected identity %+v", id)
		}
	})

	t.Run("deleted member", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(middleware.WithUser(req.Context(), &models.Identity{ID: 2}))
		h.Me(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{&service.ValidationError{Message: "bad"}, http.StatusBadRequest},
		{service.ErrConflict, http.StatusConflict},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{token.ErrInvalidToken, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, nil, tt.err)
		if rec.Code != tt.code {
			t.Errorf("writeError(%v) = %d; want %d", tt.err, rec.Code, tt.code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
	}
}
