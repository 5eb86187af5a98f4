// Package repository provides the Postgres persistence behind the
// authentication and content services.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/atinyakov/consultdesk/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresAuthRepository stores members and revoked refresh tokens.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuthRepository creates a repository on top of db.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, is_staff, is_superuser, date_joined`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsStaff, &u.IsSuperuser, &u.DateJoined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserExists reports whether a member with the email exists.
func (r *PostgresAuthRepository) UserExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`,
		email,
	).Scan(&exists)
	return exists, err
}

// CreateUser inserts u and returns it with its id and join date set.
// A taken email yields models.ErrDuplicate.
func (r *PostgresAuthRepository) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, is_staff, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.IsStaff, u.IsSuperuser,
	)
	created, err := scanUser(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, fmt.Errorf("create user %s: %w", u.Email, models.ErrDuplicate)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// UserByEmail looks a member up by login address.
func (r *PostgresAuthRepository) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// UserByID looks a member up by id.
func (r *PostgresAuthRepository) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// RevokeToken records a token id as unusable until it expires. It reports
// false when the id was already revoked, so only one caller can claim a
// token.
func (r *PostgresAuthRepository) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	res, err := r.DB.ExecContext(
		ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IsRevoked reports whether the token id was revoked.
func (r *PostgresAuthRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)`,
		jti,
	).Scan(&revoked)
	return revoked, err
}
