package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// UserRepositoryPG implements domain.UserRepository.
type UserRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new user repository backed by PostgreSQL.
func NewUserRepository(pool *pgxpool.Pool) *UserRepositoryPG {
	return &UserRepositoryPG{pool: pool}
}

const userColumns = `id, COALESCE(email, ''), COALESCE(phone_number, ''), password_hash,
first_name, COALESCE(last_name, ''), latitude, longitude,
COALESCE(ip_address, ''), COALESCE(country_code, ''), is_active, created_at, updated_at`

// Create inserts a new user record.
func (r *UserRepositoryPG) Create(ctx context.Context, user *domain.User) error {
	query := `
INSERT INTO users (id, email, phone_number, password_hash, first_name, last_name,
                   latitude, longitude, ip_address, country_code, is_active)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11);
`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PhoneNumber,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Latitude,
		user.Longitude,
		user.IPAddress,
		user.CountryCode,
		user.IsActive,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	return err
}

// GetByID fetches a user by identifier.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, "id = $1", id)
}

// GetByEmail fetches a user by email.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, "email = $1", email)
}

// GetByPhone fetches a user by phone number.
func (r *UserRepositoryPG) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getBy(ctx, "phone_number = $1", phone)
}

func (r *UserRepositoryPG) getBy(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + `;`
	row := r.pool.QueryRow(ctx, query, arg)
	var u domain.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PhoneNumber,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Latitude,
		&u.Longitude,
		&u.IPAddress,
		&u.CountryCode,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Update persists profile fields.
func (r *UserRepositoryPG) Update(ctx context.Context, user *domain.User) error {
	query := `
UPDATE users
SET email = NULLIF($2, ''),
    phone_number = NULLIF($3, ''),
    first_name = $4,
    last_name = NULLIF($5, ''),
    updated_at = now()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.PhoneNumber, user.FirstName, user.LastName)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	return err
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepositoryPG) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1;`
	_, err := r.pool.Exec(ctx, query, id, passwordHash)
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key")
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
