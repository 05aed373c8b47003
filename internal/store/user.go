package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ksb-community/apiserver/types"
	"github.com/lib/pq"
)

const userColumns = `id, username, password_hash, display_name, avatar_url, biography,
		profile_animation, rank, role, is_core, core_expiry, is_deleted, created_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

// List returns all non-banned users, newest first.
func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_deleted = FALSE
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	user.CreatedAt = time.Now()

	const query = `
		INSERT INTO users (username, password_hash, display_name, avatar_url, biography,
			profile_animation, rank, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.PasswordHash,
		user.DisplayName,
		user.AvatarUrl,
		user.Biography,
		user.ProfileAnimation,
		user.Rank,
		user.Role,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return types.User{}, ErrDuplicateUsername
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateProfile persists the self-service profile fields only. Identity,
// role, rank, and Core state are never touched here.
func (r *UserRepository) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		UPDATE users
		SET display_name = $1,
			avatar_url = $2,
			biography = $3,
			profile_animation = $4,
			password_hash = $5
		WHERE id = $6
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(
		ctx,
		query,
		user.DisplayName,
		user.AvatarUrl,
		user.Biography,
		user.ProfileAnimation,
		user.PasswordHash,
		user.ID,
	))
}

// SetDeleted flips the ban flag on a user.
func (r *UserRepository) SetDeleted(ctx context.Context, id int, deleted bool) (types.User, error) {
	const query = `
		UPDATE users
		SET is_deleted = $1
		WHERE id = $2
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, deleted, id))
}

// GrantCore marks the user as a Core member until expiry.
func (r *UserRepository) GrantCore(ctx context.Context, id int, expiry time.Time) (types.User, error) {
	const query = `
		UPDATE users
		SET is_core = TRUE,
			core_expiry = $1
		WHERE id = $2
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, expiry, id))
}

// ClearCore revokes a lapsed Core membership. The expiry timestamp is
// kept for audit.
func (r *UserRepository) ClearCore(ctx context.Context, id int) (types.User, error) {
	const query = `
		UPDATE users
		SET is_core = FALSE
		WHERE id = $1
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var coreExpiry sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.DisplayName,
		&user.AvatarUrl,
		&user.Biography,
		&user.ProfileAnimation,
		&user.Rank,
		&user.Role,
		&user.IsCore,
		&coreExpiry,
		&user.IsDeleted,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if coreExpiry.Valid {
		expiry := coreExpiry.Time
		user.CoreExpiry = &expiry
	}
	return user, nil
}
