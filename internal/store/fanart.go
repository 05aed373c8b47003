package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ksb-community/apiserver/types"
)

// FanartRepository handles persistence for fanart submissions.
type FanartRepository struct {
	db *sql.DB
}

func NewFanartRepository(db *sql.DB) *FanartRepository {
	return &FanartRepository{db: db}
}

// ListByStatus returns submissions in the given moderation state joined
// with their submitters, newest first.
func (r *FanartRepository) ListByStatus(ctx context.Context, status types.FanartStatus) ([]types.FanartWithUser, error) {
	const query = `
		SELECT f.id, f.user_id, f.image_url, f.status, f.created_at,
			` + prefixedUserColumns + `
		FROM fanarts f
		JOIN users u ON u.id = f.user_id
		WHERE f.status = $1
		ORDER BY f.created_at DESC, f.id DESC`
	rows, err := r.db.QueryContext(ctx, query, status.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fanarts := []types.FanartWithUser{}
	for rows.Next() {
		var item types.FanartWithUser
		var statusValue string
		var coreExpiry sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.ImageUrl,
			&statusValue,
			&item.CreatedAt,
			&item.User.ID,
			&item.User.Username,
			&item.User.PasswordHash,
			&item.User.DisplayName,
			&item.User.AvatarUrl,
			&item.User.Biography,
			&item.User.ProfileAnimation,
			&item.User.Rank,
			&item.User.Role,
			&item.User.IsCore,
			&coreExpiry,
			&item.User.IsDeleted,
			&item.User.CreatedAt,
		); err != nil {
			return nil, err
		}
		if item.Status, err = types.ParseFanartStatus(statusValue); err != nil {
			return nil, err
		}
		if coreExpiry.Valid {
			expiry := coreExpiry.Time
			item.User.CoreExpiry = &expiry
		}
		fanarts = append(fanarts, item)
	}
	return fanarts, rows.Err()
}

func (r *FanartRepository) Create(ctx context.Context, fanart types.Fanart) (types.Fanart, error) {
	fanart.Status = types.FanartPending
	fanart.CreatedAt = time.Now()

	const query = `
		INSERT INTO fanarts (user_id, image_url, status, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		fanart.UserID,
		fanart.ImageUrl,
		fanart.Status.String(),
		fanart.CreatedAt,
	).Scan(&fanart.ID); err != nil {
		return types.Fanart{}, err
	}
	return fanart, nil
}

// Decide sets the submission's moderation state and, on approval, grants
// the submitter Core membership until expiry. Both writes happen in one
// transaction so a crash cannot leave an approved fanart without the
// grant.
func (r *FanartRepository) Decide(ctx context.Context, id int, status types.FanartStatus, coreExpiry time.Time) (types.Fanart, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Fanart{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const update = `
		UPDATE fanarts
		SET status = $1
		WHERE id = $2
		RETURNING id, user_id, image_url, status, created_at`
	var fanart types.Fanart
	var statusValue string
	err = tx.QueryRowContext(ctx, update, status.String(), id).Scan(
		&fanart.ID,
		&fanart.UserID,
		&fanart.ImageUrl,
		&statusValue,
		&fanart.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Fanart{}, ErrNotFound
		}
		return types.Fanart{}, err
	}
	if fanart.Status, err = types.ParseFanartStatus(statusValue); err != nil {
		return types.Fanart{}, err
	}

	if status == types.FanartApproved {
		const grant = `
			UPDATE users
			SET is_core = TRUE,
				core_expiry = $1
			WHERE id = $2`
		result, err := tx.ExecContext(ctx, grant, coreExpiry, fanart.UserID)
		if err != nil {
			return types.Fanart{}, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return types.Fanart{}, err
		}
		if affected == 0 {
			return types.Fanart{}, fmt.Errorf("fanart %d submitter %d: %w", id, fanart.UserID, ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Fanart{}, err
	}
	return fanart, nil
}
