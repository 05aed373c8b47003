package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ksb-community/apiserver/types"
)

// MessageRepository handles persistence for broadcast chat messages.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListVisible returns the most recent non-deleted messages joined with
// their authors, reordered oldest-first within the cap.
func (r *MessageRepository) ListVisible(ctx context.Context, limit int) ([]types.MessageWithUser, error) {
	const query = `
		SELECT m.id, m.user_id, m.content, m.image_url, m.is_deleted, m.created_at,
			` + prefixedUserColumns + `
		FROM (
			SELECT id, user_id, content, image_url, is_deleted, created_at
			FROM messages
			WHERE is_deleted = FALSE
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		) m
		JOIN users u ON u.id = m.user_id
		ORDER BY m.created_at ASC, m.id ASC`
	return r.listWithUser(ctx, query, limit)
}

// ListAll returns the most recent messages including soft-deleted ones,
// reordered oldest-first within the cap. Used by the admin view.
func (r *MessageRepository) ListAll(ctx context.Context, limit int) ([]types.MessageWithUser, error) {
	const query = `
		SELECT m.id, m.user_id, m.content, m.image_url, m.is_deleted, m.created_at,
			` + prefixedUserColumns + `
		FROM (
			SELECT id, user_id, content, image_url, is_deleted, created_at
			FROM messages
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		) m
		JOIN users u ON u.id = m.user_id
		ORDER BY m.created_at ASC, m.id ASC`
	return r.listWithUser(ctx, query, limit)
}

// ListRecentByAuthor returns the author's newest non-deleted messages,
// newest first. Feeds the repeat-spam guard.
func (r *MessageRepository) ListRecentByAuthor(ctx context.Context, userID, limit int) ([]types.Message, error) {
	const query = `
		SELECT id, user_id, content, image_url, is_deleted, created_at
		FROM messages
		WHERE user_id = $1 AND is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []types.Message{}
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.UserID,
			&msg.Content,
			&msg.ImageUrl,
			&msg.IsDeleted,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *MessageRepository) Get(ctx context.Context, id int) (types.Message, error) {
	const query = `
		SELECT id, user_id, content, image_url, is_deleted, created_at
		FROM messages
		WHERE id = $1`
	var msg types.Message
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.UserID,
		&msg.Content,
		&msg.ImageUrl,
		&msg.IsDeleted,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, err
	}
	return msg, nil
}

func (r *MessageRepository) Create(ctx context.Context, msg types.Message) (types.Message, error) {
	msg.CreatedAt = time.Now()

	const query = `
		INSERT INTO messages (user_id, content, image_url, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		msg.UserID,
		msg.Content,
		msg.ImageUrl,
		msg.CreatedAt,
	).Scan(&msg.ID); err != nil {
		return types.Message{}, err
	}
	return msg, nil
}

// SetDeleted flips the soft-delete flag on a message.
func (r *MessageRepository) SetDeleted(ctx context.Context, id int, deleted bool) error {
	const query = `UPDATE messages SET is_deleted = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, deleted, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const prefixedUserColumns = `u.id, u.username, u.password_hash, u.display_name, u.avatar_url,
			u.biography, u.profile_animation, u.rank, u.role, u.is_core, u.core_expiry,
			u.is_deleted, u.created_at`

func (r *MessageRepository) listWithUser(ctx context.Context, query string, limit int) ([]types.MessageWithUser, error) {
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []types.MessageWithUser{}
	for rows.Next() {
		var item types.MessageWithUser
		var coreExpiry sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.Content,
			&item.ImageUrl,
			&item.IsDeleted,
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
		if coreExpiry.Valid {
			expiry := coreExpiry.Time
			item.User.CoreExpiry = &expiry
		}
		messages = append(messages, item)
	}
	return messages, rows.Err()
}
