package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ksb-community/apiserver/types"
)

// DirectMessageRepository handles persistence for direct messages.
type DirectMessageRepository struct {
	db *sql.DB
}

func NewDirectMessageRepository(db *sql.DB) *DirectMessageRepository {
	return &DirectMessageRepository{db: db}
}

// ListBetween returns the conversation between two users as an unordered
// pair, oldest first.
func (r *DirectMessageRepository) ListBetween(ctx context.Context, userA, userB int) ([]types.DirectMessage, error) {
	const query = `
		SELECT id, sender_id, receiver_id, content, image_url, created_at
		FROM direct_messages
		WHERE (sender_id = $1 AND receiver_id = $2)
			OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, userA, userB)
}

// ListInvolving returns every direct message sent or received by the
// user, oldest first. Feeds the inbox view.
func (r *DirectMessageRepository) ListInvolving(ctx context.Context, userID int) ([]types.DirectMessage, error) {
	const query = `
		SELECT id, sender_id, receiver_id, content, image_url, created_at
		FROM direct_messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, userID)
}

func (r *DirectMessageRepository) Create(ctx context.Context, dm types.DirectMessage) (types.DirectMessage, error) {
	dm.CreatedAt = time.Now()

	const query = `
		INSERT INTO direct_messages (sender_id, receiver_id, content, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		dm.SenderID,
		dm.ReceiverID,
		dm.Content,
		dm.ImageUrl,
		dm.CreatedAt,
	).Scan(&dm.ID); err != nil {
		return types.DirectMessage{}, err
	}
	return dm, nil
}

func (r *DirectMessageRepository) list(ctx context.Context, query string, args ...any) ([]types.DirectMessage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dms := []types.DirectMessage{}
	for rows.Next() {
		var dm types.DirectMessage
		if err := rows.Scan(
			&dm.ID,
			&dm.SenderID,
			&dm.ReceiverID,
			&dm.Content,
			&dm.ImageUrl,
			&dm.CreatedAt,
		); err != nil {
			return nil, err
		}
		dms = append(dms, dm)
	}
	return dms, rows.Err()
}
