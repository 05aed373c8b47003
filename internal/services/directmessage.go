package services

import (
	"context"

	"github.com/ksb-community/apiserver/types"
)

// DirectMessageRepository defines persistence operations for DMs.
type DirectMessageRepository interface {
	ListBetween(ctx context.Context, userA, userB int) ([]types.DirectMessage, error)
	ListInvolving(ctx context.Context, userID int) ([]types.DirectMessage, error)
	Create(ctx context.Context, dm types.DirectMessage) (types.DirectMessage, error)
}

// DirectMessageService encapsulates DM use-cases. It serves both the
// HTTP surface and the websocket relay; the relay is only a delivery
// shortcut and always persists through here first.
type DirectMessageService struct {
	repo DirectMessageRepository
}

func NewDirectMessageService(repo DirectMessageRepository) *DirectMessageService {
	return &DirectMessageService{repo: repo}
}

func (s *DirectMessageService) History(ctx context.Context, userA, userB int) ([]types.DirectMessage, error) {
	return s.repo.ListBetween(ctx, userA, userB)
}

func (s *DirectMessageService) Inbox(ctx context.Context, userID int) ([]types.DirectMessage, error) {
	return s.repo.ListInvolving(ctx, userID)
}

func (s *DirectMessageService) Send(ctx context.Context, dm types.DirectMessage) (types.DirectMessage, error) {
	return s.repo.Create(ctx, dm)
}
