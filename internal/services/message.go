package services

import (
	"context"

	"github.com/ksb-community/apiserver/types"
)

const (
	// Listing caps per role, applied before reordering oldest-first.
	memberMessageCap = 100
	adminMessageCap  = 200

	// The repeat-spam guard compares the new message against this many
	// of the author's most recent messages.
	spamGuardWindow = 3
)

// MessageRepository defines persistence operations for chat messages.
type MessageRepository interface {
	ListVisible(ctx context.Context, limit int) ([]types.MessageWithUser, error)
	ListAll(ctx context.Context, limit int) ([]types.MessageWithUser, error)
	ListRecentByAuthor(ctx context.Context, userID, limit int) ([]types.Message, error)
	Get(ctx context.Context, id int) (types.Message, error)
	Create(ctx context.Context, msg types.Message) (types.Message, error)
	SetDeleted(ctx context.Context, id int, deleted bool) error
}

// MessageService encapsulates chat use-cases.
type MessageService struct {
	repo MessageRepository
}

func NewMessageService(repo MessageRepository) *MessageService {
	return &MessageService{repo: repo}
}

// ListForMember returns the member view: non-deleted messages only.
func (s *MessageService) ListForMember(ctx context.Context) ([]types.MessageWithUser, error) {
	return s.repo.ListVisible(ctx, memberMessageCap)
}

// ListForAdmin returns the moderation view including deleted messages.
func (s *MessageService) ListForAdmin(ctx context.Context) ([]types.MessageWithUser, error) {
	return s.repo.ListAll(ctx, adminMessageCap)
}

// IsRepeat reports whether the author's last messages are all identical
// to the candidate content. Timing is not considered, only content
// equality over the window.
func (s *MessageService) IsRepeat(ctx context.Context, userID int, content string) (bool, error) {
	recent, err := s.repo.ListRecentByAuthor(ctx, userID, spamGuardWindow)
	if err != nil {
		return false, err
	}
	if len(recent) < spamGuardWindow {
		return false, nil
	}
	for _, msg := range recent {
		if msg.Content != content {
			return false, nil
		}
	}
	return true, nil
}

func (s *MessageService) Get(ctx context.Context, id int) (types.Message, error) {
	return s.repo.Get(ctx, id)
}

func (s *MessageService) Create(ctx context.Context, msg types.Message) (types.Message, error) {
	return s.repo.Create(ctx, msg)
}

func (s *MessageService) Delete(ctx context.Context, id int) error {
	return s.repo.SetDeleted(ctx, id, true)
}

func (s *MessageService) Restore(ctx context.Context, id int) error {
	return s.repo.SetDeleted(ctx, id, false)
}
