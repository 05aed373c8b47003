package services

import (
	"context"
	"time"

	"github.com/ksb-community/apiserver/types"
)

// CoreGrantTTL is how long a Core membership granted through fanart
// approval (or an admin gift) lasts. A repeated grant resets the expiry
// forward; it does not stack.
const CoreGrantTTL = 30 * 24 * time.Hour

// FanartRepository defines persistence operations for fanart submissions.
type FanartRepository interface {
	ListByStatus(ctx context.Context, status types.FanartStatus) ([]types.FanartWithUser, error)
	Create(ctx context.Context, fanart types.Fanart) (types.Fanart, error)
	Decide(ctx context.Context, id int, status types.FanartStatus, coreExpiry time.Time) (types.Fanart, error)
}

// FanartService encapsulates the submission/moderation queue.
type FanartService struct {
	repo FanartRepository
}

func NewFanartService(repo FanartRepository) *FanartService {
	return &FanartService{repo: repo}
}

func (s *FanartService) ListPending(ctx context.Context) ([]types.FanartWithUser, error) {
	return s.repo.ListByStatus(ctx, types.FanartPending)
}

func (s *FanartService) ListApproved(ctx context.Context) ([]types.FanartWithUser, error) {
	return s.repo.ListByStatus(ctx, types.FanartApproved)
}

func (s *FanartService) Submit(ctx context.Context, userID int, imageURL string) (types.Fanart, error) {
	return s.repo.Create(ctx, types.Fanart{UserID: userID, ImageUrl: imageURL})
}

// Decide transitions a pending submission. Approval grants the
// submitter Core status expiring CoreGrantTTL from now, atomically with
// the status change.
func (s *FanartService) Decide(ctx context.Context, id int, status types.FanartStatus) (types.Fanart, error) {
	return s.repo.Decide(ctx, id, status, time.Now().Add(CoreGrantTTL))
}
