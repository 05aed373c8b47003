package services

import (
	"context"
	"time"

	"github.com/ksb-community/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User) (types.User, error)
	SetDeleted(ctx context.Context, id int, deleted bool) (types.User, error)
	GrantCore(ctx context.Context, id int, expiry time.Time) (types.User, error)
	ClearCore(ctx context.Context, id int) (types.User, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Create(ctx, user)
}

func (s *UserService) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.UpdateProfile(ctx, user)
}

func (s *UserService) SetDeleted(ctx context.Context, id int, deleted bool) (types.User, error) {
	return s.repo.SetDeleted(ctx, id, deleted)
}

func (s *UserService) GrantCore(ctx context.Context, id int, expiry time.Time) (types.User, error) {
	return s.repo.GrantCore(ctx, id, expiry)
}

// RefreshCore lazily revokes a lapsed Core membership. Called wherever
// the current user record is resolved; listings may show a stale flag
// until the user next authenticates.
func (s *UserService) RefreshCore(ctx context.Context, user types.User) (types.User, error) {
	if !user.IsCore || user.CoreExpiry == nil || user.CoreExpiry.After(time.Now()) {
		return user, nil
	}
	return s.repo.ClearCore(ctx, user.ID)
}
