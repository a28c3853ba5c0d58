package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linklite/apiserver/internal/store"
	"github.com/linklite/apiserver/types"
)

const (
	maxNameLength   = 255
	maxEmailLength  = 255
	maxAvatarLength = 500
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User, beforeCommit func(types.User) error) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates profile use-cases.
type UserService struct {
	repo   UserRepository
	events *AccountEvents
}

func NewUserService(repo UserRepository, events *AccountEvents) *UserService {
	return &UserService{repo: repo, events: events}
}

// UpdateProfileRequest is a partial profile edit. Nil fields are left alone;
// an empty bio or avatar clears the value.
type UpdateProfileRequest struct {
	Name   *string `json:"name"`
	Bio    *string `json:"bio"`
	Avatar *string `json:"avatar"`
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// Profile returns the public view of the account with the given id as seen by
// viewer. viewer is nil for anonymous callers.
func (s *UserService) Profile(ctx context.Context, id string, viewer *types.Identity) (types.Profile, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return types.Profile{}, err
	}

	profile := types.Profile{
		ID:        user.ID,
		Name:      user.Name,
		Bio:       user.Bio,
		Avatar:    user.Avatar,
		CreatedAt: user.CreatedAt,
	}
	if viewer != nil && viewer.ID == user.ID {
		profile.IsSelf = true
		profile.Email = user.Email
	}
	return profile, nil
}

// UpdateProfile applies req to the account and returns the refreshed identity.
func (s *UserService) UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest) (types.Identity, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return types.Identity{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return types.Identity{}, invalidf("name cannot be empty")
		}
		if len(name) > maxNameLength {
			return types.Identity{}, invalidf("name must be at most %d characters", maxNameLength)
		}
		user.Name = name
	}
	if req.Bio != nil {
		user.Bio = optionalText(*req.Bio)
	}
	if req.Avatar != nil {
		avatar := optionalText(*req.Avatar)
		if avatar != nil && len(*avatar) > maxAvatarLength {
			return types.Identity{}, invalidf("avatar must be at most %d characters", maxAvatarLength)
		}
		user.Avatar = avatar
	}

	updated, err := s.repo.UpdateProfile(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Identity{}, ErrNotFound
		}
		return types.Identity{}, fmt.Errorf("update user: %w", err)
	}

	s.events.announce(ctx, types.AccountUpdated, updated)
	return updated.Identity(), nil
}

// optionalText trims value and maps the empty string to nil.
func optionalText(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
