// Package chat implements the broker's request/response operations:
// registration, identity lookup, group management and history. The live
// message path lives in internal/core.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatbroker/internal/store"
)

// GroupMarker is the reserved character every group name starts with.
const GroupMarker = "#"

// Common errors for chat operations.
var (
	ErrDisplayNameRequired = errors.New("display name is required")
	ErrUserExists          = errors.New("display name already taken")
	ErrUserNotFound        = errors.New("user not found")
	ErrGroupExists         = errors.New("group already exists")
	ErrGroupNotFound       = errors.New("group not found")
	ErrInvalidGroupName    = errors.New("group name must start with " + GroupMarker)
)

// Service provides the unary operations over the shared store.
type Service struct {
	store store.Store
	log   *zerolog.Logger
}

// New creates a chat service.
func New(st store.Store, logger *zerolog.Logger) *Service {
	return &Service{store: st, log: logger}
}

// CreateUser registers a new identity. Display names are unique;
// duplicates fail with ErrUserExists.
func (s *Service) CreateUser(ctx context.Context, displayName string) (*store.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrDisplayNameRequired
	}

	if _, err := s.store.FindUserByDisplayName(ctx, displayName); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check display name: %w", err)
	}

	user, err := s.store.CreateUser(ctx, displayName)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("display_name", user.DisplayName).Msg("user registered")
	return user, nil
}

// FindUserByName resolves a display name to a user (the login path).
func (s *Service) FindUserByName(ctx context.Context, displayName string) (*store.User, error) {
	user, err := s.store.FindUserByDisplayName(ctx, displayName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// SearchUsers matches display names by case-insensitive containment.
func (s *Service) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	return s.store.SearchUsers(ctx, query)
}

// ListUsers returns every registered user.
func (s *Service) ListUsers(ctx context.Context) ([]*store.User, error) {
	return s.store.ListUsers(ctx)
}

// CreateGroup creates a group owned by creatorID. The name must carry
// the group marker and the creator must exist.
func (s *Service) CreateGroup(ctx context.Context, name, creatorID string) (*store.Group, error) {
	if !strings.HasPrefix(name, GroupMarker) || len(name) < 2 {
		return nil, ErrInvalidGroupName
	}
	if _, err := s.store.GetUser(ctx, creatorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("check creator: %w", err)
	}

	group, err := s.store.CreateGroup(ctx, name, creatorID, time.Now().UnixMilli())
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrGroupExists
		}
		return nil, fmt.Errorf("create group: %w", err)
	}

	s.log.Info().Str("group", group.Name).Str("creator_id", creatorID).Msg("group created")
	return group, nil
}

// JoinGroup adds userID to the group. Joining twice reports added=false
// and leaves the membership unchanged.
func (s *Service) JoinGroup(ctx context.Context, name, userID string) (bool, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("check user: %w", err)
	}

	added, err := s.store.AddMember(ctx, name, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrGroupNotFound
		}
		return false, fmt.Errorf("add member: %w", err)
	}

	if added {
		s.log.Info().Str("group", name).Str("user_id", userID).Msg("user joined group")
	}
	return added, nil
}

// ListGroupsOf returns the groups userID belongs to.
func (s *Service) ListGroupsOf(ctx context.Context, userID string) ([]*store.Group, error) {
	return s.store.GroupsOf(ctx, userID)
}

// ListGroups returns every group.
func (s *Service) ListGroups(ctx context.Context) ([]*store.Group, error) {
	return s.store.ListGroups(ctx)
}

// GetHistory returns the conversation between userID and chatID (a user
// id, or a group name when isGroup), oldest first, truncated to the most
// recent limit entries when limit is positive.
func (s *Service) GetHistory(ctx context.Context, userID, chatID string, isGroup bool, limit int) ([]*store.Message, error) {
	return s.store.History(ctx, userID, chatID, isGroup, limit)
}
