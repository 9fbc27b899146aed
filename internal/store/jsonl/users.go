package jsonl

import (
	"context"
	"encoding/json"
	"strings"

	"chatbroker/internal/store"
	"chatbroker/internal/utils"
)

type userRecord struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func (s *Store) loadUsers() error {
	return s.readLines(usersFile, func(line []byte) error {
		var rec userRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		if _, seen := s.usersByID[rec.ID]; !seen {
			s.userOrder = append(s.userOrder, rec.ID)
		}
		s.usersByID[rec.ID] = &store.User{ID: rec.ID, DisplayName: rec.DisplayName}
		return nil
	})
}

// CreateUser allocates an opaque id, appends the record and indexes it.
// Display-name uniqueness is the caller's concern.
func (s *Store) CreateUser(_ context.Context, displayName string) (*store.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	user := &store.User{ID: utils.NewID(), DisplayName: displayName}
	rec := userRecord{ID: user.ID, DisplayName: user.DisplayName}
	if err := s.appendLine(usersFile, rec); err != nil {
		return nil, err
	}

	s.usersByID[user.ID] = user
	s.userOrder = append(s.userOrder, user.ID)

	out := *user
	return &out, nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(_ context.Context, id string) (*store.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *user
	return &out, nil
}

// FindUserByDisplayName does an exact, case-sensitive lookup.
func (s *Store) FindUserByDisplayName(_ context.Context, displayName string) (*store.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	for _, id := range s.userOrder {
		if s.usersByID[id].DisplayName == displayName {
			out := *s.usersByID[id]
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// ListUsers returns every user in registration order.
func (s *Store) ListUsers(_ context.Context) ([]*store.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	users := make([]*store.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		out := *s.usersByID[id]
		users = append(users, &out)
	}
	return users, nil
}

// SearchUsers matches display names by case-insensitive containment.
// An empty query matches everyone.
func (s *Store) SearchUsers(_ context.Context, query string) ([]*store.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	q := strings.ToLower(query)
	var users []*store.User
	for _, id := range s.userOrder {
		user := s.usersByID[id]
		if strings.Contains(strings.ToLower(user.DisplayName), q) {
			out := *user
			users = append(users, &out)
		}
	}
	return users, nil
}
