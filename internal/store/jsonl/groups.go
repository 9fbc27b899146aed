package jsonl

import (
	"context"
	"encoding/json"

	"chatbroker/internal/store"
)

type groupRecord struct {
	Name      string   `json:"name"`
	CreatorID string   `json:"creator_id"`
	MemberIDs []string `json:"member_ids"`
	CreatedTS int64    `json:"created_ts"`
}

func recordFromGroup(g *store.Group) groupRecord {
	return groupRecord{
		Name:      g.Name,
		CreatorID: g.CreatorID,
		MemberIDs: g.MemberIDs,
		CreatedTS: g.CreatedTS,
	}
}

func (s *Store) loadGroups() error {
	return s.readLines(groupsFile, func(line []byte) error {
		var rec groupRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		if _, seen := s.groupsByName[rec.Name]; !seen {
			s.groupOrder = append(s.groupOrder, rec.Name)
		}
		s.groupsByName[rec.Name] = &store.Group{
			Name:      rec.Name,
			CreatorID: rec.CreatorID,
			MemberIDs: rec.MemberIDs,
			CreatedTS: rec.CreatedTS,
		}
		return nil
	})
}

// allGroupRecordsLocked renders the current index as log records.
// Callers must hold groupsMu.
func (s *Store) allGroupRecordsLocked() []any {
	recs := make([]any, 0, len(s.groupOrder))
	for _, name := range s.groupOrder {
		recs = append(recs, recordFromGroup(s.groupsByName[name]))
	}
	return recs
}

func cloneGroup(g *store.Group) *store.Group {
	out := *g
	out.MemberIDs = append([]string(nil), g.MemberIDs...)
	return &out
}

// CreateGroup persists a group whose only member is the creator.
func (s *Store) CreateGroup(_ context.Context, name, creatorID string, createdTS int64) (*store.Group, error) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	if _, exists := s.groupsByName[name]; exists {
		return nil, store.ErrAlreadyExists
	}

	group := &store.Group{
		Name:      name,
		CreatorID: creatorID,
		MemberIDs: []string{creatorID},
		CreatedTS: createdTS,
	}
	if err := s.appendLine(groupsFile, recordFromGroup(group)); err != nil {
		return nil, err
	}

	s.groupsByName[name] = group
	s.groupOrder = append(s.groupOrder, name)
	return cloneGroup(group), nil
}

// AddMember grows the membership set. Adding an existing member is a
// no-op that reports false; a real addition rewrites the whole log since
// the record changed in place.
func (s *Store) AddMember(_ context.Context, name, userID string) (bool, error) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	group, ok := s.groupsByName[name]
	if !ok {
		return false, store.ErrNotFound
	}
	if group.HasMember(userID) {
		return false, nil
	}

	updated := cloneGroup(group)
	updated.MemberIDs = append(updated.MemberIDs, userID)

	s.groupsByName[name] = updated
	if err := s.rewriteLines(groupsFile, s.allGroupRecordsLocked()); err != nil {
		s.groupsByName[name] = group
		return false, err
	}
	return true, nil
}

// GetGroup retrieves a group by name.
func (s *Store) GetGroup(_ context.Context, name string) (*store.Group, error) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	group, ok := s.groupsByName[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneGroup(group), nil
}

// GroupExists reports whether the group is present.
func (s *Store) GroupExists(_ context.Context, name string) (bool, error) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	_, ok := s.groupsByName[name]
	return ok, nil
}

// IsMember reports membership; absent groups have no members.
func (s *Store) IsMember(_ context.Context, name, userID string) (bool, error) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	group, ok := s.groupsByName[name]
	if !ok {
		return false, nil
	}
	return group.HasMember(userID), nil
}

// GroupsOf returns every group containing userID, in creation order.
func (s *Store) GroupsOf(_ context.Context, userID string) ([]*store.Group, error) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	var groups []*store.Group
	for _, name := range s.groupOrder {
		if s.groupsByName[name].HasMember(userID) {
			groups = append(groups, cloneGroup(s.groupsByName[name]))
		}
	}
	return groups, nil
}

// ListGroups returns every group in creation order.
func (s *Store) ListGroups(_ context.Context) ([]*store.Group, error) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	groups := make([]*store.Group, 0, len(s.groupOrder))
	for _, name := range s.groupOrder {
		groups = append(groups, cloneGroup(s.groupsByName[name]))
	}
	return groups, nil
}
