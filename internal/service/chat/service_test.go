package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"chatbroker/internal/store/jsonl"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := jsonl.New(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	return New(st, &logger)
}

func TestCreateUserRejectsDuplicateDisplayName(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice"); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := s.CreateUser(ctx, "alice"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestCreateUserRejectsEmptyDisplayName(t *testing.T) {
	s := newTestService(t)

	for _, name := range []string{"", "   "} {
		if _, err := s.CreateUser(context.Background(), name); !errors.Is(err, ErrDisplayNameRequired) {
			t.Fatalf("name %q: expected ErrDisplayNameRequired, got %v", name, err)
		}
	}
}

func TestFindUserByName(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	found, err := s.FindUserByName(ctx, "alice")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected id %s, got %s", created.ID, found.ID)
	}

	if _, err := s.FindUserByName(ctx, "bob"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateGroupRequiresMarker(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	for _, name := range []string{"team", "", "#"} {
		if _, err := s.CreateGroup(ctx, name, alice.ID); !errors.Is(err, ErrInvalidGroupName) {
			t.Fatalf("name %q: expected ErrInvalidGroupName, got %v", name, err)
		}
	}

	group, err := s.CreateGroup(ctx, "#team", alice.ID)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if !group.HasMember(alice.ID) {
		t.Fatal("creator is not a member")
	}
}

func TestCreateGroupUnknownCreator(t *testing.T) {
	s := newTestService(t)

	if _, err := s.CreateGroup(context.Background(), "#team", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateGroupDuplicate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	alice, _ := s.CreateUser(ctx, "alice")
	bob, _ := s.CreateUser(ctx, "bob")

	if _, err := s.CreateGroup(ctx, "#team", alice.ID); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := s.CreateGroup(ctx, "#team", bob.ID); !errors.Is(err, ErrGroupExists) {
		t.Fatalf("expected ErrGroupExists, got %v", err)
	}
}

func TestJoinGroup(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	alice, _ := s.CreateUser(ctx, "alice")
	bob, _ := s.CreateUser(ctx, "bob")
	if _, err := s.CreateGroup(ctx, "#team", alice.ID); err != nil {
		t.Fatalf("create group: %v", err)
	}

	added, err := s.JoinGroup(ctx, "#team", bob.ID)
	if err != nil || !added {
		t.Fatalf("first join: added=%v err=%v", added, err)
	}

	added, err = s.JoinGroup(ctx, "#team", bob.ID)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if added {
		t.Fatal("second join should report added=false")
	}

	if _, err := s.JoinGroup(ctx, "#missing", bob.ID); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
	if _, err := s.JoinGroup(ctx, "#team", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListGroupsOf(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	alice, _ := s.CreateUser(ctx, "alice")
	bob, _ := s.CreateUser(ctx, "bob")

	s.CreateGroup(ctx, "#g1", alice.ID)
	s.CreateGroup(ctx, "#g2", bob.ID)
	s.JoinGroup(ctx, "#g1", bob.ID)

	groups, err := s.ListGroupsOf(ctx, bob.ID)
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	names := []string{}
	for _, g := range groups {
		names = append(names, g.Name)
	}
	if len(names) != 2 || names[0] != "#g1" || names[1] != "#g2" {
		t.Fatalf("unexpected groups for bob: %v", names)
	}

	all, err := s.ListGroups(ctx)
	if err != nil {
		t.Fatalf("list all groups: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(all))
	}
}
