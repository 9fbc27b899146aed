package store

import (
	"context"
	"errors"
)

// Sentinel errors shared by all store implementations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// User is a registered identity. Immutable once created.
type User struct {
	ID          string
	DisplayName string
}

// Group is a named membership set. The creator is always a member and
// membership only grows.
type Group struct {
	Name      string
	CreatorID string
	MemberIDs []string
	CreatedTS int64 // unix ms
}

// HasMember reports whether userID is in the group's membership set.
func (g *Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is a persisted chat message with per-recipient delivery state.
// To holds a user id for direct messages and a group name when IsGroup
// is set. DeliveredTo is a monotone set of user ids the message has been
// handed to; it records delivery attempts, not client receipt.
type Message struct {
	MessageID   string
	FromUserID  string
	To          string
	Text        string
	SentTS      int64 // unix ms
	IsGroup     bool
	DeliveredTo []string
}

// DeliveredToUser reports whether userID is in the delivered set.
func (m *Message) DeliveredToUser(userID string) bool {
	for _, id := range m.DeliveredTo {
		if id == userID {
			return true
		}
	}
	return false
}

// UserStore handles identity persistence.
type UserStore interface {
	// CreateUser allocates an id and persists the user. It does not check
	// display-name uniqueness; that is the registration path's job, backed
	// by FindUserByDisplayName.
	CreateUser(ctx context.Context, displayName string) (*User, error)

	// GetUser retrieves a user by id, or ErrNotFound.
	GetUser(ctx context.Context, id string) (*User, error)

	// FindUserByDisplayName retrieves a user by exact, case-sensitive
	// display name, or ErrNotFound.
	FindUserByDisplayName(ctx context.Context, displayName string) (*User, error)

	// ListUsers returns every registered user.
	ListUsers(ctx context.Context) ([]*User, error)

	// SearchUsers returns users whose display name contains query,
	// case-insensitively. An empty query matches everyone.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// GroupStore handles group persistence.
type GroupStore interface {
	// CreateGroup persists a group whose membership is exactly the creator.
	// Returns ErrAlreadyExists if the name is taken.
	CreateGroup(ctx context.Context, name, creatorID string, createdTS int64) (*Group, error)

	// AddMember adds userID to the group. Returns ErrNotFound if the group
	// does not exist and (false, nil) without writing if userID is already
	// a member.
	AddMember(ctx context.Context, name, userID string) (bool, error)

	// GetGroup retrieves a group by name, or ErrNotFound.
	GetGroup(ctx context.Context, name string) (*Group, error)

	// GroupExists reports whether the group is present.
	GroupExists(ctx context.Context, name string) (bool, error)

	// IsMember reports whether userID belongs to the group. False when the
	// group is absent.
	IsMember(ctx context.Context, name, userID string) (bool, error)

	// GroupsOf returns every group userID belongs to.
	GroupsOf(ctx context.Context, userID string) ([]*Group, error)

	// ListGroups returns every group.
	ListGroups(ctx context.Context) ([]*Group, error)
}

// MembershipFunc answers "is userID currently a member of group name".
// MessageStore takes it as a parameter so the message log stays ignorant
// of group storage.
type MembershipFunc func(ctx context.Context, name, userID string) (bool, error)

// MessageStore handles the append-only message log.
type MessageStore interface {
	// AppendMessage durably persists the message, including its initial
	// delivered set. The write is flushed and fsynced before return.
	AppendMessage(ctx context.Context, msg *Message) error

	// MarkDelivered idempotently adds userID to the message's delivered set
	// and persists the change. Not O(1): the durable representation of the
	// delivered set is rewritten.
	MarkDelivered(ctx context.Context, messageID, userID string) error

	// UndeliveredFor returns, in arbitrary order, every direct message to
	// userID not yet delivered to them, plus every group message for a
	// group where isMember reports current membership and the user is not
	// yet in the delivered set.
	UndeliveredFor(ctx context.Context, userID string, isMember MembershipFunc) ([]*Message, error)

	// History returns the conversation between userID and chatID (both
	// directions for a DM pair, all group traffic when isGroup), ascending
	// by sent_ts, truncated to the most recent limit entries (0 = all).
	History(ctx context.Context, userID, chatID string, isGroup bool, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	GroupStore
	MessageStore

	// Close releases the underlying files.
	Close() error
}
