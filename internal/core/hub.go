package core

import (
	"sync"

	"github.com/rs/zerolog"

	"chatbroker/internal/proto"
)

// queueSlack is the live-traffic headroom a session queue gets on top of
// its backlog.
const queueSlack = 64

// Hub is the in-memory registry of online users. Each entry maps a user
// id to the delivery queue its session writer drains. The hub is the
// sole writer of the registry map; it never touches durable state.
type Hub struct {
	mu     sync.Mutex
	queues map[string]chan *proto.Envelope
	log    *zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		queues: make(map[string]chan *proto.Envelope),
		log:    logger,
	}
}

// Register installs a fresh delivery queue for userID, pre-seeded with
// the backlog so everything already pending sits ahead of any live
// envelope. An existing entry is replaced; its consumer notices through
// its own transport, not through the orphaned queue.
func (h *Hub) Register(userID string, backlog []*proto.Envelope) <-chan *proto.Envelope {
	q := make(chan *proto.Envelope, len(backlog)+queueSlack)
	for _, env := range backlog {
		q <- env
	}

	h.mu.Lock()
	h.queues[userID] = q
	online := len(h.queues)
	h.mu.Unlock()

	h.log.Debug().Str("user_id", userID).Int("backlog", len(backlog)).Int("online", online).Msg("hub register")
	return q
}

// Remove deletes the registry entry for userID. Idempotent.
func (h *Hub) Remove(userID string) {
	h.mu.Lock()
	delete(h.queues, userID)
	online := len(h.queues)
	h.mu.Unlock()

	h.log.Debug().Str("user_id", userID).Int("online", online).Msg("hub remove")
}

// Send enqueues env for userID if they are online and reports whether it
// was handed over. False means "treat as offline, keep the message
// pending" — including the rare case of a full queue, where blocking
// could wedge the sender against a consumer that is already gone.
func (h *Hub) Send(userID string, env *proto.Envelope) bool {
	h.mu.Lock()
	q, ok := h.queues[userID]
	h.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case q <- env:
		return true
	default:
		h.log.Warn().Str("user_id", userID).Msg("delivery queue full, leaving message pending")
		return false
	}
}

// Online returns a snapshot of the currently registered user ids.
func (h *Hub) Online() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.queues))
	for id := range h.queues {
		ids = append(ids, id)
	}
	return ids
}
