package jsonl

import (
	"context"
	"encoding/json"
	"sort"

	"chatbroker/internal/store"
)

type messageRecord struct {
	MessageID   string   `json:"message_id"`
	FromUserID  string   `json:"from_user_id"`
	To          string   `json:"to"`
	Text        string   `json:"text"`
	SentTS      int64    `json:"sent_ts"`
	IsGroup     bool     `json:"is_group"`
	DeliveredTo []string `json:"delivered_to"`
}

func recordFromMessage(m *store.Message) messageRecord {
	return messageRecord{
		MessageID:   m.MessageID,
		FromUserID:  m.FromUserID,
		To:          m.To,
		Text:        m.Text,
		SentTS:      m.SentTS,
		IsGroup:     m.IsGroup,
		DeliveredTo: m.DeliveredTo,
	}
}

func (s *Store) loadMessages() error {
	return s.readLines(messagesFile, func(line []byte) error {
		var rec messageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		msg := &store.Message{
			MessageID:   rec.MessageID,
			FromUserID:  rec.FromUserID,
			To:          rec.To,
			Text:        rec.Text,
			SentTS:      rec.SentTS,
			IsGroup:     rec.IsGroup,
			DeliveredTo: rec.DeliveredTo,
		}
		if _, seen := s.messagesByID[rec.MessageID]; seen {
			// A rewritten log never has duplicates; tolerate them on load
			// by keeping the last record.
			*s.messagesByID[rec.MessageID] = *msg
			return nil
		}
		s.messages = append(s.messages, msg)
		s.messagesByID[rec.MessageID] = msg
		return nil
	})
}

// allMessageRecordsLocked renders the log for a rewrite. Callers must
// hold messagesMu.
func (s *Store) allMessageRecordsLocked() []any {
	recs := make([]any, 0, len(s.messages))
	for _, m := range s.messages {
		recs = append(recs, recordFromMessage(m))
	}
	return recs
}

func cloneMessage(m *store.Message) *store.Message {
	out := *m
	out.DeliveredTo = append([]string(nil), m.DeliveredTo...)
	return &out
}

// AppendMessage durably appends the message and indexes it.
func (s *Store) AppendMessage(_ context.Context, msg *store.Message) error {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	if _, exists := s.messagesByID[msg.MessageID]; exists {
		return store.ErrAlreadyExists
	}

	kept := cloneMessage(msg)
	if err := s.appendLine(messagesFile, recordFromMessage(kept)); err != nil {
		return err
	}

	s.messages = append(s.messages, kept)
	s.messagesByID[kept.MessageID] = kept
	return nil
}

// MarkDelivered adds userID to the delivered set. Set semantics: a second
// call for the same pair is a no-op with no write. A real change rewrites
// the whole log.
func (s *Store) MarkDelivered(_ context.Context, messageID, userID string) error {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	msg, ok := s.messagesByID[messageID]
	if !ok {
		return store.ErrNotFound
	}
	if msg.DeliveredToUser(userID) {
		return nil
	}

	prev := msg.DeliveredTo
	msg.DeliveredTo = append(append([]string(nil), prev...), userID)
	if err := s.rewriteLines(messagesFile, s.allMessageRecordsLocked()); err != nil {
		msg.DeliveredTo = prev
		return err
	}
	return nil
}

// UndeliveredFor collects the backlog a reconnecting user drains: direct
// messages to them plus group traffic for groups they currently belong
// to, minus anything already in the delivered set.
func (s *Store) UndeliveredFor(ctx context.Context, userID string, isMember store.MembershipFunc) ([]*store.Message, error) {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	var pending []*store.Message
	for _, msg := range s.messages {
		if msg.DeliveredToUser(userID) {
			continue
		}
		if msg.IsGroup {
			member, err := isMember(ctx, msg.To, userID)
			if err != nil {
				return nil, err
			}
			if member {
				pending = append(pending, cloneMessage(msg))
			}
			continue
		}
		if msg.To == userID {
			pending = append(pending, cloneMessage(msg))
		}
	}
	return pending, nil
}

// History returns the conversation ascending by sent_ts. For a DM pair
// both directions count; for a group, everything addressed to it. A
// positive limit keeps only the most recent entries.
func (s *Store) History(_ context.Context, userID, chatID string, isGroup bool, limit int) ([]*store.Message, error) {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	var msgs []*store.Message
	for _, msg := range s.messages {
		if isGroup {
			if msg.IsGroup && msg.To == chatID {
				msgs = append(msgs, cloneMessage(msg))
			}
			continue
		}
		if msg.IsGroup {
			continue
		}
		if (msg.FromUserID == userID && msg.To == chatID) ||
			(msg.FromUserID == chatID && msg.To == userID) {
			msgs = append(msgs, cloneMessage(msg))
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SentTS < msgs[j].SentTS
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}
