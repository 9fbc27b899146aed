package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"chatbroker/internal/proto"
	"chatbroker/internal/store"
	"chatbroker/internal/utils"
)

// Stream is the duplex envelope transport a session runs over. Both
// calls honor context cancellation; Recv returns io.EOF when the client
// closes its side.
type Stream interface {
	Recv(ctx context.Context) (*proto.Envelope, error)
	Send(ctx context.Context, env *proto.Envelope) error
}

// Session drives the per-connection protocol: a mandatory handshake,
// backlog replay, then a reader loop routing inbound envelopes and a
// writer loop draining the hub queue to the client. One Session value
// serves one connection.
type Session struct {
	hub   *Hub
	store store.Store
	log   *zerolog.Logger
}

// NewSession builds a session against the shared hub and store.
func NewSession(hub *Hub, st store.Store, logger *zerolog.Logger) *Session {
	return &Session{hub: hub, store: st, log: logger}
}

// Run executes the session until the stream closes, the context is
// cancelled, or a fatal error occurs. The hub entry is removed on every
// exit path.
func (s *Session) Run(ctx context.Context, stream Stream) error {
	first, err := stream.Recv(ctx)
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	if first.Kind != proto.KindHandshake || first.FromUserID == "" {
		return ErrUnauthenticated
	}
	userID := first.FromUserID
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthenticated
		}
		return fmt.Errorf("handshake lookup: %w", err)
	}

	backlog, err := s.store.UndeliveredFor(ctx, userID, s.store.IsMember)
	if err != nil {
		return fmt.Errorf("load backlog: %w", err)
	}
	envs := make([]*proto.Envelope, 0, len(backlog))
	for _, msg := range backlog {
		envs = append(envs, envelopeFromMessage(msg))
	}

	// Seeding the queue inside Register keeps every backlog envelope
	// ahead of live traffic on this user's channel.
	queue := s.hub.Register(userID, envs)
	defer s.hub.Remove(userID)

	for _, msg := range backlog {
		if err := s.store.MarkDelivered(ctx, msg.MessageID, userID); err != nil {
			s.log.Error().Err(err).Str("message_id", msg.MessageID).Str("user_id", userID).Msg("mark backlog delivered")
		}
	}

	s.log.Info().Str("user_id", userID).Int("backlog", len(backlog)).Msg("session active")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.readLoop(ctx, stream, userID)
	}()
	go func() {
		errCh <- s.writeLoop(ctx, stream, queue)
	}()

	err = <-errCh
	cancel()
	<-errCh

	s.log.Info().Str("user_id", userID).Msg("session closed")

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// readLoop classifies and routes inbound envelopes until the stream
// closes. Durable-store failures are fatal to the connection.
func (s *Session) readLoop(ctx context.Context, stream Stream, userID string) error {
	for {
		env, err := stream.Recv(ctx)
		if err != nil {
			return err
		}

		switch env.Kind {
		case proto.KindSendDirect:
			err = s.routeDirect(ctx, userID, env)
		case proto.KindSendGroup:
			err = s.routeGroup(ctx, userID, env)
		default:
			s.hub.Send(userID, s.ack(userID, env.MessageID, "unknown envelope kind"))
		}
		if err != nil {
			return err
		}
	}
}

// writeLoop forwards the hub queue to the client in FIFO order.
func (s *Session) writeLoop(ctx context.Context, stream Stream, queue <-chan *proto.Envelope) error {
	for {
		select {
		case env := <-queue:
			if err := stream.Send(ctx, env); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// routeDirect persists a user-to-user message, attempts live delivery
// and acks the outcome to the sender.
func (s *Session) routeDirect(ctx context.Context, userID string, env *proto.Envelope) error {
	if env.ToUserID == "" || env.Text == "" {
		s.hub.Send(userID, s.ack(userID, env.MessageID, "missing recipient or text"))
		return nil
	}

	msg := &store.Message{
		MessageID:  messageID(env),
		FromUserID: userID,
		To:         env.ToUserID,
		Text:       env.Text,
		SentTS:     sentTS(env),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			s.hub.Send(userID, s.ack(userID, msg.MessageID, "duplicate message id"))
			return nil
		}
		return fmt.Errorf("append message: %w", err)
	}

	out := &proto.Envelope{
		Kind:       proto.KindSendDirect,
		MessageID:  msg.MessageID,
		FromUserID: userID,
		ToUserID:   msg.To,
		Text:       msg.Text,
		SentTS:     msg.SentTS,
	}

	status := "queued"
	if s.hub.Send(msg.To, out) {
		status = "delivered"
		if err := s.store.MarkDelivered(ctx, msg.MessageID, msg.To); err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
	}

	s.log.Debug().Str("from", userID).Str("to", msg.To).Str("status", status).Msg("direct message routed")
	s.hub.Send(userID, s.ack(userID, msg.MessageID, status))
	return nil
}

// routeGroup validates the group and sender, persists the message with
// the sender already in the delivered set, then fans it out to every
// online member, marking each one reached. Appending first means a
// replayed message id is rejected before anyone sees it twice. Partial
// delivery is normal; the rest drain it as backlog.
func (s *Session) routeGroup(ctx context.Context, userID string, env *proto.Envelope) error {
	if env.Group == "" || env.Text == "" {
		s.hub.Send(userID, s.ack(userID, env.MessageID, "missing group or text"))
		return nil
	}

	group, err := s.store.GetGroup(ctx, env.Group)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hub.Send(userID, s.ack(userID, env.MessageID, "unknown group "+env.Group))
			return nil
		}
		return fmt.Errorf("get group: %w", err)
	}
	if !group.HasMember(userID) {
		s.hub.Send(userID, s.ack(userID, env.MessageID, "not a member of "+group.Name))
		return nil
	}

	msg := &store.Message{
		MessageID:   messageID(env),
		FromUserID:  userID,
		To:          group.Name,
		Text:        env.Text,
		SentTS:      sentTS(env),
		IsGroup:     true,
		DeliveredTo: []string{userID},
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			s.hub.Send(userID, s.ack(userID, msg.MessageID, "duplicate message id"))
			return nil
		}
		return fmt.Errorf("append message: %w", err)
	}

	out := &proto.Envelope{
		Kind:       proto.KindSendGroup,
		MessageID:  msg.MessageID,
		FromUserID: userID,
		Group:      group.Name,
		Text:       msg.Text,
		SentTS:     msg.SentTS,
	}

	var reached []string
	for _, member := range group.MemberIDs {
		if member == userID {
			continue
		}
		if s.hub.Send(member, out) {
			reached = append(reached, member)
			if err := s.store.MarkDelivered(ctx, msg.MessageID, member); err != nil {
				return fmt.Errorf("mark delivered: %w", err)
			}
		}
	}

	s.log.Debug().Str("from", userID).Str("group", group.Name).Int("reached", len(reached)).Msg("group message routed")
	s.hub.Send(userID, s.ack(userID, msg.MessageID,
		fmt.Sprintf("delivered to %d/%d members", len(reached), len(group.MemberIDs)-1)))
	return nil
}

func (s *Session) ack(userID, messageID, status string) *proto.Envelope {
	return &proto.Envelope{
		Kind:       proto.KindAck,
		MessageID:  messageID,
		FromUserID: proto.ServerID,
		ToUserID:   userID,
		Text:       status,
		SentTS:     time.Now().UnixMilli(),
	}
}

func envelopeFromMessage(m *store.Message) *proto.Envelope {
	env := &proto.Envelope{
		MessageID:  m.MessageID,
		FromUserID: m.FromUserID,
		Text:       m.Text,
		SentTS:     m.SentTS,
	}
	if m.IsGroup {
		env.Kind = proto.KindSendGroup
		env.Group = m.To
	} else {
		env.Kind = proto.KindSendDirect
		env.ToUserID = m.To
	}
	return env
}

func messageID(env *proto.Envelope) string {
	if env.MessageID != "" {
		return env.MessageID
	}
	return utils.NewID()
}

func sentTS(env *proto.Envelope) int64 {
	if env.SentTS != 0 {
		return env.SentTS
	}
	return time.Now().UnixMilli()
}
