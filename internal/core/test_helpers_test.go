package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatbroker/internal/proto"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// mustEnvelope reads one envelope from a queue or fails the test.
func mustEnvelope(t *testing.T, q <-chan *proto.Envelope) *proto.Envelope {
	t.Helper()

	select {
	case env := <-q:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return nil
	}
}

// pipeStream is an in-memory core.Stream for session tests. The test
// plays the client: it writes inbound envelopes to toServer and reads
// the session's output from fromServer.
type pipeStream struct {
	toServer   chan *proto.Envelope
	fromServer chan *proto.Envelope
}

func newPipeStream() *pipeStream {
	return &pipeStream{
		toServer:   make(chan *proto.Envelope, 16),
		fromServer: make(chan *proto.Envelope, 64),
	}
}

func (p *pipeStream) Recv(ctx context.Context) (*proto.Envelope, error) {
	select {
	case env := <-p.toServer:
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeStream) Send(ctx context.Context, env *proto.Envelope) error {
	select {
	case p.fromServer <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// client drives one session end from a test.
type client struct {
	stream *pipeStream
	cancel context.CancelFunc
	done   chan error
}

// connect starts a session for userID (handshake included) and waits
// until the hub registers them so sends from other clients cannot race
// the registration.
func connect(t *testing.T, s *Session, hub *Hub, userID string) *client {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		stream: newPipeStream(),
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() {
		c.done <- s.Run(ctx, c.stream)
	}()

	c.stream.toServer <- &proto.Envelope{Kind: proto.KindHandshake, FromUserID: userID}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, id := range hub.Online() {
			if id == userID {
				return c
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("user %s never came online", userID)
	return nil
}

func (c *client) send(env *proto.Envelope) {
	c.stream.toServer <- env
}

func (c *client) recv(t *testing.T) *proto.Envelope {
	t.Helper()
	return mustEnvelope(t, c.stream.fromServer)
}

// close tears the session down and waits for Run to return.
func (c *client) close(t *testing.T) error {
	t.Helper()

	c.cancel()
	select {
	case err := <-c.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}
