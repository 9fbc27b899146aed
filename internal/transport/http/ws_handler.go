package http

import (
	"context"
	"errors"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"chatbroker/internal/core"
	"chatbroker/internal/proto"
	"chatbroker/internal/store"
)

// WSHandler upgrades HTTP connections and runs the session protocol
// over them.
type WSHandler struct {
	hub     *core.Hub
	store   store.Store
	limiter *rateLimiter
	log     *zerolog.Logger
}

// NewWSHandler builds the /ws endpoint. handshakeLimit caps session
// opens per minute; zero disables the cap.
func NewWSHandler(hub *core.Hub, st store.Store, handshakeLimit int, logger *zerolog.Logger) stdhttp.Handler {
	h := &WSHandler{
		hub:     hub,
		store:   st,
		limiter: newRateLimiter(handshakeLimit),
		log:     logger,
	}
	h.limiter.startReset()
	return h
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if !h.limiter.allow() {
		stdhttp.Error(w, "too many connections", stdhttp.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	session := core.NewSession(h.hub, h.store, h.log)
	err = session.Run(r.Context(), &wsStream{conn: conn})

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case err == nil:
	case errors.Is(err, core.ErrUnauthenticated):
		status = websocket.StatusPolicyViolation
		reason = "unauthenticated"
		h.log.Warn().Msg("ws session rejected: bad handshake")
	default:
		if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
			break
		}
		status = websocket.StatusInternalError
		reason = "internal error"
		h.log.Warn().Err(err).Msg("ws session closed with error")
	}

	conn.Close(status, reason)
}

// wsStream adapts a websocket connection to the core.Stream the session
// engine consumes.
type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Recv(ctx context.Context) (*proto.Envelope, error) {
	var env proto.Envelope
	if err := wsjson.Read(ctx, s.conn, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *wsStream) Send(ctx context.Context, env *proto.Envelope) error {
	return wsjson.Write(ctx, s.conn, env)
}
