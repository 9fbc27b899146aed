package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"chatbroker/internal/config"
	"chatbroker/internal/core"
	"chatbroker/internal/proto"
	"chatbroker/internal/service/chat"
	"chatbroker/internal/store/jsonl"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := jsonl.New(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	hub := core.NewHub(&logger)
	chatService := chat.New(st, &logger)

	server := NewServer(hub, chatService, st, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any, out any) int {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := ts.Client().Post(ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()

	resp, err := ts.Client().Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}

func registerUser(t *testing.T, ts *httptest.Server, name string) string {
	t.Helper()

	var user UserResponse
	if status := postJSON(t, ts, "/api/users", CreateUserRequest{DisplayName: name}, &user); status != http.StatusCreated {
		t.Fatalf("register %s: status %d", name, status)
	}
	return user.ID
}

// dialSession opens a websocket, performs the handshake for userID and
// waits until the hub reports them online.
func dialSession(t *testing.T, ctx context.Context, ts *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })

	if err := wsjson.Write(ctx, conn, proto.Envelope{Kind: proto.KindHandshake, FromUserID: userID}); err != nil {
		t.Fatalf("send handshake: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var stats StatsResponse
		getJSON(t, ts, "/api/stats", &stats)
		for _, id := range stats.OnlineUsers {
			if id == userID {
				return conn
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s never came online", userID)
	return nil
}

func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Envelope {
	t.Helper()

	var env proto.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

// Full group scenario: register alice and bob, create #team, bob joins,
// alice posts while bob is connected. Bob's stream yields the group
// envelope and alice's yields the delivery ack.
func TestGroupMessageEndToEnd(t *testing.T) {
	ts := startTestServer(t)

	idA := registerUser(t, ts, "alice")
	idB := registerUser(t, ts, "bob")

	if status := postJSON(t, ts, "/api/groups", CreateGroupRequest{Name: "#team", CreatorID: idA}, nil); status != http.StatusCreated {
		t.Fatalf("create group: status %d", status)
	}
	var joined JoinGroupResponse
	if status := postJSON(t, ts, "/api/groups/join", JoinGroupRequest{Name: "#team", UserID: idB}, &joined); status != http.StatusOK {
		t.Fatalf("join group: status %d", status)
	}
	if !joined.Added {
		t.Fatal("expected join to add bob")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connB := dialSession(t, ctx, ts, idB)
	connA := dialSession(t, ctx, ts, idA)

	if err := wsjson.Write(ctx, connA, proto.Envelope{
		Kind:      proto.KindSendGroup,
		MessageID: "g1",
		Group:     "#team",
		Text:      "hi",
	}); err != nil {
		t.Fatalf("send group message: %v", err)
	}

	got := readEnvelope(t, ctx, connB)
	if got.Kind != proto.KindSendGroup || got.Text != "hi" || got.Group != "#team" {
		t.Fatalf("unexpected envelope at bob: %+v", got)
	}

	ack := readEnvelope(t, ctx, connA)
	if ack.Kind != proto.KindAck || ack.Text != "delivered to 1/1 members" {
		t.Fatalf("unexpected ack at alice: %+v", ack)
	}

	// The message lands in group history for both.
	var history []MessageResponse
	if status := getJSON(t, ts, fmt.Sprintf("/api/users/%s/history?chat_id=%%23team&is_group=true", idB), &history); status != http.StatusOK {
		t.Fatalf("history: status %d", status)
	}
	if len(history) != 1 || history[0].Text != "hi" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestDirectMessageAcrossReconnect(t *testing.T) {
	ts := startTestServer(t)

	idA := registerUser(t, ts, "alice")
	idB := registerUser(t, ts, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Bob is offline; alice sends and gets a queued ack.
	connA := dialSession(t, ctx, ts, idA)
	if err := wsjson.Write(ctx, connA, proto.Envelope{
		Kind:      proto.KindSendDirect,
		MessageID: "m1",
		ToUserID:  idB,
		Text:      "see you",
	}); err != nil {
		t.Fatalf("send direct message: %v", err)
	}
	if ack := readEnvelope(t, ctx, connA); ack.Kind != proto.KindAck || ack.Text != "queued" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	// Bob connects and drains the backlog.
	connB := dialSession(t, ctx, ts, idB)
	got := readEnvelope(t, ctx, connB)
	if got.Kind != proto.KindSendDirect || got.MessageID != "m1" || got.Text != "see you" {
		t.Fatalf("unexpected backlog envelope: %+v", got)
	}
}

func TestWSRejectsBadHandshake(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// First envelope is not a handshake.
	if err := wsjson.Write(ctx, conn, proto.Envelope{Kind: proto.KindSendDirect, ToUserID: "x", Text: "hi"}); err != nil {
		t.Fatalf("send envelope: %v", err)
	}

	var env proto.Envelope
	readErr := wsjson.Read(ctx, conn, &env)
	if readErr == nil {
		t.Fatalf("expected connection to close, got envelope %+v", env)
	}
	if websocket.CloseStatus(readErr) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", readErr)
	}
}
