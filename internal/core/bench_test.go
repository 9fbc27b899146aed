package core

import (
	"testing"

	"chatbroker/internal/proto"
)

func BenchmarkHubSend(b *testing.B) {
	hub := NewHub(testLogger())
	q := hub.Register("u1", nil)

	// Drain to avoid backpressure on the delivery queue.
	go func() {
		for range q {
		}
	}()

	env := &proto.Envelope{Kind: proto.KindSendDirect, FromUserID: "u2", ToUserID: "u1", Text: "bench"}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		hub.Send("u1", env)
	}
}

func BenchmarkHubRegisterRemove(b *testing.B) {
	hub := NewHub(testLogger())

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		hub.Register("u1", nil)
		hub.Remove("u1")
	}
}
