package http

import (
	"testing"
	"time"
)

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0)
	rl.startReset()

	for i := 0; i < 100; i++ {
		if !rl.allow() {
			t.Fatal("disabled limiter refused a connection")
		}
	}
}

func TestRateLimiterEnforcesAndResetsWindow(t *testing.T) {
	rl := newRateLimiter(2)
	rl.reset.Stop()
	rl.reset = time.NewTicker(20 * time.Millisecond)
	rl.startReset()

	if !rl.allow() || !rl.allow() {
		t.Fatal("limiter refused a connection within the limit")
	}
	if rl.allow() {
		t.Fatal("limiter allowed a connection over the limit")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rl.allow() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("window counter never reset")
}
