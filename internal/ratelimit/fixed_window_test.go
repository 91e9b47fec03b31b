package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiter(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(redis.Addr(), "", 2, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow("client-1") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("client-1") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("client-1") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow("client-2") {
		t.Fatalf("other client should not share the window")
	}
}

func TestFixedWindowLimiterFailsOpen(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(redis.Addr(), "", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	redis.Close()
	if !limiter.Allow("client-1") {
		t.Fatalf("limiter should fail open on redis errors")
	}
}

func TestFixedWindowLimiterRequiresRedisAddr(t *testing.T) {
	if limiter, err := NewFixedWindowLimiter("", "", 1, time.Second); err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}
