package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
)

func TestTokenBucketBurst(t *testing.T) {
	tb := NewTokenBucket(time.Hour, 3)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}
	if tb.Allow() {
		t.Error("request beyond burst should be denied")
	}

	tb.Reset()
	if !tb.Allow() {
		t.Error("Reset should refill the bucket")
	}
}

func TestTokenBucketWaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket(time.Hour, 1)
	tb.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tb.Wait(ctx); err == nil {
		t.Error("Wait should fail when the next token is beyond the deadline")
	}
}

func TestTokenBucketWaitRefills(t *testing.T) {
	tb := NewTokenBucket(10*time.Millisecond, 1)
	tb.Allow()

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("Wait returned before the refill interval")
	}
}

func TestFromConfig(t *testing.T) {
	tb := FromConfig(config.RateLimitConfig{RequestsPerMinute: 120, BurstSize: 2})
	if tb.every != 500*time.Millisecond {
		t.Errorf("expected 500ms interval, got %v", tb.every)
	}
	if tb.burst != 2 {
		t.Errorf("expected burst 2, got %d", tb.burst)
	}
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatal("Unlimited should always allow")
		}
	}
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Unlimited.Wait: %v", err)
	}
}
