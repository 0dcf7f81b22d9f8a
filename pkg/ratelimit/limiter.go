package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	"golang.org/x/time/rate"
)

// Limiter gates outgoing requests to the platform
type Limiter interface {
	// Allow reports whether a request may proceed right now, consuming a token if so
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the bucket
	Reset()
}

// TokenBucket is a Limiter backed by golang.org/x/time/rate
type TokenBucket struct {
	every time.Duration
	burst int

	mu  sync.Mutex
	lim *rate.Limiter
}

// NewTokenBucket allows one request per interval with bursts of up to burst requests
func NewTokenBucket(interval time.Duration, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		every: interval,
		burst: burst,
		lim:   rate.NewLimiter(rate.Every(interval), burst),
	}
}

// FromConfig builds a TokenBucket from requests-per-minute settings
func FromConfig(rc config.RateLimitConfig) *TokenBucket {
	rpm := rc.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	return NewTokenBucket(time.Minute/time.Duration(rpm), rc.BurstSize)
}

func (tb *TokenBucket) limiter() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lim
}

func (tb *TokenBucket) Allow() bool {
	return tb.limiter().Allow()
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter().Wait(ctx)
}

func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.lim = rate.NewLimiter(rate.Every(tb.every), tb.burst)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
