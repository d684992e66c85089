package microsoft

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ServiceType identifies a Teams backend for rate limiting purposes.
type ServiceType string

const (
	// ServiceTeams is the organisational external search API.
	ServiceTeams ServiceType = "teams"
	// ServiceLive is the personal account search API.
	ServiceLive ServiceType = "live"
	// ServicePresence is the presence API.
	ServicePresence ServiceType = "presence"
)

// DefaultBackoff is the pause after a 429 without a usable Retry-After.
const DefaultBackoff = time.Minute

// Limits is the request pacing of one backend.
type Limits struct {
	PerSecond float64
	// Burst defaults to 1, a strict pace.
	Burst int
}

// The defaults sit above the default worker count so the dispatcher delay,
// not the limiter, paces a run.
var defaultLimits = map[ServiceType]Limits{
	ServiceTeams:    {PerSecond: 10, Burst: 10},
	ServiceLive:     {PerSecond: 10, Burst: 10},
	ServicePresence: {PerSecond: 20, Burst: 20},
}

// DefaultLimits returns the built-in pacing of service.
func DefaultLimits(service ServiceType) Limits {
	if l, ok := defaultLimits[service]; ok {
		return l
	}
	return Limits{PerSecond: 10, Burst: 10}
}

// RateLimiter paces requests to one backend with a token bucket and pauses
// the backend entirely after a 429.
type RateLimiter struct {
	service ServiceType
	bucket  *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewRateLimiter creates a limiter with the built-in limits of service.
func NewRateLimiter(service ServiceType) *RateLimiter {
	return NewRateLimiterWithLimits(service, DefaultLimits(service))
}

// NewRateLimiterWithLimits creates a limiter for service with custom pacing.
// A non-positive rate falls back to the built-in limits.
func NewRateLimiterWithLimits(service ServiceType, l Limits) *RateLimiter {
	if l.PerSecond <= 0 {
		l = DefaultLimits(service)
	}
	if l.Burst < 1 {
		l.Burst = 1
	}
	return &RateLimiter{
		service: service,
		bucket:  rate.NewLimiter(rate.Limit(l.PerSecond), l.Burst),
	}
}

// Wait blocks until the backend is no longer paused and a token is available.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if d := time.Until(r.resumeAt()); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return r.bucket.Wait(ctx)
}

func (r *RateLimiter) resumeAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pausedUntil
}

// pause stops requests for d, or DefaultBackoff when d is not positive.
// An earlier pause is never shortened.
func (r *RateLimiter) pause(d time.Duration) time.Duration {
	if d <= 0 {
		d = DefaultBackoff
	}
	until := time.Now().Add(d)

	r.mu.Lock()
	defer r.mu.Unlock()
	if until.After(r.pausedUntil) {
		r.pausedUntil = until
	}
	return d
}

// observe pauses the backend for a 429 as instructed by its Retry-After header.
// It returns the pause applied, zero for any other status.
func (r *RateLimiter) observe(status int, header http.Header) time.Duration {
	if !IsRateLimited(status) {
		return 0
	}
	secs := ParseRetryAfter(header.Get("Retry-After"), time.Now())
	return r.pause(time.Duration(secs) * time.Second)
}

// ParseRetryAfter reads a Retry-After value given either as delay seconds or
// as an HTTP date. Returns 0 when the value is missing or unusable.
func ParseRetryAfter(value string, now time.Time) int {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return secs
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return int(d.Round(time.Second) / time.Second)
		}
	}
	return 0
}
