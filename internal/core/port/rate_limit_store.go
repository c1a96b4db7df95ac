package port

import (
	"context"
	"time"
)

// AttemptWindow summarises the attempts still inside a sliding window.
type AttemptWindow struct {
	Count  int
	Oldest time.Time
}

// RateLimitStore persists request attempts for sliding-window throttling of the public endpoints.
type RateLimitStore interface {
	// Window drops attempts older than window before now and reports the rest.
	Window(ctx context.Context, key string, window time.Duration, now time.Time) (AttemptWindow, error)
	// Record adds one attempt at the supplied moment.
	Record(ctx context.Context, key string, at time.Time) error
}
