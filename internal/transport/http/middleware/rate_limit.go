package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/logger"
)

const (
	rateLimitProblemType  = "/problems/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the key a limit is scoped to, such as the client IP.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule is a sliding window limit of Limit attempts per Window.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

func (r RateLimitRule) enabled() bool {
	return r.Identifier != nil && r.Limit > 0 && r.Window > 0
}

// ProblemDetails is the RFC 9457 body returned with 429 responses.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RateLimiter enforces sliding window rules backed by a RateLimitStore.
// Store failures let the request through.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

type decision struct {
	allowed    bool
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

func NewRateLimiter(store port.RateLimitStore, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: log, now: time.Now}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier scopes a rule to the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// Limit returns a middleware enforcing rule. A nil limiter, a nil store or an incomplete
// rule yields a pass-through handler.
func (rl *RateLimiter) Limit(rule RateLimitRule) gin.HandlerFunc {
	if rl == nil || rl.store == nil || !rule.enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	if rule.Name == "" {
		rule.Name = "default"
	}

	return func(c *gin.Context) {
		identifier, ok := rule.Identifier(c)
		if !ok {
			c.Next()
			return
		}

		key := rule.Name + ":" + identifier
		d, err := rl.check(c.Request.Context(), key, rule, rl.now())
		if err != nil {
			rl.logger.Warn("rate limit check failed",
				zap.String("rule", rule.Name),
				zap.String("client_ip", logger.MaskIP(identifier)),
				zap.Error(err),
			)
			c.Next()
			return
		}

		writeRateLimitHeaders(c, rule.Limit, d)
		if !d.allowed {
			rl.logger.Info("rate limit exceeded",
				zap.String("rule", rule.Name),
				zap.String("client_ip", logger.MaskIP(identifier)),
			)
			rejectRateLimited(c, d)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) check(ctx context.Context, key string, rule RateLimitRule, now time.Time) (decision, error) {
	w, err := rl.store.Window(ctx, key, rule.Window, now)
	if err != nil {
		return decision{}, fmt.Errorf("read window: %w", err)
	}

	d := decision{allowed: true, reset: now.Add(rule.Window)}
	if w.Count > 0 && !w.Oldest.IsZero() {
		d.reset = w.Oldest.Add(rule.Window)
	}
	d.retryAfter = max(d.reset.Sub(now), 0)

	if w.Count >= rule.Limit {
		d.allowed = false
		return d, nil
	}

	// Rejected requests are not recorded, so a blocked client regains access when the window slides.
	if err := rl.store.Record(ctx, key, now); err != nil {
		return decision{}, fmt.Errorf("record attempt: %w", err)
	}
	d.remaining = max(rule.Limit-w.Count-1, 0)
	return d, nil
}

func retrySeconds(d decision) int {
	return max(int(math.Ceil(d.retryAfter.Seconds())), 0)
}

func writeRateLimitHeaders(c *gin.Context, limit int, d decision) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.reset.Unix(), 10))
	if !d.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(d)))
	}
}

func rejectRateLimited(c *gin.Context, d decision) {
	seconds := retrySeconds(d)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}
