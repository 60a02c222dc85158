package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled continuously over a one minute
// window.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	tokens            float64
	lastUpdate        time.Time
	blockedUntil      time.Time

	totalConsumed int64
	totalWaited   time.Duration
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
}

// NewRateLimiter creates a limiter starting with a full bucket.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		tokens:            float64(requestsPerMinute),
		lastUpdate:        time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		now := time.Now()
		if r.tokens >= 1.0 && !now.Before(r.blockedUntil) {
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		}

		waitTime := r.blockedUntil.Sub(now)
		if r.tokens < 1.0 {
			refillRate := float64(r.requestsPerMinute) / 60.0
			if w := time.Duration((1.0 - r.tokens) / refillRate * float64(time.Second)); w > waitTime {
				waitTime = w
			}
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			r.mu.Lock()
			r.totalWaited += waitTime
			r.mu.Unlock()
		}
	}
}

// Record429 drains the bucket and, when the server supplied a Retry-After,
// holds all callers until it has elapsed.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens = 0
	if retryAfter > 0 {
		if until := time.Now().Add(retryAfter); until.After(r.blockedUntil) {
			r.blockedUntil = until
		}
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	return RateLimiterStatus{
		TokensAvailable: int(r.tokens),
		TokensLimit:     r.requestsPerMinute,
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
	}
}

// refill must be called with the lock held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	r.tokens += elapsed * float64(r.requestsPerMinute) / 60.0
	if r.tokens > float64(r.requestsPerMinute) {
		r.tokens = float64(r.requestsPerMinute)
	}
}

// RateLimitedClient throttles an LLMClient with a RateLimiter. It does not
// retry; a 429 from the wrapped client is returned to the caller after the
// limiter has been told about it.
type RateLimitedClient struct {
	LLMClient
	limiter *RateLimiter
}

// NewRateLimitedClient wraps client with a limiter of requestsPerMinute.
func NewRateLimitedClient(client LLMClient, requestsPerMinute int) *RateLimitedClient {
	return &RateLimitedClient{
		LLMClient: client,
		limiter:   NewRateLimiter(requestsPerMinute),
	}
}

// Chat waits for a token, then delegates.
func (c *RateLimitedClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.LLMClient.Chat(ctx, req)
	if rle, ok := IsRateLimitError(err); ok {
		c.limiter.Record429(rle.RetryAfter)
	}
	return result, err
}

// Limiter exposes the underlying limiter.
func (c *RateLimitedClient) Limiter() *RateLimiter {
	return c.limiter
}

// Unwrap returns the wrapped client.
func (c *RateLimitedClient) Unwrap() LLMClient {
	return c.LLMClient
}
