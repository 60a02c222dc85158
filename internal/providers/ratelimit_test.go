package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	t.Run("consumes tokens", func(t *testing.T) {
		r := NewRateLimiter(2)
		ctx := context.Background()
		if err := r.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if err := r.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if got := r.Status().TotalConsumed; got != 2 {
			t.Errorf("TotalConsumed = %d, want 2", got)
		}
	})

	t.Run("empty bucket respects context", func(t *testing.T) {
		r := NewRateLimiter(1)
		if err := r.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Wait() error = %v, want deadline exceeded", err)
		}
	})

	t.Run("429 blocks until retry-after", func(t *testing.T) {
		r := NewRateLimiter(6000)
		r.Record429(time.Hour)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := r.Wait(ctx); err == nil {
			t.Fatal("expected Wait() to block after 429")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		if got := NewRateLimiter(0).Status().TokensLimit; got != 60 {
			t.Errorf("TokensLimit = %d, want 60", got)
		}
	})
}

func TestRateLimitedClient(t *testing.T) {
	mock := NewMockClient()
	mock.Err = &RateLimitError{Message: "slow down", RetryAfter: time.Hour}
	c := NewRateLimitedClient(mock, 6000)

	_, err := c.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if _, ok := IsRateLimitError(err); !ok {
		t.Fatalf("expected rate limit error to pass through, got %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Fatalf("expected a single request, got %d", mock.RequestCount())
	}
	if c.Name() != MockClientName {
		t.Errorf("Name() = %q", c.Name())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Chat(ctx, &ChatRequest{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected limiter to hold after 429, got %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Fatalf("expected no further requests, got %d", mock.RequestCount())
	}
}
