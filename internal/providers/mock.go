package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ResponseText string
	Refusal      string
	FinishReason string
	Err          error
	// Responses, when set, are returned in order; the last one repeats.
	Responses []string
	// Errs, when set, are returned in order before falling back to Err.
	Errs []error

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	lastRequest  *ChatRequest
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText: "{}",
		FinishReason: "stop",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat records the request and returns the configured reply.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.lastRequest = req
	c.mu.Unlock()

	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Latency):
		}
	}

	idx := int(count) - 1
	if idx < len(c.Errs) && c.Errs[idx] != nil {
		return nil, c.Errs[idx]
	}
	if c.Err != nil {
		return nil, c.Err
	}

	content := c.ResponseText
	if len(c.Responses) > 0 {
		content = c.Responses[min(idx, len(c.Responses)-1)]
	}

	model := ""
	if req != nil {
		model = req.Model
	}
	return &ChatResult{
		Content:          content,
		Refusal:          c.Refusal,
		FinishReason:     c.FinishReason,
		PromptTokens:     100,
		CompletionTokens: 50,
		TotalTokens:      150,
		ExecutionTime:    time.Since(start),
		Provider:         MockClientName,
		ModelUsed:        model,
		RequestID:        fmt.Sprintf("mock-%d", count),
	}, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// LastRequest returns the most recent request, or nil.
func (c *MockClient) LastRequest() *ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequest
}

// Reset clears the request history.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.lastRequest = nil
	c.mu.Unlock()
}

var _ LLMClient = (*MockClient)(nil)
