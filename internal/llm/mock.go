package llm

import (
	"context"
	"sync"
)

// MockClient is a configurable model client for testing. Responses are
// consumed from a queue in order; when the queue is empty the last
// response repeats. CompleteFunc, when set, overrides everything else.
type MockClient struct {
	mu        sync.Mutex
	Responses []string
	Errs      []error

	// CompleteFunc lets a test compute the response from the prompt.
	CompleteFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

	// Call tracking for assertions
	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

// Enqueue appends a response to the queue. A nil err pairs the response
// with success; a non-nil err is returned instead of the response.
func (c *MockClient) Enqueue(response string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Responses = append(c.Responses, response)
	c.Errs = append(c.Errs, err)
}

func (c *MockClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, prompt)
	if c.CompleteFunc != nil {
		fn := c.CompleteFunc
		c.mu.Unlock()
		return fn(ctx, prompt, maxTokens)
	}
	if len(c.Responses) == 0 {
		c.mu.Unlock()
		return "{}", nil
	}
	resp, err := c.Responses[0], c.Errs[0]
	if len(c.Responses) > 1 {
		c.Responses = c.Responses[1:]
		c.Errs = c.Errs[1:]
	}
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return resp, nil
}

// CallCount returns how many completions were requested.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears recorded calls and queued responses.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Responses = nil
	c.Errs = nil
	c.CompleteFunc = nil
	c.Calls = nil
}
