// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to inspect the prompts the note generator builds
// and to return controlled completions without a live model.
package mock

import (
	"context"
	"sync"

	"github.com/soapscribe/soapscribe/pkg/provider/llm"
)

// Call records a single invocation of Complete.
type Call struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the request passed to Complete.
	Req llm.Request
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause Complete to return an empty Response and a nil error.
type Provider struct {
	mu sync.Mutex

	// Content is returned as the completion text.
	Content string

	// Usage is returned alongside Content.
	Usage llm.Usage

	// Err, if non-nil, is returned by Complete instead of a response.
	Err error

	// Calls records every invocation of Complete in order.
	Calls []Call
}

// Complete records the call and returns Content/Usage or Err.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	return &llm.Response{Content: p.Content, Usage: p.Usage}, nil
}

// CallCount returns the number of recorded Complete calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent recorded call, or a zero Call if none.
func (p *Provider) LastCall() Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return Call{}
	}
	return p.Calls[len(p.Calls)-1]
}

// Compile-time interface check.
var _ llm.Provider = (*Provider)(nil)
