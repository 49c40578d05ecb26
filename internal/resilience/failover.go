package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soapscribe/soapscribe/pkg/capture"
	"github.com/soapscribe/soapscribe/pkg/provider/llm"
	"github.com/soapscribe/soapscribe/pkg/provider/stt"
)

// ErrExhausted is returned when every gateway in a [Chain] failed or was
// rejected by its breaker.
var ErrExhausted = errors.New("resilience: all gateways failed")

// link pairs one gateway with its breaker.
type link[T any] struct {
	name    string
	gateway T
	breaker *Breaker
}

// Chain holds an ordered list of interchangeable gateways, each behind its
// own [Breaker]. The first entry is the preferred gateway; later entries are
// tried only when earlier ones fail or are open.
type Chain[T any] struct {
	links []link[T]
	cfg   BreakerConfig
}

// NewChain creates a [Chain] whose per-gateway breakers share cfg (the Name
// field is overridden per gateway).
func NewChain[T any](cfg BreakerConfig) *Chain[T] {
	return &Chain[T]{cfg: cfg}
}

// Add appends a gateway to the chain.
func (c *Chain[T]) Add(name string, gateway T) {
	cfg := c.cfg
	cfg.Name = name
	c.links = append(c.links, link[T]{name: name, gateway: gateway, breaker: NewBreaker(cfg)})
}

// Len returns the number of gateways in the chain.
func (c *Chain[T]) Len() int { return len(c.links) }

// try runs fn against each gateway in order until one succeeds. It is a
// package function because methods cannot introduce type parameters.
func try[T, R any](ctx context.Context, c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.links {
		l := &c.links[i]
		var out R
		err := l.breaker.Do(func() error {
			var callErr error
			out, callErr = fn(l.gateway)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			// The caller is gone; later gateways would fail the same way.
			return zero, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
		}
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping open gateway", "gateway", l.name)
		} else {
			slog.Warn("gateway failed, trying next", "gateway", l.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

// STTChain is an [stt.Provider] that fails over across several transcription
// gateways.
type STTChain struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTChain)(nil)

// NewSTTChain creates a chain with primary as the preferred gateway.
func NewSTTChain(primaryName string, primary stt.Provider, cfg BreakerConfig) *STTChain {
	c := &STTChain{chain: NewChain[stt.Provider](cfg)}
	c.chain.Add(primaryName, primary)
	return c
}

// Add appends a fallback transcription gateway.
func (c *STTChain) Add(name string, p stt.Provider) {
	c.chain.Add(name, p)
}

// Transcribe submits the blob to the first healthy gateway.
func (c *STTChain) Transcribe(ctx context.Context, blob capture.Blob) (string, error) {
	return try(ctx, c.chain, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, blob)
	})
}

// LLMChain is an [llm.Provider] that fails over across several completion
// gateways.
type LLMChain struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMChain)(nil)

// NewLLMChain creates a chain with primary as the preferred gateway.
func NewLLMChain(primaryName string, primary llm.Provider, cfg BreakerConfig) *LLMChain {
	c := &LLMChain{chain: NewChain[llm.Provider](cfg)}
	c.chain.Add(primaryName, primary)
	return c
}

// Add appends a fallback completion gateway.
func (c *LLMChain) Add(name string, p llm.Provider) {
	c.chain.Add(name, p)
}

// Complete submits the request to the first healthy gateway.
func (c *LLMChain) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return try(ctx, c.chain, func(p llm.Provider) (*llm.Response, error) {
		return p.Complete(ctx, req)
	})
}
