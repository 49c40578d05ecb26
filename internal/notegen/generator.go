// Package notegen turns an encounter transcript into a structured SOAP note
// using an LLM provider.
//
// The generator is deliberately thin: the clinician-editable template goes in
// as the system prompt, the transcript as the user message, and the model's
// reply comes back verbatim. All prompt engineering lives in the template so
// clinicians can reshape the output without a deploy.
package notegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soapscribe/soapscribe/pkg/provider/llm"
)

// ErrGenerationFailed wraps any provider failure so that callers can treat
// all generation errors uniformly while errors.Is/As still reach the cause.
var ErrGenerationFailed = errors.New("notegen: generation failed")

// Option is a functional option for configuring a Generator.
type Option func(*Generator)

// WithTemperature sets the sampling temperature passed to the provider.
// Zero (the default) lets the provider decide.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithMaxTokens caps the completion length. Zero (the default) lets the
// provider decide.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		g.maxTokens = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.log = logger
	}
}

// Generator produces SOAP notes from transcripts. Safe for concurrent use.
type Generator struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	log         *slog.Logger
}

// New creates a Generator over provider. provider must be non-nil.
func New(provider llm.Provider, opts ...Option) (*Generator, error) {
	if provider == nil {
		return nil, errors.New("notegen: provider must not be nil")
	}
	g := &Generator{
		provider: provider,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Generate submits template and transcript to the model and returns the note
// text. An empty template falls back to [DefaultTemplate]. An empty
// transcript is still submitted; whether that is allowed is the caller's
// policy, not the generator's.
//
// Any provider error is wrapped in [ErrGenerationFailed].
func (g *Generator) Generate(ctx context.Context, template, transcriptText string) (string, error) {
	if template == "" {
		template = DefaultTemplate
	}

	start := time.Now()
	resp, err := g.provider.Complete(ctx, llm.Request{
		SystemPrompt: template,
		UserContent:  transcriptText,
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	g.log.Debug("note generated",
		"duration", time.Since(start),
		"transcript_chars", len(transcriptText),
		"note_chars", len(resp.Content),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Content, nil
}
