package notegen_test

import (
	"context"
	"errors"
	"testing"

	"github.com/soapscribe/soapscribe/internal/notegen"
	llmmock "github.com/soapscribe/soapscribe/pkg/provider/llm/mock"
)

func TestNewRequiresProvider(t *testing.T) {
	t.Parallel()

	if _, err := notegen.New(nil); err == nil {
		t.Fatal("New: expected error for nil provider")
	}
}

func TestGeneratePassesTemplateAndTranscript(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Content: "S: headache\nO: afebrile\nA: tension headache\nP: hydration"}
	g, err := notegen.New(provider,
		notegen.WithTemperature(0.3),
		notegen.WithMaxTokens(1024),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	note, err := g.Generate(context.Background(), "custom template", "patient reports headache")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if note != provider.Content {
		t.Fatalf("Generate: note = %q", note)
	}

	call := provider.LastCall()
	if call.Req.SystemPrompt != "custom template" {
		t.Fatalf("Generate: system prompt = %q", call.Req.SystemPrompt)
	}
	if call.Req.UserContent != "patient reports headache" {
		t.Fatalf("Generate: user content = %q", call.Req.UserContent)
	}
	if call.Req.Temperature != 0.3 || call.Req.MaxTokens != 1024 {
		t.Fatalf("Generate: tuning = %+v", call.Req)
	}
}

func TestGenerateEmptyTemplateUsesDefault(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Content: "note"}
	g, err := notegen.New(provider)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := g.Generate(context.Background(), "", "transcript"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := provider.LastCall().Req.SystemPrompt; got != notegen.DefaultTemplate {
		t.Fatalf("Generate: system prompt = %q, want default template", got)
	}
}

func TestGenerateEmptyTranscriptStillSubmitted(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Content: "note"}
	g, err := notegen.New(provider)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := g.Generate(context.Background(), "tmpl", ""); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if provider.CallCount() != 1 {
		t.Fatalf("Generate: provider called %d times, want 1", provider.CallCount())
	}
}

func TestGenerateWrapsProviderError(t *testing.T) {
	t.Parallel()

	cause := errors.New("rate limited")
	provider := &llmmock.Provider{Err: cause}
	g, err := notegen.New(provider)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = g.Generate(context.Background(), "tmpl", "transcript")
	if !errors.Is(err, notegen.ErrGenerationFailed) {
		t.Fatalf("Generate: err = %v, want ErrGenerationFailed", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("Generate: err = %v, want wrapped cause", err)
	}
}
