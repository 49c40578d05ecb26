package anyllm_test

import (
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/soapscribe/soapscribe/pkg/provider/llm/anyllm"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		providerName string
		model        string
		wantErr      string
	}{
		{"empty provider", "", "gpt-4o-mini", "providerName"},
		{"empty model", "openai", "", "model"},
		{"unsupported provider", "watson", "x", "unsupported"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := anyllm.New(tc.providerName, tc.model)
			if err == nil {
				t.Fatal("New: expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("New: error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestNewKnownProviders(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"openai", "ollama", "llamacpp"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p, err := anyllm.New(name, "test-model", anyllmlib.WithAPIKey("test-key"))
			if err != nil {
				t.Fatalf("New(%q): %v", name, err)
			}
			if p == nil {
				t.Fatalf("New(%q): nil provider", name)
			}
		})
	}
}
