package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soapscribe/soapscribe/pkg/capture"
	"github.com/soapscribe/soapscribe/pkg/provider/llm"
	llmmock "github.com/soapscribe/soapscribe/pkg/provider/llm/mock"
	sttmock "github.com/soapscribe/soapscribe/pkg/provider/stt/mock"
)

func testBlob() capture.Blob {
	return capture.Blob{MIME: "audio/wav", Data: []byte("RIFF")}
}

func TestSTTChainPrefersPrimary(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Text: "from primary"}
	backup := &sttmock.Provider{Text: "from backup"}

	c := NewSTTChain("primary", primary, BreakerConfig{})
	c.Add("backup", backup)

	text, err := c.Transcribe(context.Background(), testBlob())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "from primary" {
		t.Errorf("text = %q, want primary's answer", text)
	}
	if backup.CallCount() != 0 {
		t.Errorf("backup calls = %d, want 0", backup.CallCount())
	}
}

func TestSTTChainFailsOver(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errUpstream}
	backup := &sttmock.Provider{Text: "from backup"}

	c := NewSTTChain("primary", primary, BreakerConfig{})
	c.Add("backup", backup)

	text, err := c.Transcribe(context.Background(), testBlob())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "from backup" {
		t.Errorf("text = %q, want backup's answer", text)
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary calls = %d, want 1", primary.CallCount())
	}
}

func TestSTTChainExhausted(t *testing.T) {
	t.Parallel()

	c := NewSTTChain("only", &sttmock.Provider{Err: errUpstream}, BreakerConfig{})

	_, err := c.Transcribe(context.Background(), testBlob())
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Transcribe = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, errUpstream) {
		t.Fatalf("Transcribe = %v, want wrapped upstream error", err)
	}
}

func TestSTTChainSkipsOpenGateway(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errUpstream}
	backup := &sttmock.Provider{Text: "from backup"}

	c := NewSTTChain("primary", primary, BreakerConfig{Trip: 2, Cooldown: time.Hour})
	c.Add("backup", backup)

	for range 3 {
		if _, err := c.Transcribe(context.Background(), testBlob()); err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
	}

	// Two failures tripped the primary's breaker; the third round must not
	// have reached it.
	if got := primary.CallCount(); got != 2 {
		t.Errorf("primary calls = %d, want 2", got)
	}
	if got := backup.CallCount(); got != 3 {
		t.Errorf("backup calls = %d, want 3", got)
	}
}

func TestSTTChainStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	primary := &sttmock.Provider{Err: errUpstream}
	backup := &sttmock.Provider{Text: "unreachable"}

	c := NewSTTChain("primary", primary, BreakerConfig{})
	c.Add("backup", backup)

	cancel()
	if _, err := c.Transcribe(ctx, testBlob()); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Transcribe = %v, want ErrExhausted", err)
	}
	if backup.CallCount() != 0 {
		t.Errorf("backup calls = %d, want 0 after cancellation", backup.CallCount())
	}
}

func TestLLMChainFailsOver(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{Err: errUpstream}
	backup := &llmmock.Provider{Content: "Subjective:\nHeadache."}

	c := NewLLMChain("primary", primary, BreakerConfig{})
	c.Add("backup", backup)

	resp, err := c.Complete(context.Background(), llm.Request{
		SystemPrompt: "You are a clinical scribe.",
		UserContent:  "transcript",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != backup.Content {
		t.Errorf("content = %q, want backup's completion", resp.Content)
	}
	if backup.LastCall().Req.UserContent != "transcript" {
		t.Errorf("backup received content %q", backup.LastCall().Req.UserContent)
	}
}
