package app

import (
	"errors"
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/soapscribe/soapscribe/internal/config"
	"github.com/soapscribe/soapscribe/internal/resilience"
	"github.com/soapscribe/soapscribe/pkg/provider/llm"
	llmanyllm "github.com/soapscribe/soapscribe/pkg/provider/llm/anyllm"
	llmopenai "github.com/soapscribe/soapscribe/pkg/provider/llm/openai"
	"github.com/soapscribe/soapscribe/pkg/provider/stt"
	sttopenai "github.com/soapscribe/soapscribe/pkg/provider/stt/openai"
	sttwhisper "github.com/soapscribe/soapscribe/pkg/provider/stt/whisper"
)

// Providers holds one gateway per provider slot, populated by main via the
// config registry.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
}

// RegisterBuiltins registers the built-in provider factories:
//
//	stt: "openai" (audio API), "whisper" (local whisper-server)
//	llm: "openai" (chat completions), "anyllm" (universal multi-backend)
func RegisterBuiltins(r *config.Registry) {
	r.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if e.Model != "" {
			opts = append(opts, sttopenai.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(e.BaseURL))
		}
		return sttopenai.New(e.APIKey, opts...)
	})

	r.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []sttwhisper.Option
		if e.Model != "" {
			opts = append(opts, sttwhisper.WithModel(e.Model))
		}
		if lang := e.StringOption("language"); lang != "" {
			opts = append(opts, sttwhisper.WithLanguage(lang))
		}
		return sttwhisper.New(e.BaseURL, opts...)
	})

	r.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if e.Model != "" {
			opts = append(opts, llmopenai.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(e.BaseURL))
		}
		return llmopenai.New(e.APIKey, opts...)
	})

	r.RegisterLLM("anyllm", func(e config.ProviderEntry) (llm.Provider, error) {
		backend := e.StringOption("provider")
		if backend == "" {
			return nil, errors.New(`app: llm provider "anyllm" requires options.provider`)
		}
		var opts []anyllmlib.Option
		if e.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
		}
		if e.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
		}
		return llmanyllm.New(backend, e.Model, opts...)
	})
}

// BuildProviders instantiates the configured STT and LLM gateways through the
// registry. When an entry declares fallbacks, the gateway is wrapped in a
// failover chain with per-provider circuit breakers.
func BuildProviders(r *config.Registry, cfg *config.Config) (*Providers, error) {
	sttp, err := buildSTT(r, cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("app: create stt provider: %w", err)
	}
	llmp, err := buildLLM(r, cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: create llm provider: %w", err)
	}
	return &Providers{STT: sttp, LLM: llmp}, nil
}

func buildSTT(r *config.Registry, e config.ProviderEntry) (stt.Provider, error) {
	primary, err := r.CreateSTT(e)
	if err != nil {
		return nil, err
	}
	if len(e.Fallbacks) == 0 {
		return primary, nil
	}
	chain := resilience.NewSTTChain(e.Name, primary, resilience.BreakerConfig{})
	for i, fb := range e.Fallbacks {
		p, err := r.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback %d (%s): %w", i, fb.Name, err)
		}
		chain.Add(fb.Name, p)
	}
	return chain, nil
}

func buildLLM(r *config.Registry, e config.ProviderEntry) (llm.Provider, error) {
	primary, err := r.CreateLLM(e)
	if err != nil {
		return nil, err
	}
	if len(e.Fallbacks) == 0 {
		return primary, nil
	}
	chain := resilience.NewLLMChain(e.Name, primary, resilience.BreakerConfig{})
	for i, fb := range e.Fallbacks {
		p, err := r.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback %d (%s): %w", i, fb.Name, err)
		}
		chain.Add(fb.Name, p)
	}
	return chain, nil
}
