// Package story holds the text providers behind the generation and metadata
// stages: OpenAI chat completions, Gemini and an offline static writer.
package story

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"storyteller/internal/pipeline"
)

// Provider serves both text stages.
type Provider interface {
	pipeline.TextGenerator
	pipeline.MetaExtractor
	Name() string
}

type Options struct {
	Provider      string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAIOrg     string
	GeminiAPIKey  string
	GeminiModel   string
	MetaModel     string
	HTTPClient    *http.Client
	OnFallback    func(provider, reason string)
	OnWarning     func(reason, detail string)
}

// New builds the configured provider. A remote provider without an API key
// degrades to the static writer and reports it through OnFallback.
func New(ctx context.Context, opts Options) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", openAIProviderName:
		if strings.TrimSpace(opts.OpenAIAPIKey) == "" {
			return fallback(opts, openAIProviderName), nil
		}
		return NewOpenAIClient(OpenAIOptions{
			APIKey:       opts.OpenAIAPIKey,
			Model:        opts.OpenAIModel,
			MetaModel:    opts.MetaModel,
			BaseURL:      opts.OpenAIBaseURL,
			Organization: opts.OpenAIOrg,
			HTTPClient:   opts.HTTPClient,
			OnWarning:    opts.OnWarning,
		})
	case geminiProviderName:
		if strings.TrimSpace(opts.GeminiAPIKey) == "" {
			return fallback(opts, geminiProviderName), nil
		}
		return NewGeminiClient(ctx, GeminiOptions{
			APIKey:     opts.GeminiAPIKey,
			Model:      opts.GeminiModel,
			MetaModel:  opts.MetaModel,
			HTTPClient: opts.HTTPClient,
		})
	case staticProviderName:
		return NewStaticWriter(), nil
	default:
		return nil, fmt.Errorf("story: unknown provider %q", opts.Provider)
	}
}

func fallback(opts Options, provider string) Provider {
	if opts.OnFallback != nil {
		opts.OnFallback(provider, "missing_api_key")
	}
	return NewStaticWriter()
}
