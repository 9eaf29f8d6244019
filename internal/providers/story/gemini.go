package story

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"storyteller/internal/domain"
	"storyteller/internal/pipeline"
)

type GeminiOptions struct {
	APIKey     string
	Model      string
	MetaModel  string
	HTTPClient *http.Client
}

// GeminiClient writes stories and extracts metadata through the Gemini API.
type GeminiClient struct {
	client    *genai.Client
	model     string
	metaModel string
}

const defaultGeminiModel = "gemini-2.5-flash"

func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	model := coalesce(opts.Model, defaultGeminiModel)
	return &GeminiClient{
		client:    client,
		model:     model,
		metaModel: coalesce(opts.MetaModel, model),
	}, nil
}

func (g *GeminiClient) Name() string { return geminiProviderName }

func (g *GeminiClient) GenerateStory(ctx context.Context, req pipeline.GenerationRequest) (*pipeline.GenerationResult, error) {
	temperature := float32(0.9)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(buildStoryPrompt(req)), &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(storySystemPrompt),
		Temperature:       &temperature,
	})
	if err != nil {
		return nil, mapGeminiError(err)
	}
	return &pipeline.GenerationResult{
		Text:  responseText(resp),
		Model: coalesce(resp.ModelVersion, g.model),
		Usage: geminiUsage(resp),
	}, nil
}

func (g *GeminiClient) ExtractMeta(ctx context.Context, text string) (*pipeline.MetaResult, error) {
	temperature := float32(0.2)
	resp, err := g.client.Models.GenerateContent(ctx, g.metaModel, genai.Text(buildMetaPrompt(text)), &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(metaSystemPrompt),
		Temperature:       &temperature,
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, mapGeminiError(err)
	}
	meta, err := parseMeta(responseText(resp))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: parse metadata: %v", domain.ErrMetadataIncomplete, err)
	}
	return &pipeline.MetaResult{
		Meta:  meta,
		Model: coalesce(resp.ModelVersion, g.metaModel),
		Usage: geminiUsage(resp),
	}, nil
}

func systemInstruction(text string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func geminiUsage(resp *genai.GenerateContentResponse) domain.TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return domain.TokenUsage{}
	}
	u := resp.UsageMetadata
	return domain.TokenUsage{
		InputTokens:  int(u.PromptTokenCount),
		OutputTokens: int(u.CandidatesTokenCount),
		TotalTokens:  int(u.TotalTokenCount),
	}
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return geminiProviderError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return geminiProviderError(*apiErrPtr)
	}
	return fmt.Errorf("gemini: request: %w", err)
}

func geminiProviderError(apiErr genai.APIError) error {
	code := apiErr.Status
	if strings.Contains(strings.ToLower(apiErr.Message), "api key not valid") {
		code = "invalid_api_key"
	}
	return domain.NewProviderError(geminiProviderName, apiErr.Code, code, apiErr.Message)
}

var (
	_ pipeline.TextGenerator = (*GeminiClient)(nil)
	_ pipeline.MetaExtractor = (*GeminiClient)(nil)
)
