package story

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyteller/internal/domain"
	"storyteller/internal/pipeline"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	MetaModel    string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	OnWarning    func(reason, detail string)
}

// OpenAIClient writes stories and extracts their metadata through the chat
// completions endpoint.
type OpenAIClient struct {
	apiKey       string
	model        string
	metaModel    string
	baseURL      string
	organization string
	client       *http.Client
}

const openAIDefaultTimeout = 90 * time.Second

const defaultOpenAIModel = "gpt-4o-mini"

var openAIModelCanonical = map[string]string{
	"gpt-4o":       "gpt-4o",
	"gpt-4o-mini":  "gpt-4o-mini",
	"gpt-4.1":      "gpt-4.1",
	"gpt-4.1-mini": "gpt-4.1-mini",
}

var openAIModelAliases = map[string]string{
	"gpt4o":                  "gpt-4o",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt41":                  "gpt-4.1",
	"gpt-41-mini":            "gpt-4.1-mini",
	"gpt4.1-mini":            "gpt-4.1-mini",
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIErrorEnvelope struct {
	Error struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

type openAICompletion struct {
	text       string
	model      string
	usage      domain.TokenUsage
	requestID  string
	responseID string
}

func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := resolveOpenAIModel(opts.Model, opts.OnWarning)
	metaModel := model
	if strings.TrimSpace(opts.MetaModel) != "" {
		metaModel = resolveOpenAIModel(opts.MetaModel, opts.OnWarning)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIClient{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		metaModel:    metaModel,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
	}, nil
}

func (o *OpenAIClient) Name() string { return openAIProviderName }

func (o *OpenAIClient) GenerateStory(ctx context.Context, req pipeline.GenerationRequest) (*pipeline.GenerationResult, error) {
	out, err := o.complete(ctx, openAIChatRequest{
		Model:       o.model,
		Temperature: 0.9,
		Messages: []openAIMessage{
			{Role: "system", Content: storySystemPrompt},
			{Role: "user", Content: buildStoryPrompt(req)},
		},
	})
	if err != nil {
		return nil, err
	}
	return &pipeline.GenerationResult{
		Text:       out.text,
		Model:      out.model,
		Usage:      out.usage,
		RequestID:  out.requestID,
		ResponseID: out.responseID,
	}, nil
}

func (o *OpenAIClient) ExtractMeta(ctx context.Context, text string) (*pipeline.MetaResult, error) {
	out, err := o.complete(ctx, openAIChatRequest{
		Model:          o.metaModel,
		Temperature:    0.2,
		ResponseFormat: &openAIFormat{Type: "json_object"},
		Messages: []openAIMessage{
			{Role: "system", Content: metaSystemPrompt},
			{Role: "user", Content: buildMetaPrompt(text)},
		},
	})
	if err != nil {
		return nil, err
	}
	meta, err := parseMeta(out.text)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: parse metadata: %v", domain.ErrMetadataIncomplete, err)
	}
	return &pipeline.MetaResult{
		Meta:       meta,
		Model:      out.model,
		Usage:      out.usage,
		RequestID:  out.requestID,
		ResponseID: out.responseID,
	}, nil
}

func (o *OpenAIClient) complete(ctx context.Context, payload openAIChatRequest) (*openAICompletion, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	requestID := resp.Header.Get("x-request-id")
	if resp.StatusCode >= 300 {
		return nil, decodeOpenAIError(resp)
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w: no choices", domain.ErrGenerationFailed)
	}
	return &openAICompletion{
		text:  strings.TrimSpace(out.Choices[0].Message.Content),
		model: coalesce(out.Model, payload.Model),
		usage: domain.TokenUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		requestID:  requestID,
		responseID: out.ID,
	}, nil
}

func decodeOpenAIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env openAIErrorEnvelope
	message := http.StatusText(resp.StatusCode)
	code := ""
	if err := json.Unmarshal(raw, &env); err == nil {
		message = coalesce(env.Error.Message, message)
		code = coalesce(rawCode(env.Error.Code), env.Error.Type)
	}
	return domain.NewProviderError(openAIProviderName, resp.StatusCode, code, message)
}

// rawCode accepts the string or numeric code shapes the API has used.
func rawCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func resolveOpenAIModel(name string, onWarning func(reason, detail string)) string {
	normalized, reason := normalizeOpenAIModel(name)
	if reason != "" && onWarning != nil {
		onWarning("model_"+reason, fmt.Sprintf("requested=%s resolved=%s", coalesce(name, defaultOpenAIModel), normalized))
	}
	return normalized
}

func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultOpenAIModel, "defaulted"
}

var (
	_ pipeline.TextGenerator = (*OpenAIClient)(nil)
	_ pipeline.MetaExtractor = (*OpenAIClient)(nil)
)
