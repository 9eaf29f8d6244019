package story

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyteller/internal/domain"
	"storyteller/internal/pipeline"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string, headers map[string]string) *http.Response {
	resp := &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
	resp.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func newTestOpenAI(t *testing.T, rt roundTripFunc) *OpenAIClient {
	t.Helper()
	client, err := NewOpenAIClient(OpenAIOptions{
		APIKey:     "sk-test",
		Model:      "gpt-4o-mini",
		MetaModel:  "gpt-4.1-mini",
		HTTPClient: &http.Client{Transport: rt},
	})
	require.NoError(t, err)
	return client
}

func TestOpenAIGenerateStory(t *testing.T) {
	var sent openAIChatRequest
	client := newTestOpenAI(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "https://api.openai.com/v1/chat/completions", r.URL.String())
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		return jsonResponse(http.StatusOK, `{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini-2024-07-18",
			"choices": [{"message": {"content": "Erdő titka\n\nEgyszer volt..."}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 450, "total_tokens": 570}
		}`, map[string]string{"x-request-id": "req-42"}), nil
	})

	res, err := client.GenerateStory(context.Background(), pipeline.GenerationRequest{
		ChildAge: 5,
		Mood:     domain.MoodCalm,
		Length:   domain.LengthShort,
		Theme:    "erdő",
		Avoid:    []domain.AvoidPair{{Setting: "tenger", Conflict: "vihar"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Erdő titka\n\nEgyszer volt...", res.Text)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", res.Model)
	assert.Equal(t, "req-42", res.RequestID)
	assert.Equal(t, "chatcmpl-1", res.ResponseID)
	assert.Equal(t, domain.TokenUsage{PromptTokens: 120, CompletionTokens: 450, TotalTokens: 570}, res.Usage)

	assert.Equal(t, "gpt-4o-mini", sent.Model)
	assert.Nil(t, sent.ResponseFormat)
	require.Len(t, sent.Messages, 2)
	assert.Contains(t, sent.Messages[1].Content, `[{"setting":"tenger","conflict":"vihar"}]`)
}

func TestOpenAIExtractMetaUsesJSONMode(t *testing.T) {
	var sent openAIChatRequest
	client := newTestOpenAI(t, func(r *http.Request) (*http.Response, error) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		return jsonResponse(http.StatusOK, `{
			"id": "chatcmpl-2",
			"choices": [{"message": {"content": "`+"```json"+`\n{\"title\":\"Erdő titka\",\"summary\":\"Rövid mese.\",\"setting\":\"erdő\",\"conflict\":\"eltévedés\",\"tone\":\"nyugodt\"}\n`+"```"+`"}}],
			"usage": {"prompt_tokens": 500, "completion_tokens": 40}
		}`, nil), nil
	})

	res, err := client.ExtractMeta(context.Background(), "Erdő titka\n\nEgyszer volt...")
	require.NoError(t, err)
	assert.True(t, res.Meta.Complete())
	assert.Equal(t, "eltévedés", res.Meta.Conflict)
	assert.Equal(t, "gpt-4.1-mini", res.Model, "request model is used when the response omits it")
	assert.Equal(t, "gpt-4.1-mini", sent.Model)
	require.NotNil(t, sent.ResponseFormat)
	assert.Equal(t, "json_object", sent.ResponseFormat.Type)
	assert.Zero(t, res.Usage.TotalTokens)
}

func TestOpenAIExtractMetaRejectsProse(t *testing.T) {
	client := newTestOpenAI(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"id": "chatcmpl-3",
			"choices": [{"message": {"content": "Sajnos ehhez nem tudok metaadatot adni."}}]
		}`, nil), nil
	})

	res, err := client.ExtractMeta(context.Background(), "Erdő titka")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrMetadataIncomplete)
}

func TestOpenAIErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		quota  bool
		auth   bool
		code   string
	}{
		{
			name:   "insufficient_quota",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`,
			quota:  true,
			code:   "insufficient_quota",
		},
		{
			name:   "invalid_key",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			auth:   true,
			code:   "invalid_api_key",
		},
		{
			name:   "server_error_null_code",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"The server had an error","type":"server_error","code":null}}`,
			code:   "server_error",
		},
		{
			name:   "non_json_body",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			client := newTestOpenAI(t, func(r *http.Request) (*http.Response, error) {
				return jsonResponse(tc.status, tc.body, nil), nil
			})
			_, err := client.GenerateStory(context.Background(), pipeline.GenerationRequest{Theme: "erdő"})
			require.Error(t, err)
			var pe *domain.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.status, pe.StatusCode)
			assert.Equal(t, tc.code, pe.Code)
			assert.Equal(t, tc.quota, domain.IsQuotaExceeded(err))
			assert.Equal(t, tc.auth, domain.IsAuthInvalid(err))
			assert.NotEmpty(t, pe.Message)
		})
	}
}

func TestOpenAITransportError(t *testing.T) {
	client := newTestOpenAI(t, func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("boom")
	})
	_, err := client.ExtractMeta(context.Background(), "text")
	assert.ErrorContains(t, err, "boom")
	assert.False(t, domain.IsQuotaExceeded(err))
}

func TestOpenAINoChoices(t *testing.T) {
	client := newTestOpenAI(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"id":"x","choices":[]}`, nil), nil
	})
	_, err := client.GenerateStory(context.Background(), pipeline.GenerationRequest{})
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIOptions{APIKey: " "})
	assert.Error(t, err)
}

func TestNormalizeOpenAIModel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		input  string
		model  string
		reason string
	}{
		{name: "exact_default", input: "gpt-4o-mini", model: "gpt-4o-mini", reason: ""},
		{name: "exact_large", input: "gpt-4o", model: "gpt-4o", reason: ""},
		{name: "alias_compact", input: "gpt4omini", model: "gpt-4o-mini", reason: "alias"},
		{name: "alias_spaces", input: "GPT 4.1 Mini", model: "gpt-4.1-mini", reason: ""},
		{name: "unsupported", input: "davinci", model: "gpt-4o-mini", reason: "defaulted"},
		{name: "empty", input: "", model: "gpt-4o-mini", reason: ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotModel, gotReason := normalizeOpenAIModel(tc.input)
			assert.Equal(t, tc.model, gotModel)
			assert.Equal(t, tc.reason, gotReason)
		})
	}
}

func TestNewOpenAIClientWarnsOnUnsupportedModel(t *testing.T) {
	var reason, detail string
	_, err := NewOpenAIClient(OpenAIOptions{
		APIKey: "sk-test",
		Model:  "davinci",
		OnWarning: func(r, d string) {
			reason, detail = r, d
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "model_defaulted", reason)
	assert.Equal(t, "requested=davinci resolved=gpt-4o-mini", detail)
}
