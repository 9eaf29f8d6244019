package story

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyteller/internal/domain"
	"storyteller/internal/pipeline"
)

func newTestGemini(t *testing.T, rt roundTripFunc) *GeminiClient {
	t.Helper()
	client, err := NewGeminiClient(context.Background(), GeminiOptions{
		APIKey:     "gm-test",
		Model:      "gemini-2.5-flash",
		HTTPClient: &http.Client{Transport: rt},
	})
	require.NoError(t, err)
	return client
}

func TestGeminiGenerateStory(t *testing.T) {
	client := newTestGemini(t, func(r *http.Request) (*http.Response, error) {
		assert.Contains(t, r.URL.Path, "gemini-2.5-flash:generateContent")
		return jsonResponse(http.StatusOK, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Erdő titka\n\n"}, {"text": "Egyszer volt..."}]}}],
			"usageMetadata": {"promptTokenCount": 80, "candidatesTokenCount": 300, "totalTokenCount": 380},
			"modelVersion": "gemini-2.5-flash-001"
		}`, nil), nil
	})

	res, err := client.GenerateStory(context.Background(), pipeline.GenerationRequest{Theme: "erdő", Mood: domain.MoodCalm})
	require.NoError(t, err)
	assert.Equal(t, "Erdő titka\n\nEgyszer volt...", res.Text)
	assert.Equal(t, "gemini-2.5-flash-001", res.Model)
	assert.Equal(t, domain.TokenUsage{InputTokens: 80, OutputTokens: 300, TotalTokens: 380}, res.Usage)
}

func TestGeminiExtractMeta(t *testing.T) {
	client := newTestGemini(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"title\":\"Erdő titka\",\"summary\":\"Mese.\",\"setting\":\"erdő\",\"conflict\":\"vihar\",\"tone\":\"nyugodt\"}"}]}}]
		}`, nil), nil
	})

	res, err := client.ExtractMeta(context.Background(), "Erdő titka")
	require.NoError(t, err)
	assert.True(t, res.Meta.Complete())
	assert.Equal(t, "gemini-2.5-flash", res.Model)
	assert.Zero(t, res.Usage)
}

func TestGeminiExtractMetaRejectsProse(t *testing.T) {
	client := newTestGemini(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Egyszer volt, hol nem volt..."}]}}]
		}`, nil), nil
	})

	res, err := client.ExtractMeta(context.Background(), "Erdő titka")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrMetadataIncomplete)
}

func TestGeminiQuotaError(t *testing.T) {
	client := newTestGemini(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, nil), nil
	})
	_, err := client.GenerateStory(context.Background(), pipeline.GenerationRequest{Theme: "erdő"})
	require.Error(t, err)
	assert.True(t, domain.IsQuotaExceeded(err), err.Error())
}

func TestGeminiInvalidKeyError(t *testing.T) {
	client := newTestGemini(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`, nil), nil
	})
	_, err := client.ExtractMeta(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, domain.IsAuthInvalid(err), err.Error())
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiOptions{})
	assert.Error(t, err)
}
