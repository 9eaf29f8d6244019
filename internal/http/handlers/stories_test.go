package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyteller/internal/domain"
	"storyteller/internal/infra"
	"storyteller/internal/intake"
)

type stubReader struct {
	story  *domain.Story
	events []domain.StatusEvent
	err    error
}

func (s *stubReader) GetStory(ctx context.Context, storyID string) (*domain.Story, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.story, nil
}

func (s *stubReader) ListStatusEvents(ctx context.Context, storyID string) ([]domain.StatusEvent, error) {
	return s.events, nil
}

type stubSubmitter struct {
	got intake.Request
	err error
}

func (s *stubSubmitter) Submit(ctx context.Context, req intake.Request) (*domain.Story, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Story{ID: "story-1", Status: domain.StoryStatusQueued, CreditCost: 2}, nil
}

func withID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestStoryStatusReady(t *testing.T) {
	readyAt := time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)
	reader := &stubReader{
		story: &domain.Story{
			ID:         "story-1",
			Status:     domain.StoryStatusReady,
			Title:      "A vihar után",
			PreviewURL: "https://cdn.example/stories/story-1/preview.webp",
			ReadyAt:    &readyAt,
		},
		events: []domain.StatusEvent{
			{StoryID: "story-1", Status: domain.StoryStatusQueued},
			{StoryID: "story-1", Status: domain.StoryStatusGeneratingText},
			{StoryID: "story-1", Status: domain.StoryStatusReady},
		},
	}
	app := NewApp(reader, nil, infra.NopLogger())

	rr := httptest.NewRecorder()
	app.StoryStatus(rr, withID(httptest.NewRequest(http.MethodGet, "/v1/stories/story-1/status", nil), "story-1"))
	require.Equal(t, http.StatusOK, rr.Code)

	var body storyStatusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, domain.StoryStatusReady, body.Status)
	assert.Equal(t, "A vihar után", body.Title)
	assert.True(t, strings.HasSuffix(body.PreviewURL, "preview.webp"))
	require.Len(t, body.Events, 3)
	assert.Equal(t, domain.StoryStatusGeneratingText, body.Events[1].Status)
}

func TestStoryStatusHidesContentUntilReady(t *testing.T) {
	reader := &stubReader{story: &domain.Story{
		ID:     "story-1",
		Status: domain.StoryStatusGeneratingCover,
		Title:  "draft",
	}}
	app := NewApp(reader, nil, infra.NopLogger())

	rr := httptest.NewRecorder()
	app.StoryStatus(rr, withID(httptest.NewRequest(http.MethodGet, "/", nil), "story-1"))
	require.Equal(t, http.StatusOK, rr.Code)

	var body storyStatusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Empty(t, body.Title)
	assert.NotNil(t, body.Events)
}

func TestStoryStatusErrors(t *testing.T) {
	app := NewApp(&stubReader{err: domain.ErrNotFound}, nil, infra.NopLogger())
	rr := httptest.NewRecorder()
	app.StoryStatus(rr, withID(httptest.NewRequest(http.MethodGet, "/", nil), "missing"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	app = NewApp(&stubReader{err: errors.New("db down")}, nil, infra.NopLogger())
	rr = httptest.NewRecorder()
	app.StoryStatus(rr, withID(httptest.NewRequest(http.MethodGet, "/", nil), "story-1"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestSubmitStory(t *testing.T) {
	sub := &stubSubmitter{}
	app := NewApp(&stubReader{}, sub, infra.NopLogger())

	payload := `{"userId":"u","childId":"c","theme":"erdő","mood":"nyugodt","length":"short"}`
	rr := httptest.NewRecorder()
	app.SubmitStory(rr, httptest.NewRequest(http.MethodPost, "/v1/stories", strings.NewReader(payload)))
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, domain.MoodCalm, sub.got.Mood)
	assert.Equal(t, "erdő", sub.got.Theme)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "story-1", body["id"])
	assert.Equal(t, "queued", body["status"])
}

func TestSubmitStoryErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", domain.ErrInvalidRequest, http.StatusBadRequest},
		{"insufficient", domain.ErrInsufficientCredit, http.StatusPaymentRequired},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := NewApp(&stubReader{}, &stubSubmitter{err: tc.err}, infra.NopLogger())
			rr := httptest.NewRecorder()
			app.SubmitStory(rr, httptest.NewRequest(http.MethodPost, "/v1/stories", strings.NewReader(`{}`)))
			assert.Equal(t, tc.want, rr.Code)
		})
	}

	app := NewApp(&stubReader{}, &stubSubmitter{}, infra.NopLogger())
	rr := httptest.NewRecorder()
	app.SubmitStory(rr, httptest.NewRequest(http.MethodPost, "/v1/stories", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	app = NewApp(&stubReader{}, nil, infra.NopLogger())
	rr = httptest.NewRecorder()
	app.SubmitStory(rr, httptest.NewRequest(http.MethodPost, "/v1/stories", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
