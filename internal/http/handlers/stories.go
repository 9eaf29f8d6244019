package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"storyteller/internal/domain"
	"storyteller/internal/intake"
)

type statusEventResponse struct {
	Status       domain.StoryStatus `json:"status"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
}

type storyStatusResponse struct {
	ID           string                `json:"id"`
	Status       domain.StoryStatus    `json:"status"`
	Title        string                `json:"title,omitempty"`
	Summary      string                `json:"summary,omitempty"`
	PreviewURL   string                `json:"previewUrl,omitempty"`
	ErrorMessage string                `json:"errorMessage,omitempty"`
	ReadyAt      *time.Time            `json:"readyAt,omitempty"`
	Events       []statusEventResponse `json:"events"`
}

// StoryStatus serves the current status and full status history of a story
// for polling clients.
func (a *App) StoryStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	story, err := a.Stories.GetStory(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "story not found")
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("story_id", id).Msg("http: load story")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load story")
		return
	}
	events, err := a.Stories.ListStatusEvents(r.Context(), id)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("story_id", id).Msg("http: load status events")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load status history")
		return
	}

	resp := storyStatusResponse{
		ID:           story.ID,
		Status:       story.Status,
		ErrorMessage: story.ErrorMessage,
		Events:       make([]statusEventResponse, 0, len(events)),
	}
	if story.Status == domain.StoryStatusReady {
		resp.Title = story.Title
		resp.Summary = story.Summary
		resp.PreviewURL = story.PreviewURL
		resp.ReadyAt = story.ReadyAt
	}
	for _, ev := range events {
		resp.Events = append(resp.Events, statusEventResponse{
			Status:       ev.Status,
			ErrorMessage: ev.ErrorMessage,
			CreatedAt:    ev.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, resp)
}

// SubmitStory accepts a story order and returns the queued story id.
func (a *App) SubmitStory(w http.ResponseWriter, r *http.Request) {
	if a.Intake == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "story intake is not enabled")
		return
	}
	var req intake.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	story, err := a.Intake.Submit(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case errors.Is(err, domain.ErrInsufficientCredit):
		a.error(w, http.StatusPaymentRequired, "insufficient_credit", "not enough credits for this story")
		return
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("http: submit story")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue story")
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"id":         story.ID,
		"status":     story.Status,
		"creditCost": story.CreditCost,
	})
}
