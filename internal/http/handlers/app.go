package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"storyteller/internal/domain"
	"storyteller/internal/infra"
	"storyteller/internal/intake"
)

// Submitter accepts new story orders.
type Submitter interface {
	Submit(ctx context.Context, req intake.Request) (*domain.Story, error)
}

// App holds the collaborators behind the HTTP surface. Intake may be nil on
// a worker, which then serves only the read endpoints.
type App struct {
	Stories domain.StatusReader
	Intake  Submitter
	Logger  infra.Logger
}

func NewApp(stories domain.StatusReader, intake Submitter, logger infra.Logger) *App {
	return &App{Stories: stories, Intake: intake, Logger: infra.Component(logger, "http")}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
