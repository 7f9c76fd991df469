package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"vidserver/internal/domain"
	"vidserver/internal/providers/prompt"
	"vidserver/internal/providers/video"
	"vidserver/internal/storage"
)

// App bundles the dependencies every handler needs.
type App struct {
	Enhancer     prompt.Enhancer
	Orchestrator *video.Orchestrator
	Store        *storage.FileStore
	Logger       zerolog.Logger
}

func NewApp(enhancer prompt.Enhancer, orchestrator *video.Orchestrator, store *storage.FileStore, logger zerolog.Logger) *App {
	return &App{
		Enhancer:     enhancer,
		Orchestrator: orchestrator,
		Store:        store,
		Logger:       logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

// errorKind maps a pipeline failure onto its wire code and HTTP status.
func errorKind(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrInvalidPrompt), errors.Is(err, domain.ErrInvalidOption):
		return "bad_request", http.StatusBadRequest
	case errors.Is(err, domain.ErrCredentialMissing):
		return "credential_missing", http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstream):
		return "upstream_error", http.StatusBadGateway
	case errors.Is(err, domain.ErrPoll):
		return "poll_error", http.StatusBadGateway
	case errors.Is(err, domain.ErrJob):
		return "job_error", http.StatusBadGateway
	case errors.Is(err, domain.ErrMissingResult):
		return "missing_result", http.StatusBadGateway
	case errors.Is(err, domain.ErrDownload):
		return "download_error", http.StatusBadGateway
	default:
		return "internal", http.StatusInternalServerError
	}
}
