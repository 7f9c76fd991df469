package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vidserver/internal/domain"
	"vidserver/internal/middleware"
)

type referenceImagePayload struct {
	DataBase64 string `json:"data_base64"`
	MIME       string `json:"mime"`
	Name       string `json:"name"`
}

type videoGenerateRequest struct {
	Prompt         string                 `json:"prompt"`
	Model          string                 `json:"model"`
	AspectRatio    string                 `json:"aspect_ratio"`
	ReferenceImage *referenceImagePayload `json:"reference_image,omitempty"`
	Options        map[string]any         `json:"options,omitempty"`
}

type progressEvent struct {
	Event string `json:"event"`
	Label string `json:"label"`
}

type resultEvent struct {
	Event      string `json:"event"`
	StorageKey string `json:"storage_key"`
	URL        string `json:"url"`
	MIME       string `json:"mime"`
	Size       int64  `json:"size"`
}

type errorEvent struct {
	Event   string `json:"event"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// VideosGenerate runs one full generation pipeline within the request and
// streams progress as newline-delimited JSON, terminated by a result or
// error event. The request context cancels the poll loop when the client
// goes away.
func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	var req videoGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	genReq, err := a.buildGenerationRequest(req)
	if err != nil {
		kind, status := errorKind(err)
		a.error(w, status, kind, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	emit := func(v any) {
		_ = encoder.Encode(v)
		if flusher != nil {
			flusher.Flush()
		}
	}

	result, err := a.Orchestrator.Generate(r.Context(), genReq, func(label string) {
		emit(progressEvent{Event: "progress", Label: label})
	})
	if err != nil {
		kind, _ := errorKind(err)
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("video generation failed")
		emit(errorEvent{Event: "error", Error: kind, Message: err.Error()})
		return
	}

	emit(resultEvent{
		Event:      "result",
		StorageKey: result.StorageKey,
		URL:        "/v1/videos/" + result.StorageKey,
		MIME:       result.MIME,
		Size:       result.Size,
	})
}

func (a *App) buildGenerationRequest(req videoGenerateRequest) (domain.GenerationRequest, error) {
	model, err := domain.ParseModel(req.Model)
	if err != nil {
		return domain.GenerationRequest{}, err
	}
	aspect, err := domain.ParseAspectRatio(req.AspectRatio)
	if err != nil {
		return domain.GenerationRequest{}, err
	}

	var reference *domain.Image
	if req.ReferenceImage != nil {
		img, err := domain.DecodeImage(req.ReferenceImage.DataBase64, req.ReferenceImage.MIME, req.ReferenceImage.Name)
		if err != nil {
			return domain.GenerationRequest{}, err
		}
		reference = &img
	}

	genReq := domain.GenerationRequest{
		Prompt:         strings.TrimSpace(req.Prompt),
		Model:          model,
		Aspect:         aspect,
		ReferenceImage: reference,
		Options:        domain.Options(req.Options),
	}
	if err := genReq.Validate(); err != nil {
		return domain.GenerationRequest{}, err
	}
	return genReq, nil
}

// VideosDownload serves a stored video by its storage key.
func (a *App) VideosDownload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "storage key required")
		return
	}
	data, err := a.Store.Read(r.Context(), key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "video not found")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}
