package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"vidserver/internal/middleware"
	"vidserver/internal/providers/prompt"
)

type enhanceRequest struct {
	Prompt string `json:"prompt"`
	Locale string `json:"locale"`
}

type enhanceResponse struct {
	VideoPrompt string `json:"video_prompt"`
	SoundPrompt string `json:"sound_prompt"`
}

// PromptsEnhance rewrites a raw idea into a structured video/sound prompt
// pair. The locale comes from the body when set, otherwise from the detected
// request locale.
func (a *App) PromptsEnhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}

	enhanced, err := a.Enhancer.Enhance(r.Context(), prompt.EnhanceRequest{
		Prompt: req.Prompt,
		Locale: locale,
	})
	if err != nil {
		kind, status := errorKind(err)
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("prompt enhancement failed")
		a.error(w, status, kind, "failed to enhance prompt")
		return
	}

	a.json(w, http.StatusOK, enhanceResponse{
		VideoPrompt: enhanced.VideoPrompt,
		SoundPrompt: enhanced.SoundPrompt,
	})
}
