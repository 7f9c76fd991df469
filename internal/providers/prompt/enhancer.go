package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"vidserver/internal/domain"
	"vidserver/internal/providers/genai"
)

// EnhanceRequest carries the raw user prompt and the language selector.
type EnhanceRequest struct {
	Prompt string
	Locale string
}

// Enhancer turns a raw prompt into a structured video/sound prompt pair.
type Enhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (*domain.EnhancedPrompt, error)
}

const (
	enhanceTemperature = 0.8

	enhanceSystemInstruction = "You are a cinematic prompt writer for a generative video model. " +
		"Rewrite the user's idea into two parts: a vivid, detailed video prompt describing " +
		"subjects, setting, lighting, camera work and mood, and a matching sound prompt " +
		"describing ambience, effects and music. Keep the user's intent, do not add on-screen " +
		"text, and answer in the requested language."
)

// GeminiEnhancer implements Enhancer on top of the text-generation endpoint
// with a structured two-field output schema.
type GeminiEnhancer struct {
	client *genai.Client
	model  string
}

// NewGeminiEnhancer builds the enhancer for the given text model.
func NewGeminiEnhancer(client *genai.Client, model string) *GeminiEnhancer {
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiEnhancer{client: client, model: model}
}

func (g *GeminiEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*domain.EnhancedPrompt, error) {
	raw := strings.TrimSpace(req.Prompt)
	if raw == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidPrompt)
	}

	text, err := g.client.GenerateText(ctx, genai.TextRequest{
		Model:             g.model,
		Contents:          buildEnhanceContents(raw, req.Locale),
		SystemInstruction: enhanceSystemInstruction,
		Temperature:       enhanceTemperature,
		ResponseSchema:    genai.StringObjectSchema("videoPrompt", "soundPrompt"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: enhance prompt: %v", domain.ErrUpstream, err)
	}

	enhanced, err := parseEnhancedPrompt(text)
	if err != nil {
		// The one benign fallback: a response that is not valid JSON but
		// still carries text is used as the video prompt directly.
		if plain := strings.TrimSpace(text); plain != "" {
			return &domain.EnhancedPrompt{VideoPrompt: plain}, nil
		}
		return nil, fmt.Errorf("%w: parse enhanced prompt: %v", domain.ErrUpstream, err)
	}
	return enhanced, nil
}

func buildEnhanceContents(prompt, locale string) string {
	lang := localeDisplayName(locale)
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Language: %s.\n", lang)
	sb.WriteString("Idea: ")
	sb.WriteString(prompt)
	return sb.String()
}

// localeDisplayName maps a BCP 47 tag onto a name the model understands,
// defaulting to English for anything unparseable.
func localeDisplayName(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return "English"
	}
	base, _ := tag.Base()
	switch base.String() {
	case "id":
		return "Indonesian"
	case "ja":
		return "Japanese"
	case "ko":
		return "Korean"
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	case "de":
		return "German"
	case "zh":
		return "Chinese"
	default:
		return "English"
	}
}

func parseEnhancedPrompt(raw string) (*domain.EnhancedPrompt, error) {
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty payload")
	}
	var decoded domain.EnhancedPrompt
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, err
	}
	if strings.TrimSpace(decoded.VideoPrompt) == "" {
		return nil, fmt.Errorf("missing videoPrompt field")
	}
	decoded.VideoPrompt = strings.TrimSpace(decoded.VideoPrompt)
	decoded.SoundPrompt = strings.TrimSpace(decoded.SoundPrompt)
	return &decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

var _ Enhancer = (*GeminiEnhancer)(nil)
