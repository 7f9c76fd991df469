package image

import (
	"context"
	"fmt"
	"strings"

	"vidserver/internal/domain"
	"vidserver/internal/providers/genai"
)

// PromptDeriver condenses a cinematic video prompt into a still-image
// description suitable for the image endpoint.
type PromptDeriver interface {
	DeriveImagePrompt(ctx context.Context, videoPrompt string) (string, error)
}

const (
	deriveTemperature = 0.4

	deriveSystemInstruction = "You turn video prompts into still-image prompts. Condense the " +
		"given cinematic video prompt into a description of one single frozen moment. Remove " +
		"all camera motion, panning, zooming and temporal language. Keep subject, composition, " +
		"lighting and mood. Respond with the image prompt only."
)

// GeminiDeriver implements PromptDeriver on the text-generation endpoint with
// a distinct fixed system instruction.
type GeminiDeriver struct {
	client *genai.Client
	model  string
}

func NewGeminiDeriver(client *genai.Client, model string) *GeminiDeriver {
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiDeriver{client: client, model: model}
}

func (d *GeminiDeriver) DeriveImagePrompt(ctx context.Context, videoPrompt string) (string, error) {
	text, err := d.client.GenerateText(ctx, genai.TextRequest{
		Model:             d.model,
		Contents:          videoPrompt,
		SystemInstruction: deriveSystemInstruction,
		Temperature:       deriveTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: derive image prompt: %v", domain.ErrUpstream, err)
	}
	derived := strings.TrimSpace(text)
	if derived == "" {
		return "", fmt.Errorf("%w: derive image prompt: empty response", domain.ErrUpstream)
	}
	return derived, nil
}

var _ PromptDeriver = (*GeminiDeriver)(nil)
