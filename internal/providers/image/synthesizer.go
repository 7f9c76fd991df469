package image

import (
	"context"
	"fmt"
	"strings"

	"vidserver/internal/domain"
	"vidserver/internal/providers/genai"
)

// Synthesizer generates a single portrait reference image from an image
// prompt.
type Synthesizer interface {
	Synthesize(ctx context.Context, imagePrompt string) (*domain.Image, error)
}

const (
	// synthesizedImageName is the fixed name given to every bootstrap image.
	synthesizedImageName = "reference-frame.png"

	// synthesizedImageMIME is the fixed output format requested from the
	// image endpoint, independent of prompt content.
	synthesizedImageMIME = "image/png"

	synthesizedAspectRatio = "9:16"
)

// ImagenSynthesizer implements Synthesizer on the image-generation endpoint.
type ImagenSynthesizer struct {
	client *genai.Client
	model  string
}

func NewImagenSynthesizer(client *genai.Client, model string) *ImagenSynthesizer {
	if strings.TrimSpace(model) == "" {
		model = "imagen-4.0-generate-001"
	}
	return &ImagenSynthesizer{client: client, model: model}
}

func (s *ImagenSynthesizer) Synthesize(ctx context.Context, imagePrompt string) (*domain.Image, error) {
	images, err := s.client.GenerateImages(ctx, genai.ImageRequest{
		Model:          s.model,
		Prompt:         imagePrompt,
		Count:          1,
		AspectRatio:    synthesizedAspectRatio,
		OutputMIMEType: synthesizedImageMIME,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: synthesize reference image: %v", domain.ErrUpstream, err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: synthesize reference image: no images returned", domain.ErrUpstream)
	}
	img, err := domain.NewImage(images[0].Data, synthesizedImageMIME, synthesizedImageName)
	if err != nil {
		return nil, fmt.Errorf("%w: synthesize reference image: %v", domain.ErrUpstream, err)
	}
	return &img, nil
}

var _ Synthesizer = (*ImagenSynthesizer)(nil)
