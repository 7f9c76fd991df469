package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Model identifies a video-generation model tier.
type Model string

const (
	// ModelVeoPreview is the preview generation tier. Portrait requests on
	// this tier require a reference image; when the caller supplies none the
	// orchestrator synthesizes one first.
	ModelVeoPreview Model = "veo-3.0-generate-preview"

	// ModelVeoStable is the generally available tier.
	ModelVeoStable Model = "veo-2.0-generate-001"
)

// ParseModel maps a wire identifier onto a known model.
func ParseModel(s string) (Model, error) {
	switch Model(strings.TrimSpace(s)) {
	case ModelVeoPreview:
		return ModelVeoPreview, nil
	case ModelVeoStable, "":
		return ModelVeoStable, nil
	default:
		return "", fmt.Errorf("%w: unknown model %q", ErrInvalidPrompt, s)
	}
}

// PreviewTier reports whether the model is subject to the portrait
// reference-image requirement.
func (m Model) PreviewTier() bool {
	return m == ModelVeoPreview
}

// AspectRatio is the requested video orientation.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// ParseAspectRatio maps a wire value onto a known orientation.
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch AspectRatio(strings.TrimSpace(s)) {
	case AspectLandscape, "":
		return AspectLandscape, nil
	case AspectPortrait:
		return AspectPortrait, nil
	default:
		return "", fmt.Errorf("%w: unknown aspect ratio %q", ErrInvalidPrompt, s)
	}
}

// Image is an immutable still image payload. Construct with NewImage; callers
// must not mutate the data slice afterwards, so a stored Image never changes
// under the orchestrator.
type Image struct {
	data []byte
	mime string
	name string
}

// NewImage builds an Image value.
func NewImage(data []byte, mime, name string) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty image payload", ErrInvalidPrompt)
	}
	if strings.TrimSpace(mime) == "" {
		return Image{}, fmt.Errorf("%w: image mime type is required", ErrInvalidPrompt)
	}
	return Image{data: data, mime: mime, name: name}, nil
}

// DecodeImage builds an Image from a base64 transit payload.
func DecodeImage(encoded, mime, name string) (Image, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return Image{}, fmt.Errorf("%w: decode image payload: %v", ErrInvalidPrompt, err)
	}
	return NewImage(data, mime, name)
}

func (i Image) Data() []byte { return i.data }
func (i Image) MIME() string { return i.mime }
func (i Image) Name() string { return i.name }

// Base64 returns the payload encoded for transit.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.data)
}

// Empty reports whether the image carries no payload.
func (i Image) Empty() bool { return len(i.data) == 0 }

// EnhancedPrompt is the structured pair returned by the prompt enhancer. It
// has no lifecycle: produced once, merged into the working prompt by the
// caller, discarded.
type EnhancedPrompt struct {
	VideoPrompt string `json:"videoPrompt"`
	SoundPrompt string `json:"soundPrompt"`
}

// GenerationRequest carries everything the orchestrator needs for one video.
type GenerationRequest struct {
	Prompt         string
	Model          Model
	Aspect         AspectRatio
	ReferenceImage *Image
	Options        Options
}

// Validate checks the submission-time invariants.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidPrompt)
	}
	if _, err := ParseModel(string(r.Model)); err != nil {
		return err
	}
	if _, err := ParseAspectRatio(string(r.Aspect)); err != nil {
		return err
	}
	if r.ReferenceImage != nil && r.ReferenceImage.Empty() {
		return fmt.Errorf("%w: reference image is empty", ErrInvalidPrompt)
	}
	return r.Options.Validate()
}

// NeedsBootstrap reports whether the two-step reference-image bootstrap must
// run before submission: preview tier, portrait orientation, and no
// caller-supplied reference image.
func (r GenerationRequest) NeedsBootstrap() bool {
	return r.Model.PreviewTier() && r.Aspect == AspectPortrait && r.ReferenceImage == nil
}

// VideoResult is the locally addressable handle for a finished generation.
type VideoResult struct {
	StorageKey string `json:"storage_key"`
	MIME       string `json:"mime"`
	Size       int64  `json:"size"`
}
