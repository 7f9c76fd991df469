package video

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidserver/internal/domain"
	"vidserver/internal/providers/genai"
	"vidserver/internal/providers/image"
	"vidserver/internal/storage"
)

// JobsClient is the slice of the API client the orchestrator drives.
type JobsClient interface {
	SubmitVideoJob(ctx context.Context, cfg genai.VideoJobConfig) (*genai.Operation, error)
	PollVideoJob(ctx context.Context, op *genai.Operation) (*genai.Operation, error)
	Download(ctx context.Context, uri string) ([]byte, string, error)
}

// ProgressFunc receives a stage label at each transition. It is invoked
// synchronously and must not block; a nil func disables notifications.
type ProgressFunc func(label string)

// stageLabels is the fixed ordered list cycled through while polling. The
// label for poll iteration n is stageLabels[n % len(stageLabels)].
var stageLabels = [...]string{
	"Warming up the render farm...",
	"Storyboarding your scenes...",
	"Setting up the cameras...",
	"Lighting the set...",
	"Rolling film...",
	"Adding the final touches...",
}

const downloadingLabel = "Downloading your video..."

const defaultPollInterval = 10 * time.Second

// Options configures an Orchestrator.
type Options struct {
	Client       JobsClient
	Deriver      image.PromptDeriver
	Synthesizer  image.Synthesizer
	Store        *storage.FileStore
	PollInterval time.Duration
	Logger       *zerolog.Logger
}

// Orchestrator drives one video generation from request to locally stored
// result: optional reference-image bootstrap, submission, polling, download.
// Each Generate call owns its job handle exclusively; concurrent calls share
// no mutable state.
type Orchestrator struct {
	client       JobsClient
	deriver      image.PromptDeriver
	synthesizer  image.Synthesizer
	store        *storage.FileStore
	pollInterval time.Duration
	logger       zerolog.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Orchestrator{
		client:       opts.Client,
		deriver:      opts.Deriver,
		synthesizer:  opts.Synthesizer,
		store:        opts.Store,
		pollInterval: interval,
		logger:       logger,
	}
}

// Generate runs the full pipeline. Every failure is terminal and mapped onto
// the domain taxonomy; there are no retries beyond the poll loop itself.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest, onProgress ProgressFunc) (*domain.VideoResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	notify := onProgress
	if notify == nil {
		notify = func(string) {}
	}

	reference := req.ReferenceImage
	if req.NeedsBootstrap() {
		img, err := o.bootstrapReferenceImage(ctx, req.Prompt)
		if err != nil {
			// Nothing was submitted remotely; the whole orchestration aborts.
			o.logger.Error().Err(err).Msg("video: reference image bootstrap failed")
			return nil, err
		}
		reference = img
	}

	cfg := genai.VideoJobConfig{
		Model:      string(req.Model),
		Prompt:     req.Prompt,
		Image:      reference,
		Parameters: req.Options.Parameters(),
	}
	// The preview tier infers orientation from the reference image; in every
	// other combination the aspect ratio is sent explicitly.
	if !(req.Model.PreviewTier() && reference != nil) {
		cfg.AspectRatio = string(req.Aspect)
	}

	op, err := o.client.SubmitVideoJob(ctx, cfg)
	if err != nil {
		o.logger.Error().Err(err).Str("model", cfg.Model).Msg("video: job submission failed")
		return nil, fmt.Errorf("%w: submit job: %v", domain.ErrUpstream, err)
	}
	o.logger.Info().Str("operation", op.Name).Str("model", cfg.Model).Msg("video: job submitted")

	op, err = o.poll(ctx, op, notify)
	if err != nil {
		return nil, err
	}

	if op.Error != nil {
		o.logger.Error().Str("operation", op.Name).Str("message", op.Error.Message).Msg("video: job reported failure")
		return nil, fmt.Errorf("%w: %s", domain.ErrJob, op.Error.Message)
	}

	uris := op.VideoURIs()
	if len(uris) == 0 {
		o.logger.Error().Str("operation", op.Name).Msg("video: job completed without a result reference")
		return nil, domain.ErrMissingResult
	}

	notify(downloadingLabel)
	data, mime, err := o.client.Download(ctx, uris[0])
	if err != nil {
		o.logger.Error().Err(err).Str("uri", uris[0]).Msg("video: download failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrDownload, err)
	}
	if mime == "" {
		mime = "video/mp4"
	}

	key := fmt.Sprintf("videos/%s.mp4", uuid.NewString())
	storedKey, err := o.store.Write(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("%w: store video: %v", domain.ErrDownload, err)
	}

	o.logger.Info().
		Str("operation", op.Name).
		Str("storage_key", storedKey).
		Int("bytes", len(data)).
		Msg("video: generation resolved")

	return &domain.VideoResult{
		StorageKey: storedKey,
		MIME:       mime,
		Size:       int64(len(data)),
	}, nil
}

// bootstrapReferenceImage runs the two-step sequence: derive a still-image
// prompt from the video prompt, then synthesize one portrait image from it.
func (o *Orchestrator) bootstrapReferenceImage(ctx context.Context, videoPrompt string) (*domain.Image, error) {
	derived, err := o.deriver.DeriveImagePrompt(ctx, videoPrompt)
	if err != nil {
		return nil, err
	}
	o.logger.Debug().Str("image_prompt", truncate(derived, 120)).Msg("video: derived bootstrap image prompt")
	return o.synthesizer.Synthesize(ctx, derived)
}

// poll loops until the operation reports done. Each iteration emits the next
// round-robin stage label, waits the fixed interval, then re-queries. A query
// failure is fatal and is not retried. Cancellation is honored at the suspend
// boundary between one status query and the next.
func (o *Orchestrator) poll(ctx context.Context, op *genai.Operation, notify ProgressFunc) (*genai.Operation, error) {
	timer := time.NewTimer(o.pollInterval)
	defer timer.Stop()

	for polls := 0; !op.Done; polls++ {
		notify(stageLabels[polls%len(stageLabels)])

		timer.Reset(o.pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrPoll, ctx.Err())
		}

		refreshed, err := o.client.PollVideoJob(ctx, op)
		if err != nil {
			o.logger.Error().Err(err).Str("operation", op.Name).Int("polls", polls).Msg("video: status query failed")
			return nil, fmt.Errorf("%w: %v", domain.ErrPoll, err)
		}
		op = refreshed
	}
	return op, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
