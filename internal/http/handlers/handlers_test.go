package handlers

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vidserver/internal/domain"
	"vidserver/internal/middleware"
	"vidserver/internal/providers/genai"
	"vidserver/internal/providers/image"
	"vidserver/internal/providers/prompt"
	"vidserver/internal/providers/video"
	"vidserver/internal/storage"
)

type fakeEnhancer struct {
	enhance func(ctx context.Context, req prompt.EnhanceRequest) (*domain.EnhancedPrompt, error)
}

func (f *fakeEnhancer) Enhance(ctx context.Context, req prompt.EnhanceRequest) (*domain.EnhancedPrompt, error) {
	return f.enhance(ctx, req)
}

type fakeJobs struct {
	submit func(ctx context.Context, cfg genai.VideoJobConfig) (*genai.Operation, error)
}

func (f *fakeJobs) SubmitVideoJob(ctx context.Context, cfg genai.VideoJobConfig) (*genai.Operation, error) {
	if f.submit != nil {
		return f.submit(ctx, cfg)
	}
	return &genai.Operation{
		Name: "operations/test",
		Done: true,
		Response: &genai.OperationResponse{
			GenerateVideoResponse: &genai.VideoJobOutput{
				GeneratedSamples: []genai.VideoSample{{Video: &genai.VideoRef{URI: "files/vid1"}}},
			},
		},
	}, nil
}

func (f *fakeJobs) PollVideoJob(ctx context.Context, op *genai.Operation) (*genai.Operation, error) {
	return op, nil
}

func (f *fakeJobs) Download(ctx context.Context, uri string) ([]byte, string, error) {
	return []byte("video-bytes"), "video/mp4", nil
}

type fakeDeriver struct{}

func (fakeDeriver) DeriveImagePrompt(ctx context.Context, videoPrompt string) (string, error) {
	return "a frozen moment", nil
}

type fakeSynthesizer struct{}

func (fakeSynthesizer) Synthesize(ctx context.Context, imagePrompt string) (*domain.Image, error) {
	img, err := domain.NewImage([]byte("png"), "image/png", "reference-frame.png")
	if err != nil {
		return nil, err
	}
	return &img, nil
}

var _ video.JobsClient = (*fakeJobs)(nil)
var _ image.PromptDeriver = fakeDeriver{}
var _ image.Synthesizer = fakeSynthesizer{}

func newTestApp(t *testing.T, enhancer prompt.Enhancer, jobs *fakeJobs) *App {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	orchestrator := video.NewOrchestrator(video.Options{
		Client:       jobs,
		Deriver:      fakeDeriver{},
		Synthesizer:  fakeSynthesizer{},
		Store:        store,
		PollInterval: time.Millisecond,
	})
	return NewApp(enhancer, orchestrator, store, zerolog.New(io.Discard))
}

func TestPromptsEnhance(t *testing.T) {
	t.Run("success with body locale", func(t *testing.T) {
		var gotLocale string
		app := newTestApp(t, &fakeEnhancer{
			enhance: func(ctx context.Context, req prompt.EnhanceRequest) (*domain.EnhancedPrompt, error) {
				gotLocale = req.Locale
				return &domain.EnhancedPrompt{VideoPrompt: "vp", SoundPrompt: "sp"}, nil
			},
		}, &fakeJobs{})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/prompts/enhance", strings.NewReader(`{"prompt":"idea","locale":"ja"}`))
		app.PromptsEnhance(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if gotLocale != "ja" {
			t.Fatalf("locale = %q, want ja", gotLocale)
		}
		var resp struct {
			VideoPrompt string `json:"video_prompt"`
			SoundPrompt string `json:"sound_prompt"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.VideoPrompt != "vp" || resp.SoundPrompt != "sp" {
			t.Fatalf("response = %+v", resp)
		}
	})

	t.Run("falls back to the detected locale", func(t *testing.T) {
		var gotLocale string
		app := newTestApp(t, &fakeEnhancer{
			enhance: func(ctx context.Context, req prompt.EnhanceRequest) (*domain.EnhancedPrompt, error) {
				gotLocale = req.Locale
				return &domain.EnhancedPrompt{VideoPrompt: "vp"}, nil
			},
		}, &fakeJobs{})

		req := httptest.NewRequest(http.MethodPost, "/v1/prompts/enhance", strings.NewReader(`{"prompt":"idea"}`))
		req = req.WithContext(context.WithValue(req.Context(), middleware.LocaleKey, "id"))
		app.PromptsEnhance(httptest.NewRecorder(), req)

		if gotLocale != "id" {
			t.Fatalf("locale = %q, want id", gotLocale)
		}
	})

	t.Run("rejects a blank prompt", func(t *testing.T) {
		app := newTestApp(t, &fakeEnhancer{}, &fakeJobs{})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/prompts/enhance", strings.NewReader(`{"prompt":"   "}`))
		app.PromptsEnhance(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("maps upstream failures", func(t *testing.T) {
		app := newTestApp(t, &fakeEnhancer{
			enhance: func(ctx context.Context, req prompt.EnhanceRequest) (*domain.EnhancedPrompt, error) {
				return nil, fmt.Errorf("%w: enhance prompt: boom", domain.ErrUpstream)
			},
		}, &fakeJobs{})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/prompts/enhance", strings.NewReader(`{"prompt":"idea"}`))
		app.PromptsEnhance(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
		var resp map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["error"] != "upstream_error" {
			t.Fatalf("error kind = %q, want upstream_error", resp["error"])
		}
	})
}

func decodeEvents(t *testing.T, body io.Reader) []map[string]any {
	t.Helper()
	var events []map[string]any
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestVideosGenerateStreamsResult(t *testing.T) {
	app := newTestApp(t, &fakeEnhancer{}, &fakeJobs{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/videos/generate", strings.NewReader(`{"prompt":"a lighthouse"}`))
	app.VideosGenerate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("Content-Type = %q, want application/x-ndjson", ct)
	}

	events := decodeEvents(t, rec.Body)
	if len(events) == 0 {
		t.Fatal("expected at least one event")
	}
	last := events[len(events)-1]
	if last["event"] != "result" {
		t.Fatalf("final event = %v, want result", last["event"])
	}
	key, _ := last["storage_key"].(string)
	if !strings.HasPrefix(key, "videos/") || !strings.HasSuffix(key, ".mp4") {
		t.Fatalf("storage_key = %q", key)
	}
	if last["url"] != "/v1/videos/"+key {
		t.Fatalf("url = %v", last["url"])
	}
	if last["mime"] != "video/mp4" {
		t.Fatalf("mime = %v", last["mime"])
	}
}

func TestVideosGenerateStreamsError(t *testing.T) {
	jobs := &fakeJobs{
		submit: func(ctx context.Context, cfg genai.VideoJobConfig) (*genai.Operation, error) {
			return nil, errors.New("quota exhausted")
		},
	}
	app := newTestApp(t, &fakeEnhancer{}, jobs)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/videos/generate", strings.NewReader(`{"prompt":"a lighthouse"}`))
	app.VideosGenerate(rec, req)

	// The stream is already open; failures arrive as a terminal error event.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	events := decodeEvents(t, rec.Body)
	last := events[len(events)-1]
	if last["event"] != "error" {
		t.Fatalf("final event = %v, want error", last["event"])
	}
	if last["error"] != "upstream_error" {
		t.Fatalf("error kind = %v, want upstream_error", last["error"])
	}
}

func TestVideosGenerateRejectsBadRequests(t *testing.T) {
	app := newTestApp(t, &fakeEnhancer{}, &fakeJobs{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"unknown model", `{"prompt":"x","model":"veo-99"}`},
		{"unknown aspect", `{"prompt":"x","aspect_ratio":"4:3"}`},
		{"bad option", `{"prompt":"x","options":{"loop":true}}`},
		{"bad reference image", `{"prompt":"x","reference_image":{"data_base64":"!!","mime":"image/png"}}`},
		{"blank prompt", `{"prompt":"  "}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/videos/generate", strings.NewReader(tc.body))
			app.VideosGenerate(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestVideosGenerateDecodesReferenceImage(t *testing.T) {
	var submitted genai.VideoJobConfig
	jobs := &fakeJobs{
		submit: func(ctx context.Context, cfg genai.VideoJobConfig) (*genai.Operation, error) {
			submitted = cfg
			return (&fakeJobs{}).SubmitVideoJob(ctx, cfg)
		},
	}
	app := newTestApp(t, &fakeEnhancer{}, jobs)

	encoded := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	body := fmt.Sprintf(`{"prompt":"x","reference_image":{"data_base64":%q,"mime":"image/jpeg","name":"u.jpg"}}`, encoded)
	rec := httptest.NewRecorder()
	app.VideosGenerate(rec, httptest.NewRequest(http.MethodPost, "/v1/videos/generate", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if submitted.Image == nil {
		t.Fatal("expected the caller image on the submission")
	}
	if submitted.Image.MIME() != "image/jpeg" {
		t.Fatalf("image MIME = %q, want image/jpeg", submitted.Image.MIME())
	}
}

func TestVideosDownload(t *testing.T) {
	app := newTestApp(t, &fakeEnhancer{}, &fakeJobs{})
	if _, err := app.Store.Write(context.Background(), "videos/abc.mp4", []byte("video-bytes")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/v1/videos/*", app.VideosDownload)

	t.Run("serves stored videos", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/videos/videos/abc.mp4", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if rec.Body.String() != "video-bytes" {
			t.Fatalf("body = %q", rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
			t.Fatalf("Content-Type = %q", ct)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/videos/videos/missing.mp4", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err        error
		wantKind   string
		wantStatus int
	}{
		{fmt.Errorf("%w: x", domain.ErrInvalidPrompt), "bad_request", http.StatusBadRequest},
		{fmt.Errorf("%w: x", domain.ErrInvalidOption), "bad_request", http.StatusBadRequest},
		{domain.ErrCredentialMissing, "credential_missing", http.StatusServiceUnavailable},
		{fmt.Errorf("%w: x", domain.ErrUpstream), "upstream_error", http.StatusBadGateway},
		{fmt.Errorf("%w: x", domain.ErrPoll), "poll_error", http.StatusBadGateway},
		{fmt.Errorf("%w: x", domain.ErrJob), "job_error", http.StatusBadGateway},
		{domain.ErrMissingResult, "missing_result", http.StatusBadGateway},
		{fmt.Errorf("%w: x", domain.ErrDownload), "download_error", http.StatusBadGateway},
		{errors.New("anything else"), "internal", http.StatusInternalServerError},
	}
	for _, tc := range tests {
		kind, status := errorKind(tc.err)
		if kind != tc.wantKind || status != tc.wantStatus {
			t.Fatalf("errorKind(%v) = (%q, %d), want (%q, %d)", tc.err, kind, status, tc.wantKind, tc.wantStatus)
		}
	}
}
