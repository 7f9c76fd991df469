package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidserver/internal/domain"
)

// Options controls how the Generative Language API client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client is a thin facade over the Generative Language REST API so that the
// providers can focus on translating domain requests into API calls. The
// credential travels as a query parameter on every request, including binary
// downloads.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient constructs a client. It fails with domain.ErrCredentialMissing
// when no API key is configured, before any network call can happen.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, domain.ErrCredentialMissing
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}, nil
}

// TextRequest describes one generateContent call.
type TextRequest struct {
	Model             string
	Contents          string
	SystemInstruction string
	Temperature       float64
	// ResponseSchema, when set, requests structured JSON output conforming
	// to the schema.
	ResponseSchema *Schema
}

// Schema is the subset of the structured-output schema language this service
// needs: objects with string properties.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

// StringObjectSchema builds an object schema whose fields are all strings and
// all required.
func StringObjectSchema(fields ...string) *Schema {
	props := make(map[string]*Schema, len(fields))
	for _, f := range fields {
		props[f] = &Schema{Type: "STRING"}
	}
	return &Schema{Type: "OBJECT", Properties: props, Required: fields}
}

// ImageRequest describes one image-generation predict call.
type ImageRequest struct {
	Model          string
	Prompt         string
	Count          int
	AspectRatio    string
	OutputMIMEType string
}

// GeneratedImage is a decoded image returned by the image endpoint.
type GeneratedImage struct {
	Data []byte
	MIME string
}

// VideoJobConfig describes one long-running video-generation submission.
// AspectRatio is forwarded only when non-empty; the orchestrator omits it
// when the service should infer orientation from the reference image.
type VideoJobConfig struct {
	Model       string
	Prompt      string
	AspectRatio string
	Image       *domain.Image
	Parameters  map[string]any
}

// Operation is the opaque handle for an in-flight video job. It is owned by
// exactly one orchestration from submission to terminal state.
type Operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *OperationError    `json:"error,omitempty"`
	Response *OperationResponse `json:"response,omitempty"`
}

// OperationError is the error payload of a terminal operation.
type OperationError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// OperationResponse wraps the result payload of a completed operation.
type OperationResponse struct {
	GenerateVideoResponse *VideoJobOutput `json:"generateVideoResponse,omitempty"`
}

// VideoJobOutput lists the generated videos of a completed job.
type VideoJobOutput struct {
	GeneratedSamples []VideoSample `json:"generatedSamples,omitempty"`
}

// VideoSample is one generated video entry.
type VideoSample struct {
	Video *VideoRef `json:"video,omitempty"`
}

// VideoRef carries the downloadable location of a generated video.
type VideoRef struct {
	URI string `json:"uri,omitempty"`
}

// VideoURIs returns the result video locations of a completed operation, in
// order. Empty until the operation is done.
func (o *Operation) VideoURIs() []string {
	if o == nil || o.Response == nil || o.Response.GenerateVideoResponse == nil {
		return nil
	}
	var uris []string
	for _, sample := range o.Response.GenerateVideoResponse.GeneratedSamples {
		if sample.Video != nil && sample.Video.URI != "" {
			uris = append(uris, sample.Video.URI)
		}
	}
	return uris
}

type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters map[string]any    `json:"parameters,omitempty"`
}

type predictInstance struct {
	Prompt string       `json:"prompt"`
	Image  *inlineImage `json:"image,omitempty"`
}

type inlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type imagePredictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// GenerateText runs a generateContent call and returns the text of the first
// non-empty candidate part.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	payload := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: req.Contents}},
		}},
		GenerationConfig: &generationConfig{
			Temperature:    req.Temperature,
			CandidateCount: 1,
		},
	}
	if req.SystemInstruction != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	if req.ResponseSchema != nil {
		payload.GenerationConfig.ResponseMimeType = "application/json"
		payload.GenerationConfig.ResponseSchema = req.ResponseSchema
	}

	var response generateContentResponse
	if err := c.invoke(ctx, http.MethodPost, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(req.Model)), payload, &response); err != nil {
		return "", err
	}

	for _, candidate := range response.Candidates {
		for _, p := range candidate.Content.Parts {
			if strings.TrimSpace(p.Text) != "" {
				return p.Text, nil
			}
		}
	}
	return "", fmt.Errorf("no text content returned")
}

// GenerateImages runs an image predict call and decodes the returned images.
func (c *Client) GenerateImages(ctx context.Context, req ImageRequest) ([]GeneratedImage, error) {
	count := req.Count
	if count <= 0 {
		count = 1
	}
	params := map[string]any{
		"sampleCount": count,
	}
	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}
	if req.OutputMIMEType != "" {
		params["outputMimeType"] = req.OutputMIMEType
	}
	payload := predictRequest{
		Instances:  []predictInstance{{Prompt: req.Prompt}},
		Parameters: params,
	}

	var response imagePredictResponse
	if err := c.invoke(ctx, http.MethodPost, fmt.Sprintf("/models/%s:predict", url.PathEscape(req.Model)), payload, &response); err != nil {
		return nil, err
	}

	var images []GeneratedImage
	for _, prediction := range response.Predictions {
		if prediction.BytesBase64Encoded == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(prediction.BytesBase64Encoded)
		if err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		mime := prediction.MimeType
		if mime == "" {
			mime = req.OutputMIMEType
		}
		images = append(images, GeneratedImage{Data: data, MIME: mime})
	}

	c.logger.Debug().
		Str("model", req.Model).
		Int("count", len(images)).
		Msg("genai: image predict returned")

	return images, nil
}

// SubmitVideoJob starts a long-running video generation and returns its
// operation handle.
func (c *Client) SubmitVideoJob(ctx context.Context, cfg VideoJobConfig) (*Operation, error) {
	instance := predictInstance{Prompt: cfg.Prompt}
	if cfg.Image != nil && !cfg.Image.Empty() {
		instance.Image = &inlineImage{
			BytesBase64Encoded: cfg.Image.Base64(),
			MimeType:           cfg.Image.MIME(),
		}
	}

	params := map[string]any{
		"numberOfVideos": 1,
	}
	if cfg.AspectRatio != "" {
		params["aspectRatio"] = cfg.AspectRatio
	}
	for key, value := range cfg.Parameters {
		params[key] = value
	}

	payload := predictRequest{
		Instances:  []predictInstance{instance},
		Parameters: params,
	}

	var op Operation
	if err := c.invoke(ctx, http.MethodPost, fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(cfg.Model)), payload, &op); err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, fmt.Errorf("no operation handle returned")
	}

	c.logger.Debug().
		Str("model", cfg.Model).
		Str("operation", op.Name).
		Msg("genai: video job submitted")

	return &op, nil
}

// PollVideoJob fetches the current state of an operation handle.
func (c *Client) PollVideoJob(ctx context.Context, op *Operation) (*Operation, error) {
	if op == nil || op.Name == "" {
		return nil, fmt.Errorf("operation handle is required")
	}
	var refreshed Operation
	if err := c.invoke(ctx, http.MethodGet, "/"+strings.TrimLeft(op.Name, "/"), nil, &refreshed); err != nil {
		return nil, err
	}
	return &refreshed, nil
}

// Download fetches raw bytes from a result URI with the credential appended
// as a query parameter. Relative URIs are resolved against the base URL.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("download status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read download: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) invoke(ctx context.Context, method, path string, payload, out any) error {
	endpoint := c.baseURL + path
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("api status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("api status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
