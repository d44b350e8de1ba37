package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultReferer = "https://www.marinova.in"
	defaultTitle   = "MARINOVA Ocean Data Platform"

	openRouterDefaultTimeout = 60 * time.Second
)

// OpenRouterOptions configures an OpenRouterProvider
type OpenRouterOptions struct {
	APIKey     string
	BaseURL    string
	Referer    string
	Title      string
	Timeout    time.Duration
	Models     map[Kind]ModelConfig
	Image      ImageConfig
	HTTPClient *http.Client
}

// OpenRouterProvider talks to an OpenAI-compatible API
type OpenRouterProvider struct {
	apiKey  string
	baseURL string
	referer string
	title   string
	timeout time.Duration
	models  map[Kind]ModelConfig
	image   ImageConfig
	client  *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// chatMessage content is either a string or a list of parts
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenRouterProvider creates a provider. The API key is required.
func NewOpenRouterProvider(opts OpenRouterOptions) (*OpenRouterProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openrouter api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	models := DefaultModels()
	for kind, cfg := range opts.Models {
		models[kind] = cfg
	}
	image := opts.Image
	if image.Model == "" {
		image = DefaultImageConfig()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = openRouterDefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		// the per-call context deadline is the tighter bound
		client = &http.Client{Timeout: max(timeout, openRouterDefaultTimeout)}
	}

	return &OpenRouterProvider{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		referer: coalesce(opts.Referer, defaultReferer),
		title:   coalesce(opts.Title, defaultTitle),
		timeout: timeout,
		models:  models,
		image:   image,
		client:  client,
	}, nil
}

// Generate sends one request. Image requests go to the images endpoint,
// everything else to chat completions.
func (p *OpenRouterProvider) Generate(ctx context.Context, req Request) (*Content, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if req.Kind == KindImage {
		return p.generateImage(ctx, req)
	}
	return p.complete(ctx, req)
}

func (p *OpenRouterProvider) complete(ctx context.Context, req Request) (*Content, error) {
	cfg, ok := p.models[req.Kind]
	if !ok {
		return nil, fmt.Errorf("no model configured for kind %q", req.Kind)
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	payload := chatRequest{
		Model:       cfg.Model,
		Messages:    formatMessages(req.Messages, req.ImageURLs),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	var out chatResponse
	if err := p.post(ctx, "/chat/completions", payload, &out); err != nil {
		return nil, err
	}

	content := &Content{Kind: req.Kind, Model: coalesce(out.Model, cfg.Model)}
	if len(out.Choices) > 0 {
		content.Text = strings.TrimSpace(out.Choices[0].Message.Content)
	}
	return content, nil
}

func (p *OpenRouterProvider) generateImage(ctx context.Context, req Request) (*Content, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("image prompt is required")
	}

	payload := imageRequest{
		Model:   p.image.Model,
		Prompt:  req.Prompt,
		N:       1,
		Size:    p.image.Size,
		Quality: p.image.Quality,
	}
	var out imageResponse
	if err := p.post(ctx, "/images/generations", payload, &out); err != nil {
		return nil, err
	}

	content := &Content{Kind: KindImage, Model: p.image.Model}
	if len(out.Data) > 0 {
		content.ImageURL = out.Data[0].URL
	}
	return content, nil
}

func (p *OpenRouterProvider) post(ctx context.Context, path string, payload, out interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("HTTP-Referer", p.referer)
	httpReq.Header.Set("X-Title", p.title)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("provider request aborted: %w", ctxErr)
		}
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		if isCapacityResponse(apiErr) {
			return &CapacityError{Err: apiErr}
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var decoded errorResponse
	if json.Unmarshal(raw, &decoded) == nil && decoded.Error.Message != "" {
		return decoded.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

// formatMessages maps roles to the wire vocabulary and attaches images to a
// trailing user message as multimodal parts.
func formatMessages(messages []Message, imageURLs []string) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "model" {
			role = "assistant"
		}
		out = append(out, chatMessage{Role: role, Content: m.Content})
	}

	if len(imageURLs) == 0 || len(out) == 0 {
		return out
	}
	last := &out[len(out)-1]
	if last.Role != "user" {
		return out
	}
	text, _ := last.Content.(string)
	parts := []contentPart{{Type: "text", Text: text}}
	for _, u := range imageURLs {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u}})
	}
	last.Content = parts
	return out
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ Provider = (*OpenRouterProvider)(nil)
