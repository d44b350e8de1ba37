package generation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Kind selects the model configuration of a request
type Kind string

const (
	KindWeather  Kind = "weather"
	KindChat     Kind = "chat"
	KindResearch Kind = "research"
	KindInsights Kind = "insights"
	KindImage    Kind = "image"
)

// Message is one chat turn. The "model" role is accepted as an alias of "assistant".
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant model system"`
	Content string `json:"content"`
}

// Request is a single generation call
type Request struct {
	Kind Kind
	// Messages is the conversation for text kinds
	Messages []Message
	// ImageURLs are attached to the last user message
	ImageURLs []string
	// Prompt is the image description for KindImage
	Prompt string
}

// Content is the raw provider output
type Content struct {
	Kind     Kind
	Model    string
	Text     string
	ImageURL string
}

// Provider produces content for a request
type Provider interface {
	Generate(ctx context.Context, req Request) (*Content, error)
}

// ModelConfig tunes one request kind
type ModelConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// ImageConfig tunes image generation
type ImageConfig struct {
	Model   string
	Size    string
	Quality string
}

// DefaultModels returns the model configuration per text kind
func DefaultModels() map[Kind]ModelConfig {
	return map[Kind]ModelConfig{
		KindWeather:  {Model: "google/gemini-flash-1.5-8b", MaxTokens: 500, Temperature: 0.7},
		KindChat:     {Model: "anthropic/claude-3.5-sonnet", MaxTokens: 800, Temperature: 0.8},
		KindResearch: {Model: "anthropic/claude-3.5-sonnet", MaxTokens: 2000, Temperature: 0.7},
		KindInsights: {Model: "google/gemini-flash-1.5-8b", MaxTokens: 3000, Temperature: 0.9},
	}
}

// DefaultImageConfig returns the image generation settings
func DefaultImageConfig() ImageConfig {
	return ImageConfig{Model: "dall-e-3", Size: "1024x1024", Quality: "standard"}
}

// APIError is a non-2xx provider response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider status %d: %s", e.StatusCode, e.Message)
}

// CapacityError marks a transient refusal: throttling, exhausted quota or an overloaded upstream
type CapacityError struct {
	Err error
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("provider at capacity: %v", e.Err)
}

func (e *CapacityError) Unwrap() error {
	return e.Err
}

var capacityWords = regexp.MustCompile(`(?i)(quota|limit|overload|\brate\b)`)

// IsCapacityError reports whether err is a transient capacity failure.
// Cancellation and deadlines never count, whatever their message says.
func IsCapacityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var capacity *CapacityError
	if errors.As(err, &capacity) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return isCapacityResponse(apiErr)
	}
	return capacityWords.MatchString(err.Error())
}

func isCapacityResponse(e *APIError) bool {
	switch e.StatusCode {
	case 429, 503:
		return true
	}
	return capacityWords.MatchString(e.Message)
}
