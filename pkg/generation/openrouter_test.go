package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenRouterProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewOpenRouterProvider(OpenRouterOptions{
		APIKey:  "test-key",
		BaseURL: server.URL + "/",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return p
}

func TestNewOpenRouterProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenRouterProvider(OpenRouterOptions{APIKey: "  "})
	assert.Error(t, err)
}

func TestOpenRouterProvider_ChatCompletion(t *testing.T) {
	var captured chatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://www.marinova.in", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "MARINOVA Ocean Data Platform", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"anthropic/claude-3.5-sonnet","choices":[{"message":{"content":"  Calm seas ahead. "}}]}`))
	})

	content, err := p.Generate(context.Background(), Request{
		Kind:     KindResearch,
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Calm seas ahead.", content.Text)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", captured.Model)
	assert.Equal(t, 2000, captured.MaxTokens)
	assert.InDelta(t, 0.7, captured.Temperature, 0.0001)
}

func TestOpenRouterProvider_EmptyChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	content, err := p.Generate(context.Background(), Request{
		Kind:     KindWeather,
		Messages: []Message{{Role: "user", Content: "brief"}},
	})
	require.NoError(t, err)
	assert.Empty(t, content.Text)
	assert.Equal(t, "google/gemini-flash-1.5-8b", content.Model)
}

func TestOpenRouterProvider_Image(t *testing.T) {
	var captured imageRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"data":[{"url":"https://img.example/1.png"}]}`))
	})

	content, err := p.Generate(context.Background(), Request{Kind: KindImage, Prompt: "a reef"})
	require.NoError(t, err)

	assert.Equal(t, "https://img.example/1.png", content.ImageURL)
	assert.Equal(t, "dall-e-3", captured.Model)
	assert.Equal(t, "1024x1024", captured.Size)
	assert.Equal(t, "standard", captured.Quality)
	assert.Equal(t, 1, captured.N)
}

func TestOpenRouterProvider_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		capacity bool
	}{
		{"too many requests", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, true},
		{"service unavailable", http.StatusServiceUnavailable, ``, true},
		{"quota message", http.StatusPaymentRequired, `{"error":{"message":"Monthly quota exhausted"}}`, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid model"}}`, false},
		{"server error", http.StatusInternalServerError, `upstream exploded`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := p.Generate(context.Background(), Request{
				Kind:     KindChat,
				Messages: []Message{{Role: "user", Content: "hi"}},
			})
			require.Error(t, err)
			assert.Equal(t, tt.capacity, IsCapacityError(err))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestOpenRouterProvider_TransportFailure(t *testing.T) {
	p, err := NewOpenRouterProvider(OpenRouterOptions{
		APIKey: "k",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("boom")
		})},
	})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), Request{
		Kind:     KindChat,
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.False(t, IsCapacityError(err))
}

func TestOpenRouterProvider_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p, err := NewOpenRouterProvider(OpenRouterOptions{
		APIKey:  "k",
		BaseURL: server.URL,
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), Request{
		Kind:     KindInsights,
		Messages: []Message{{Role: "user", Content: "rate limit quota"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsCapacityError(err))
}

func TestOpenRouterProvider_UnknownKind(t *testing.T) {
	p, err := NewOpenRouterProvider(OpenRouterOptions{APIKey: "k"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), Request{Kind: "poetry", Messages: []Message{{Role: "user"}}})
	assert.Error(t, err)
}

func TestFormatMessages(t *testing.T) {
	t.Run("maps model role to assistant", func(t *testing.T) {
		out := formatMessages([]Message{
			{Role: "user", Content: "hi"},
			{Role: "model", Content: "hello"},
		}, nil)

		require.Len(t, out, 2)
		assert.Equal(t, "assistant", out[1].Role)
		assert.Equal(t, "hello", out[1].Content)
	})

	t.Run("attaches images to trailing user message", func(t *testing.T) {
		out := formatMessages([]Message{
			{Role: "model", Content: "send a photo"},
			{Role: "user", Content: "what fish is this?"},
		}, []string{"https://img/a.jpg", "https://img/b.jpg"})

		parts, ok := out[1].Content.([]contentPart)
		require.True(t, ok)
		require.Len(t, parts, 3)
		assert.Equal(t, contentPart{Type: "text", Text: "what fish is this?"}, parts[0])
		assert.Equal(t, "image_url", parts[1].Type)
		assert.Equal(t, "https://img/b.jpg", parts[2].ImageURL.URL)
	})

	t.Run("ignores images when last message is not from the user", func(t *testing.T) {
		out := formatMessages([]Message{{Role: "assistant", Content: "done"}}, []string{"https://img/a.jpg"})
		assert.Equal(t, "done", out[0].Content)
	})
}
