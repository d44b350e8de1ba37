package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marinova/oceanmeter/pkg/observability"
)

var generationTracer = otel.Tracer("oceanmeter/generation")

// ErrEmptyContent is returned when the provider answers without usable output.
// Callers treat it as a failed generation.
var ErrEmptyContent = errors.New("provider returned no content")

// Service turns domain requests into provider calls and parses the results
type Service struct {
	provider Provider
	metrics  *observability.Metrics
}

// NewService wraps a provider. metrics may be nil.
func NewService(provider Provider, metrics *observability.Metrics) *Service {
	return &Service{provider: provider, metrics: metrics}
}

func (s *Service) generate(ctx context.Context, req Request) (*Content, error) {
	ctx, span := generationTracer.Start(ctx, "Generate",
		trace.WithAttributes(attribute.String("kind", string(req.Kind))),
	)
	defer span.End()

	start := time.Now()
	content, err := s.provider.Generate(ctx, req)
	if err == nil && isEmpty(req.Kind, content) {
		err = fmt.Errorf("%s generation: %w", req.Kind, ErrEmptyContent)
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		switch {
		case IsCapacityError(err):
			outcome = "capacity"
		case errors.Is(err, ErrEmptyContent):
			outcome = "empty"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetAttributes(attribute.String("model", content.Model))
		span.SetStatus(codes.Ok, outcome)
	}
	s.metrics.RecordGeneration(string(req.Kind), outcome, time.Since(start))
	if err != nil {
		return nil, err
	}
	return content, nil
}

func isEmpty(kind Kind, content *Content) bool {
	if content == nil {
		return true
	}
	if kind == KindImage {
		return strings.TrimSpace(content.ImageURL) == ""
	}
	return strings.TrimSpace(content.Text) == ""
}

// WeatherBrief writes a mariner's brief for a location
func (s *Service) WeatherBrief(ctx context.Context, locationName string, lat, lon float64, data WeatherData) (string, error) {
	content, err := s.generate(ctx, Request{
		Kind:     KindWeather,
		Messages: []Message{{Role: "user", Content: WeatherBriefPrompt(locationName, lat, lon, data)}},
	})
	if err != nil {
		return "", err
	}
	return content.Text, nil
}

// Chat continues a conversation, optionally with images
func (s *Service) Chat(ctx context.Context, messages []Message, imageURLs []string) (string, error) {
	content, err := s.generate(ctx, Request{
		Kind:      KindChat,
		Messages:  messages,
		ImageURLs: imageURLs,
	})
	if err != nil {
		return "", err
	}
	return content.Text, nil
}

// ResearchReport writes a report on a topic and extracts its sources
func (s *Service) ResearchReport(ctx context.Context, topic string) (*Report, error) {
	content, err := s.generate(ctx, Request{
		Kind:     KindResearch,
		Messages: []Message{{Role: "user", Content: ResearchReportPrompt(topic)}},
	})
	if err != nil {
		return nil, err
	}
	return &Report{Content: content.Text, Sources: ParseSources(content.Text)}, nil
}

// MonthlyInsights generates thirty days of insights. Unparseable output is a failure.
func (s *Service) MonthlyInsights(ctx context.Context) ([]Insight, error) {
	content, err := s.generate(ctx, Request{
		Kind:     KindInsights,
		Messages: []Message{{Role: "user", Content: MonthlyInsightsPrompt()}},
	})
	if err != nil {
		return nil, err
	}
	return ParseInsights(content.Text)
}

// Image renders a marine themed image and returns its URL
func (s *Service) Image(ctx context.Context, description string) (string, error) {
	content, err := s.generate(ctx, Request{
		Kind:   KindImage,
		Prompt: ImagePrompt(description),
	})
	if err != nil {
		return "", err
	}
	return content.ImageURL, nil
}
