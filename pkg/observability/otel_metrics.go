package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// otelInstruments mirrors the credit metrics to the global OTel meter
// provider so they reach the collector alongside traces.
type otelInstruments struct {
	charges            metric.Int64Counter
	denials            metric.Int64Counter
	generationDuration metric.Float64Histogram
}

// EnableOTel starts mirroring charges, denials and generation latency to
// OpenTelemetry. Call it after InitOTel has installed the meter provider.
func (m *Metrics) EnableOTel() error {
	if m == nil {
		return nil
	}
	meter := otel.Meter("github.com/marinova/oceanmeter")

	charges, err := meter.Int64Counter(
		"oceanmeter.credit.charges",
		metric.WithDescription("Committed credit deductions"),
		metric.WithUnit("{charge}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create charges counter: %w", err)
	}

	denials, err := meter.Int64Counter(
		"oceanmeter.credit.denials",
		metric.WithDescription("Rejected feature uses"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create denials counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"oceanmeter.generation.duration",
		metric.WithDescription("Generation provider call duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create generation histogram: %w", err)
	}

	m.otel = &otelInstruments{
		charges:            charges,
		denials:            denials,
		generationDuration: duration,
	}
	return nil
}

func (o *otelInstruments) charge(tier, feature string) {
	if o == nil {
		return
	}
	o.charges.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("feature", feature),
	))
}

func (o *otelInstruments) denial(tier, feature, reason string) {
	if o == nil {
		return
	}
	o.denials.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("feature", feature),
		attribute.String("reason", reason),
	))
}

func (o *otelInstruments) generation(kind, outcome string, d time.Duration) {
	if o == nil {
		return
	}
	o.generationDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
