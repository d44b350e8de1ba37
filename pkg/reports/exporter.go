package reports

import (
	"context"
	"fmt"
	"time"
)

// Exporter aggregates a month and hands the report to a sink
type Exporter struct {
	aggregator *Aggregator
	sink       Sink
}

// NewExporter creates an exporter
func NewExporter(aggregator *Aggregator, sink Sink) *Exporter {
	return &Exporter{aggregator: aggregator, sink: sink}
}

// Export writes the report of the month containing month and returns it
// together with its location.
func (e *Exporter) Export(ctx context.Context, month time.Time) (*Report, string, error) {
	report, err := e.aggregator.MonthlyUsage(ctx, month)
	if err != nil {
		return nil, "", err
	}

	location, err := e.sink.Put(ctx, report)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store %s report: %w", report.Month, err)
	}
	return report, location, nil
}
