package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marinova/oceanmeter/pkg/async"
	"github.com/marinova/oceanmeter/pkg/ledger"
	"github.com/marinova/oceanmeter/pkg/plans"
)

var reportsTracer = otel.Tracer("oceanmeter/reports")

const (
	defaultWorkers      = 4
	defaultQueryTimeout = 30 * time.Second
)

// tierUsageQuery attributes history rows to the tier the user is on now.
// usage_history does not record the tier at charge time.
const tierUsageQuery = `
	SELECT h.feature, COUNT(*) AS charges, COUNT(DISTINCT h.user_id) AS users
	FROM usage_history h
	JOIN credit_ledgers l ON l.user_id = h.user_id
	WHERE l.subscription_status = ?
		AND h.used_at >= ?
		AND h.used_at < ?
	GROUP BY h.feature
	ORDER BY h.feature`

// Aggregator computes usage reports from the ledger tables. It only reads.
type Aggregator struct {
	db      *sql.DB
	rebind  func(string) string
	catalog *plans.Catalog
	now     func() time.Time

	Workers      int
	QueryTimeout time.Duration
}

// NewAggregator creates an aggregator over db. rebind rewrites ? placeholders
// for the driver; nil leaves queries untouched.
func NewAggregator(db *sql.DB, rebind func(string) string) *Aggregator {
	if rebind == nil {
		rebind = func(q string) string { return q }
	}
	return &Aggregator{
		db:           db,
		rebind:       rebind,
		catalog:      plans.DefaultCatalog(),
		now:          time.Now,
		Workers:      defaultWorkers,
		QueryTimeout: defaultQueryTimeout,
	}
}

// NewStoreAggregator reads from the database behind a SQL ledger store
func NewStoreAggregator(store *ledger.SQLStore) *Aggregator {
	return NewAggregator(store.DB(), store.Rebind)
}

// WithCatalog sets the catalog used for tier display names
func (a *Aggregator) WithCatalog(c *plans.Catalog) *Aggregator {
	if c != nil {
		a.catalog = c
	}
	return a
}

// TierUsage counts the charges in [from, to) of users currently on tier
func (a *Aggregator) TierUsage(ctx context.Context, tier plans.Tier, from, to time.Time) (*TierUsage, error) {
	rows, err := a.db.QueryContext(ctx, a.rebind(tierUsageQuery), string(tier), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query %s usage: %w", tier, err)
	}
	defer rows.Close()

	usage := &TierUsage{
		Tier:        tier,
		DisplayName: a.catalog.DisplayName(tier),
		Features:    []FeatureUsage{},
	}
	for rows.Next() {
		var (
			feature string
			fu      FeatureUsage
		)
		if err := rows.Scan(&feature, &fu.Charges, &fu.Users); err != nil {
			return nil, fmt.Errorf("failed to scan %s usage: %w", tier, err)
		}
		fu.Feature = plans.Feature(feature)
		usage.Charges += fu.Charges
		usage.Features = append(usage.Features, fu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s usage: %w", tier, err)
	}
	return usage, nil
}

// MonthlyUsage builds the report for the UTC month containing month.
// Tiers are queried concurrently.
func (a *Aggregator) MonthlyUsage(ctx context.Context, month time.Time) (*Report, error) {
	from := MonthStart(month)
	to := from.AddDate(0, 1, 0)

	ctx, span := reportsTracer.Start(ctx, "Aggregator.MonthlyUsage",
		trace.WithAttributes(attribute.String("report.month", from.Format(MonthLayout))),
	)
	defer span.End()

	tiers := plans.Tiers()
	results := make([]*TierUsage, len(tiers))
	position := make(map[plans.Tier]int, len(tiers))
	for i, tier := range tiers {
		position[tier] = i
	}

	errs := async.Batch(ctx, tiers, a.Workers, a.QueryTimeout, func(ctx context.Context, tier plans.Tier) error {
		usage, err := a.TierUsage(ctx, tier, from, to)
		if err != nil {
			return err
		}
		results[position[tier]] = usage
		return nil
	})
	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tier query failed")
		return nil, fmt.Errorf("failed to aggregate %s: %w", from.Format(MonthLayout), err)
	}

	report := &Report{
		ID:          uuid.NewString(),
		Month:       from.Format(MonthLayout),
		From:        from,
		To:          to,
		GeneratedAt: a.now().UTC(),
		Tiers:       make([]TierUsage, 0, len(results)),
	}
	for _, usage := range results {
		report.TotalCharges += usage.Charges
		report.Tiers = append(report.Tiers, *usage)
	}

	span.SetAttributes(attribute.Int64("report.total_charges", report.TotalCharges))
	return report, nil
}
