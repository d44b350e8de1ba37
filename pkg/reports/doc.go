// Package reports exports monthly credit usage.
//
// An Aggregator reads usage_history joined with credit_ledgers and counts
// charges per tier and feature for a UTC calendar month. Users are grouped
// by the tier they hold when the report runs. The Exporter writes the result
// to a Sink, normally an S3Sink:
//
//	agg := reports.NewStoreAggregator(store)
//	sink, err := reports.NewS3Sink(ctx, reports.S3Config{Bucket: "marinova-reports", Region: "ap-south-1"})
//	if err != nil {
//	    return err
//	}
//	report, location, err := reports.NewExporter(agg, sink).Export(ctx, reports.PreviousMonth(time.Now()))
//
// Reports never touch ledger balances. Monthly rollover stays lazy and is
// applied only when a user next makes a request.
package reports
