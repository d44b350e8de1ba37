// Package async runs background work without leaking goroutines or
// crashing the process on panics.
//
// SafeGo starts one task with a timeout and logs its failure:
//
//	async.SafeGo(ctx, 5*time.Minute, "usage report", logger, func(ctx context.Context) error {
//		return job.Run(ctx, month)
//	})
//
// Batch fans a slice out over a bounded number of workers and returns the
// failures, each wrapped in an *ItemError naming its item:
//
//	errs := async.Batch(ctx, tiers, 4, time.Minute, func(ctx context.Context, tier plans.Tier) error {
//		return sink.Put(ctx, tier)
//	})
package async
