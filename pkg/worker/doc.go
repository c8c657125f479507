// Package worker provides a key-partitioned worker pool for concurrent task
// processing with strict per-key ordering.
//
// # Overview
//
// KeyedPool routes every submitted item to one of a fixed number of workers by
// hashing the item's key (FNV-1a). Each worker owns a private FIFO queue and
// never steals work from siblings, so two guarantees hold:
//
//   - items that share a key execute strictly in submission order, one at a time
//   - items with different keys execute concurrently across the pool
//
// The rule engine uses this to serialize all trigger tasks for a single record
// (preventing interleaved tag/rating mutations from losing updates) while
// letting unrelated records proceed in parallel, without any global lock.
//
// # Usage
//
//	pool := worker.NewKeyedPool(16, 256,
//	    func(t Task) string { return t.RecordID },
//	    func(ctx context.Context, t Task) error { return handle(ctx, t) },
//	)
//	if err := pool.Start(ctx); err != nil { ... }
//	defer pool.Stop(10 * time.Second)
//
//	if err := pool.Submit(task); errors.Is(err, worker.ErrQueueFull) {
//	    // backpressure: nak the message so the stream redelivers it
//	}
//
// # Backpressure
//
// Submit is non-blocking. When a worker's queue is full the item is dropped and
// ErrQueueFull returned; callers consuming from a durable stream should nak so
// the item is redelivered rather than lost.
//
// # Metrics
//
// With WithMetricsRegistry the pool exports queue depth, submitted/processed/
// failed/dropped counters, and a processing-duration histogram labeled by status.
package worker
