// Package batch decides when awaiting lookup records are sent.
//
// A Scheduler flushes every awaiting record of the cache as one request
// when either trigger fires:
//
//   - Size: the number of awaiting records reaches Config.BatchSize. The
//     flush runs synchronously in the goroutine that enqueued the record.
//   - Time: a single debounce timer armed by the first enqueue that did not
//     fill a batch. It is not re-armed while armed, so a steady trickle of
//     lookups is sent Config.Debounce after the first of them.
//
// Only one flush runs at a time. A flush that finds nothing awaiting is a
// logged no-op.
//
// # Metrics
//
//   - partmatch_flushes_total{trigger} - Flushes that sent a batch
//   - partmatch_batch_size - Records per batch
//   - partmatch_flush_duration_seconds - Time spent sending a batch
package batch
