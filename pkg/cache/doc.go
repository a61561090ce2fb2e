// Package cache holds the lookup records of the batching engine.
//
// Every distinct (key, offset) pair owns exactly one Record. Records move
// through a small state machine:
//
//	Awaiting ──flush──▶ InFlight ──response──▶ Completed
//	    ▲                   │
//	    │                   └──error──▶ Failed
//	    └────── Enqueue (explicit retry) ───┘
//
// Records are never deleted, so completed pages are replayed from memory for
// the lifetime of the process.
//
// # Basic Usage
//
//	manager := cache.NewManager(cache.DefaultConfig(), logger)
//
//	// Register a lookup of the first page
//	manager.Enqueue("LM317T", 0)
//
//	// Hand awaiting records to the transport
//	batch := manager.TakeAwaiting()
//
//	// Write results back
//	manager.Complete(batch[0].Key, batch[0].Offset, parts, hits, "")
//
//	// Read accumulated results
//	parts := manager.Get("lm317t")
//	done := manager.IsExhausted("lm317t")
//
// Keys are normalized (whitespace removed, lower case) on every call, so
// "LM 317T" and "lm317t" address the same records.
//
// # Waiting
//
// Changed returns a channel closed on the next change to a key. It replaces
// sleep-and-poll loops:
//
//	ch := manager.Changed(key)
//	if !satisfied(manager.Get(key)) {
//		<-ch
//	}
//
// # Metrics
//
//   - partmatch_cache_records{state} - Records by state
//   - partmatch_enqueue_total{outcome} - Enqueue calls by outcome
//   - partmatch_cache_reads_total{result} - Result reads (hit/miss)
package cache
