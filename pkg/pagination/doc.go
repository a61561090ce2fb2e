// Package pagination walks the result pages of a lookup key.
//
// The parts API returns at most Limit results per query, so a key with more
// hits is fetched one page at a time. Each call to Controller.Continue makes
// at most one step:
//
//	controller, err := pagination.New(pagination.DefaultConfig(), manager, scheduler, logger)
//	switch controller.Continue("LM317T") {
//	case pagination.DecisionEnqueued:  // a new page is on its way
//	case pagination.DecisionRetrying:  // failed pages were reset for another attempt
//	case pagination.DecisionPending:   // a page is still awaiting or in flight
//	case pagination.DecisionExhausted: // every hit has been fetched
//	case pagination.DecisionCeiling:   // the next page would pass Config.MaxOffset
//	}
//
// A failed page is always retried before a new page is requested, and no
// page beyond Config.MaxOffset is ever enqueued.
package pagination
