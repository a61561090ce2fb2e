// Command partlookup looks up electronic part numbers through the batching
// engine, either once from the command line or as a small HTTP service.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
