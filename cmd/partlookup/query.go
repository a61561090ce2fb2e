package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Sternrassler/partmatch-client/pkg/client"
	"github.com/Sternrassler/partmatch-client/pkg/lookup"
	"github.com/Sternrassler/partmatch-client/pkg/partmatch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// queryResult is one line of query output.
type queryResult struct {
	MPN       string           `json:"mpn"`
	Status    string           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Note      string           `json:"note,omitempty"`
	Exhausted bool             `json:"exhausted"`
	Parts     []partmatch.Part `json:"parts"`
}

type queryFlags struct {
	manufacturer string
	distributor  string
	interactive  bool
	compact      bool
}

func newQueryCmd(opts *options) *cobra.Command {
	qf := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "query MPN [MPN...]",
		Short: "Look up part numbers and print the results as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var creds client.CredentialProvider = client.DeclineCredentials{}
			if qf.interactive {
				creds = newTerminalPrompt(os.Stdin, cmd.ErrOrStderr())
			}

			logger := opts.logger()
			engine, cleanup, err := opts.newEngine(ctx, logger, creds)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := runQuery(ctx, engine, args, qf, opts.cfg.WaitTimeout)
			if err != nil {
				return err
			}
			return writeResults(cmd.OutOrStdout(), results, qf.compact)
		},
	}

	cmd.Flags().StringVar(&qf.manufacturer, "manufacturer", "", "stop once a part of this manufacturer is found")
	cmd.Flags().StringVar(&qf.distributor, "distributor", "", "require an offer from this distributor")
	cmd.Flags().BoolVar(&qf.interactive, "interactive", false, "prompt for proxy credentials on the terminal")
	cmd.Flags().BoolVar(&qf.compact, "compact", false, "print one JSON document without indentation")
	return cmd
}

// runQuery waits for every part number concurrently; the engine batches the
// lookups into as few requests as the batch size allows. A part number that
// times out is reported, not returned as an error.
func runQuery(ctx context.Context, engine *lookup.Engine, mpns []string, qf *queryFlags, timeout time.Duration) ([]queryResult, error) {
	match := lookup.AnyResult
	switch {
	case qf.distributor != "":
		match = lookup.DistributorMatch(qf.manufacturer, qf.distributor)
	case qf.manufacturer != "":
		match = lookup.ManufacturerMatch(qf.manufacturer)
	}

	results := make([]queryResult, len(mpns))
	g, gctx := errgroup.WithContext(ctx)
	for i, mpn := range mpns {
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			out, err := engine.Wait(wctx, mpn, match)
			switch {
			case err == nil:
				results[i] = newQueryResult(engine, mpn, out)
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				results[i] = queryResult{
					MPN:     mpn,
					Status:  "timeout",
					Message: fmt.Sprintf("no result within %s", timeout),
					Parts:   engine.Results(mpn),
				}
			default:
				return fmt.Errorf("%s: %w", mpn, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func newQueryResult(engine *lookup.Engine, mpn string, out lookup.Outcome) queryResult {
	res := queryResult{
		MPN:       mpn,
		Status:    out.Status.String(),
		Message:   out.Message,
		Exhausted: engine.IsExhausted(mpn),
		Parts:     out.Results,
	}
	for _, rec := range engine.Records(mpn) {
		if rec.Note != "" {
			res.Note = rec.Note
		}
	}
	return res
}

func writeResults(w io.Writer, results []queryResult, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(results)
}
