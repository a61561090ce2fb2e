package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/partmatch-client/internal/cliconfig"
	"github.com/Sternrassler/partmatch-client/pkg/client"
	"github.com/Sternrassler/partmatch-client/pkg/lookup"
	"github.com/Sternrassler/partmatch-client/pkg/metrics"
	"github.com/Sternrassler/partmatch-client/pkg/partmatch"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve lookups over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := opts.logger()
			engine, cleanup, err := opts.newEngine(ctx, logger, client.DeclineCredentials{})
			if err != nil {
				return err
			}
			defer cleanup()

			return runServer(ctx, opts, engine, logger)
		},
	}

	cmd.Flags().StringVar(&opts.cfg.Listen, "listen", opts.cfg.Listen, "listen address")
	return cmd
}

func runServer(ctx context.Context, opts *options, engine *lookup.Engine, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              opts.cfg.Listen,
		Handler:           newMux(engine, opts.cfg.WaitTimeout, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("Starting partlookup server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if opts.configPath != "" && cliconfig.FileExists(opts.configPath) {
		w := cliconfig.NewWatcher(opts.configPath, opts.cfg, opts.changed, engine, logger)
		g.Go(func() error { return w.Run(gctx) })
	}

	return g.Wait()
}

func newMux(engine *lookup.Engine, waitTimeout time.Duration, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /v1/parts/{mpn}", partsHandler(engine, waitTimeout, logger))
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// partsResponse is the body of /v1/parts/{mpn}.
type partsResponse struct {
	MPN       string           `json:"mpn"`
	Status    string           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Exhausted bool             `json:"exhausted"`
	Parts     []partmatch.Part `json:"parts"`
}

// partsHandler answers GET /v1/parts/{mpn}. With wait=false it advances the
// lookup by one step and returns what is cached so far; otherwise it blocks
// until the lookup reaches an outcome.
func partsHandler(engine *lookup.Engine, waitTimeout time.Duration, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mpn := r.PathValue("mpn")
		q := r.URL.Query()

		wait := true
		if v := q.Get("wait"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "invalid wait parameter", http.StatusBadRequest)
				return
			}
			wait = b
		}

		if !wait {
			decision := engine.LookupOrContinue(mpn)
			status := http.StatusOK
			if !decision.Final() {
				status = http.StatusAccepted
			}
			writeJSON(w, status, partsResponse{
				MPN:       mpn,
				Status:    decision.String(),
				Message:   engine.LastError(mpn),
				Exhausted: engine.IsExhausted(mpn),
				Parts:     engine.Results(mpn),
			}, logger)
			return
		}

		match := lookup.AnyResult
		manufacturer, distributor := q.Get("manufacturer"), q.Get("distributor")
		switch {
		case distributor != "":
			match = lookup.DistributorMatch(manufacturer, distributor)
		case manufacturer != "":
			match = lookup.ManufacturerMatch(manufacturer)
		}

		ctx, cancel := context.WithTimeout(r.Context(), waitTimeout)
		defer cancel()

		out, err := engine.Wait(ctx, mpn, match)
		if err != nil {
			writeJSON(w, http.StatusGatewayTimeout, partsResponse{
				MPN:     mpn,
				Status:  "timeout",
				Message: err.Error(),
				Parts:   engine.Results(mpn),
			}, logger)
			return
		}

		status := http.StatusOK
		if out.Status == lookup.StatusFailed {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, partsResponse{
			MPN:       mpn,
			Status:    out.Status.String(),
			Message:   out.Message,
			Exhausted: engine.IsExhausted(mpn),
			Parts:     out.Results,
		}, logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn().Err(err).Msg("Failed to write response")
	}
}
