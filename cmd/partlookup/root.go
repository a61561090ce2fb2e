package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sternrassler/partmatch-client/internal/cliconfig"
	"github.com/Sternrassler/partmatch-client/pkg/client"
	"github.com/Sternrassler/partmatch-client/pkg/logging"
	"github.com/Sternrassler/partmatch-client/pkg/lookup"
	"github.com/Sternrassler/partmatch-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// options holds the resolved configuration of one invocation.
type options struct {
	configPath string
	cfg        cliconfig.Config
	changed    map[string]bool
}

func newRootCmd() *cobra.Command {
	opts := &options{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:           "partlookup",
		Short:         "Batched electronic part lookups",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd.Flags())
		},
	}

	bindFlags(root.PersistentFlags(), opts)
	root.AddCommand(newQueryCmd(opts), newServeCmd(opts))
	return root
}

func bindFlags(fs *pflag.FlagSet, opts *options) {
	cfg := &opts.cfg
	fs.StringVar(&opts.configPath, "config", cliconfig.DefaultConfigPath(), "path to TOML config file")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "parts API key")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "parts API REST root")
	fs.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "timeout of one request attempt")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "lookups per batch")
	fs.DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "wait for more lookups before sending a partial batch")
	fs.IntVar(&cfg.PageLimit, "page-limit", cfg.PageLimit, "results per page")
	fs.IntVar(&cfg.MaxOffset, "max-offset", cfg.MaxOffset, "greatest page offset fetched per part number")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "request attempts per batch")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "delay between attempts")
	fs.StringVar(&cfg.ProxyURL, "proxy", cfg.ProxyURL, "HTTP proxy URL (default from HTTP_PROXY/HTTPS_PROXY)")
	fs.Float64Var(&cfg.RequestsPerSecond, "rps", cfg.RequestsPerSecond, "local request rate limit (0 = unlimited)")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "redis URL for shared rate limit state")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, error or off")
	fs.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "human-readable logs")
	fs.DurationVar(&cfg.WaitTimeout, "wait-timeout", cfg.WaitTimeout, "how long to wait for one part number")
}

// resolve layers the config file and environment under explicitly set flags.
func (o *options) resolve(fs *pflag.FlagSet) error {
	o.changed = map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { o.changed[f.Name] = true })

	if o.configPath != "" && cliconfig.FileExists(o.configPath) {
		fc, err := cliconfig.LoadFileConfig(o.configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", o.configPath, err)
		}
		if err := cliconfig.ApplyFileConfig(&o.cfg, fc, o.changed); err != nil {
			return err
		}
	} else if o.changed["config"] && o.configPath != "" {
		return fmt.Errorf("config file %s not found", o.configPath)
	}

	if err := cliconfig.ApplyEnvConfig(&o.cfg, o.changed); err != nil {
		return err
	}
	return o.cfg.Validate()
}

func (o *options) logger() zerolog.Logger {
	level, _ := logging.ParseLevel(o.cfg.LogLevel)
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Pretty = o.cfg.LogPretty
	lc.Output = os.Stderr
	return logging.Setup(lc)
}

// newEngine builds an engine from the resolved configuration. The returned
// cleanup closes the engine and the redis connection.
func (o *options) newEngine(ctx context.Context, logger zerolog.Logger, creds client.CredentialProvider) (*lookup.Engine, func(), error) {
	cfg := o.cfg.Engine()
	cfg.Logger = &logger
	cfg.Credentials = creds

	var rdb *redis.Client
	if o.cfg.RedisURL != "" {
		ropts, err := redis.ParseURL(o.cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(ropts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		cfg.RateLimitStore = ratelimit.NewRedisStore(rdb)
		logger.Info().Str("addr", ropts.Addr).Msg("Sharing rate limit state through redis")
	}

	engine, err := lookup.New(cfg)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		engine.Close()
		if rdb != nil {
			rdb.Close()
		}
	}
	return engine, cleanup, nil
}
