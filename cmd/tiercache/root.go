package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/agentuity/go-tiercache/cache"
	"github.com/agentuity/go-tiercache/config"
	"github.com/agentuity/go-tiercache/env"
	"github.com/agentuity/go-tiercache/telemetry"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
)

var errNotFound = errors.New("not found")

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tiercache",
		Short:         "Inspect and modify a tiered cache described by a YAML config",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "path to the cache config (env TIERCACHE_CONFIG, default tiercache.yaml)")
	flags.StringSliceP("namespace", "n", nil, "namespace path, repeat or comma separate segments")
	flags.String("env-file", "", "dotenv file loaded before the config is expanded")
	flags.String("log-level", "", "log level (env TIERCACHE_LOG_LEVEL, default warn)")
	flags.String("otlp-url", "", "export cache spans to this OTLP/HTTP endpoint (env TIERCACHE_OTLP_URL)")
	flags.String("otlp-token", "", "bearer token for the OTLP endpoint (env TIERCACHE_OTLP_TOKEN)")

	root.AddCommand(
		newGetCommand(),
		newSetCommand(),
		newContainsCommand(),
		newTTLCommand(),
		newDeleteCommand(),
		newFlushCommand(),
		newStatsCommand(),
	)
	return root
}

// withCache builds the configured stack, runs fn against it and closes it.
func withCache(cmd *cobra.Command, fn func(ctx context.Context, c cache.Cache, namespace []string) error) error {
	if file := env.FlagOrEnv(cmd, "env-file", "TIERCACHE_ENV_FILE", ""); file != "" {
		if err := env.Apply(file); err != nil {
			return errors.Wrap(err, "loading env file")
		}
	}
	cfg, err := config.Load(env.FlagOrEnv(cmd, "config", "TIERCACHE_CONFIG", "tiercache.yaml"))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	log := env.NewLogger(cmd)
	opts := []config.BuildOption{config.WithLogger(log)}
	if otlpURL := env.FlagOrEnv(cmd, "otlp-url", "TIERCACHE_OTLP_URL", ""); otlpURL != "" {
		token := env.FlagOrEnv(cmd, "otlp-token", "TIERCACHE_OTLP_TOKEN", "")
		provider, shutdown, err := telemetry.NewTracerProvider(ctx, log, otlpURL, token, "tiercache")
		if err != nil {
			return err
		}
		defer shutdown()
		cfg.Tracing = true
		opts = append(opts, config.WithTracerProvider(provider))
	}
	c, err := config.Build(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	namespace, _ := cmd.Flags().GetStringSlice("namespace")
	runErr := fn(ctx, c, namespace)
	if err := c.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func printValue(out io.Writer, val any) error {
	if enc, ok := val.(cache.Encoded); ok {
		decoded, err := cache.Decode[any](enc)
		if err != nil {
			return err
		}
		val = decoded
	}
	switch v := val.(type) {
	case string:
		_, err := fmt.Fprintln(out, v)
		return err
	case []byte:
		_, err := fmt.Fprintln(out, string(v))
		return err
	}
	buf, err := json.Marshal(val)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(buf))
	return err
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a cached value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache, ns []string) error {
				val, found, err := c.Fetch(ctx, args[0], ns...)
				if err != nil {
					return err
				}
				if !found {
					return errors.Wrapf(errNotFound, "%s", args[0])
				}
				return printValue(cmd.OutOrStdout(), val)
			})
		},
	}
}

// parseLifetime maps the --ttl flag: empty uses the cache default, "0" or
// "never" stores forever.
func parseLifetime(s string) (time.Duration, error) {
	switch s {
	case "":
		return cache.DefaultLifetime, nil
	case "0", "never":
		return cache.NoExpiry, nil
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid ttl %q", s)
	}
	if d <= 0 {
		return 0, errors.Newf("invalid ttl %q, use delete to remove an entry", s)
	}
	return d, nil
}

func newSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <id> <value>",
		Short: "Store a value in every tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttlFlag, _ := cmd.Flags().GetString("ttl")
			lifetime, err := parseLifetime(ttlFlag)
			if err != nil {
				return err
			}
			var value any = args[1]
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				var parsed any
				if err := json.Unmarshal([]byte(args[1]), &parsed); err != nil {
					return errors.Wrap(err, "invalid json value")
				}
				value = parsed
			}
			return withCache(cmd, func(ctx context.Context, c cache.Cache, ns []string) error {
				return c.Save(ctx, args[0], value, lifetime, ns...)
			})
		},
	}
	cmd.Flags().String("ttl", "", `lifetime such as 90s, 2h or 1d; "never" stores forever, empty uses the default`)
	cmd.Flags().Bool("json", false, "parse the value as JSON")
	return cmd
}

func newContainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "contains <id>",
		Short: "Report whether an id is cached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache, ns []string) error {
				ok, err := c.Contains(ctx, args[0], ns...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func newTTLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ttl <id>",
		Short: "Print the remaining lifetime of an id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache, ns []string) error {
				ttl, found, err := c.TimeToLive(ctx, args[0], ns...)
				if err != nil {
					return err
				}
				if !found {
					return errors.Wrapf(errNotFound, "%s", args[0])
				}
				if ttl == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "never")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), str2duration.String(ttl.Round(time.Second)))
				return nil
			})
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Remove ids from every tier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache, ns []string) error {
				for _, id := range args {
					if err := c.Delete(ctx, id, ns...); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newFlushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Remove everything in --namespace, or everything at all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache, ns []string) error {
				return c.Flush(ctx, ns...)
			})
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print per tier statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache, _ []string) error {
				stats, err := c.Stats(ctx)
				if err != nil {
					return err
				}
				out := json.NewEncoder(cmd.OutOrStdout())
				out.SetIndent("", "  ")
				return out.Encode(stats)
			})
		},
	}
}
