package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sternrassler/es-scroll-stream/internal/config"
)

// flagKeys binds command-line flags to configuration keys.
var flagKeys = map[string]string{
	"query":        "elasticsearch.query",
	"timeout":      "elasticsearch.timeout",
	"scroll":       "scroll.keep_alive",
	"strict":       "scroll.strict",
	"select":       "scroll.select",
	"clear":        "scroll.clear",
	"max-attempts": "retry.max_attempts",
	"redis-addr":   "redis.addr",
	"redis-db":     "redis.db",
	"run-id":       "redis.run_id",
	"resume":       "redis.resume",
	"metrics-addr": "metrics.addr",
	"log-level":    "logging.level",
	"log-pretty":   "logging.pretty",
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	var (
		cfgFile string
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "es-scroll [url]",
		Short: "Stream every hit of an Elasticsearch search as a JSON array",
		Long: `es-scroll opens a scroll search against an index or index pattern and
writes the _source of every hit to stdout as one JSON array, page by page,
without holding the result set in memory.

The array is closed only when the scroll completed; a failed run leaves it
open and exits non-zero. With --redis-addr the progress is checkpointed
after every page and --resume continues a run while its scroll context
is still alive.

Every flag can also be set in the config file or as ` + config.EnvPrefix + `_* environment
variable, e.g. ` + config.EnvPrefix + `_ELASTICSEARCH_URL.`,
		Example: `  es-scroll http://localhost:9200/logs-* --query '{"query":{"term":{"level":"error"}}}'
  es-scroll http://localhost:9200/logs --select message --scroll 2m
  es-scroll --config export.yaml --redis-addr localhost:6379 --run-id nightly --resume`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set("elasticsearch.url", args[0])
			}

			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}

			extra, err := parseHeaders(headers)
			if err != nil {
				return err
			}
			if len(extra) > 0 {
				if cfg.Elasticsearch.Headers == nil {
					cfg.Elasticsearch.Headers = make(map[string]string, len(extra))
				}
				for k, val := range extra {
					cfg.Elasticsearch.Headers[k] = val
				}
			}

			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.StringArrayVarP(&headers, "header", "H", nil, `request header as "Name: value", repeatable`)
	flags.StringP("query", "q", "", "initial search body as JSON object, or @file")
	flags.Duration("timeout", 0, "wait for response headers per attempt (default 30s)")
	flags.String("scroll", "", `scroll keep-alive, e.g. "1m" (default 30s)`)
	flags.Bool("strict", false, "fail when a page has hits but no scroll id")
	flags.String("select", "", "gjson path projected from every hit")
	flags.Bool("clear", true, "clear the scroll context when the run ends")
	flags.Int("max-attempts", 0, "attempts per request including the first (default 3)")
	flags.String("redis-addr", "", "Redis address for checkpoints")
	flags.Int("redis-db", 0, "Redis database for checkpoints")
	flags.String("run-id", "", "run identifier (default: random UUID)")
	flags.Bool("resume", false, "continue the checkpointed run named by --run-id")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("log-level", "", "log level: debug, info, warn, error, disabled (default info)")
	flags.Bool("log-pretty", false, "human-readable logs on stderr")

	if err := bindFlags(v, flags); err != nil {
		panic(err)
	}

	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// parseHeaders converts "Name: value" pairs.
func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}
