package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "pricer",
		Short:        "Token USD price resolver",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	resolveCmd := &cobra.Command{
		Use:   "resolve [token...]",
		Short: "Resolve token prices once and print them as JSON lines",
		RunE:  runResolve,
	}
	addCommonFlags(resolveCmd)
	resolveCmd.Flags().StringSlice("token", nil, "token addresses (comma-separated)")

	root.AddCommand(resolveCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh token prices on an interval and store them",
		RunE:  runWatch,
	}
	addCommonFlags(watchCmd)
	watchCmd.Flags().StringSlice("token", nil, "token addresses (comma-separated)")
	watchCmd.Flags().Duration("interval", 30*time.Second, "refresh interval")
	watchCmd.Flags().Bool("once", false, "run a single cycle and exit")
	watchCmd.Flags().String("out", "./data/prices.jsonl", "output JSONL path (empty disables)")
	watchCmd.Flags().String("state", "./data/watch_state.json", "checkpoint file used without Postgres")
	watchCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	watchCmd.Flags().String("metrics-addr", "", "metrics listen address (e.g. :9102)")

	root.AddCommand(watchCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve token prices over HTTP",
		RunE:  runServe,
	}
	addCommonFlags(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN serving /v1/price/{token}/latest")

	root.AddCommand(serveCmd)

	poolCmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect a liquidity pool and value its share token",
		RunE:  runPool,
	}
	addCommonFlags(poolCmd)
	poolCmd.Flags().String("pool", "", "pool (share token) address")
	poolCmd.Flags().Bool("price", true, "also resolve the share price")

	root.AddCommand(poolCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "EVM JSON-RPC URL")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("cache-backend", "", "result cache backend (memory, redis)")
	cmd.Flags().String("redis-addr", "", "Redis address; selects the redis cache backend")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
