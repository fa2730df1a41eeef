package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ultralytics/stars/internal/config"
	"github.com/ultralytics/stars/internal/pipeline"
	"github.com/ultralytics/stars/internal/store"
	"github.com/ultralytics/stars/pkg/utils"
)

var (
	// Global flags
	configPath string
	envFile    string
	verbose    bool
	timeout    time.Duration

	// Resolved in PersistentPreRunE
	logger *zap.Logger
	cfg    config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "orgstats",
	Short: "Collect adoption metrics for a GitHub organization",
	Long: `orgstats polls GitHub, PyPI, Google Analytics and Reddit and keeps
one JSON snapshot per source plus a summary.json under the data directory.

A zero from an upstream API never overwrites a previously known non-zero
value, so a flaky source cannot wipe published counters.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath, envFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if !cmd.Flags().Changed("timeout") {
			timeout = cfg.Timeout
		}
		logger.Debug("config loaded",
			zap.String("org", cfg.Org),
			zap.String("data_dir", cfg.DataDir),
			zap.String("config_file", cfg.ConfigPath),
			zap.Duration("timeout", timeout))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default: .env when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall command timeout (overrides ORGSTATS_TIMEOUT)")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(orgStarsCmd)
	rootCmd.AddCommand(countStarsCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
		os.Exit(1)
	}
}

// errorMessage is what a failed command prints before exiting 1
func errorMessage(err error) string {
	if errors.Is(err, pipeline.ErrMissingToken) {
		return "Set GITHUB_TOKEN in env"
	}
	return err.Error()
}

// commandContext bounds a command by --timeout and cancels it on SIGINT/SIGTERM
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// newCollector wires the pipeline from the resolved config
func newCollector(history store.History, dataDir string) *pipeline.Collector {
	client := pipeline.NewClient(pipeline.ClientOptions{
		Retry:     cfg.Retry(),
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
	}, logger)
	return pipeline.NewCollector(pipeline.Options{
		Spec:    cfg.CollectSpec(),
		Client:  client,
		Pacing:  cfg.Pacing(),
		Output:  utils.NewOutputManager(dataDir),
		History: history,
		Logger:  logger,
	})
}
