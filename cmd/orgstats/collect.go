package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ultralytics/stars/internal/store"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch every source and refresh the JSON snapshots",
	Long: `Fetches GitHub repository stats, PyPI downloads, Google Analytics
(when GA_CREDENTIALS_JSON is set) and Reddit subscribers, merges them with
the previous snapshots and writes github.json, pypi.json,
google_analytics.json, reddit.json and summary.json.`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().String("org", "", "GitHub organization (overrides ORG)")
	collectCmd.Flags().String("data-dir", "", "Snapshot directory (overrides DATA_DIR)")
}

func openHistory(ctx context.Context) (store.History, error) {
	history, err := store.Open(ctx, store.Config{
		SQLitePath:  cfg.HistoryDB,
		PostgresDSN: cfg.PGDSN,
		MaxConns:    cfg.PGMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return history, nil
}

func runCollect(cmd *cobra.Command, args []string) error {
	if org, _ := cmd.Flags().GetString("org"); org != "" {
		cfg.Org = org
	}
	dataDir := cfg.DataDir
	if d, _ := cmd.Flags().GetString("data-dir"); d != "" {
		dataDir = d
	}

	ctx, cancel := commandContext()
	defer cancel()

	history, err := openHistory(ctx)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	report, err := newCollector(history, dataDir).Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, githubLine(report.GitHub))
	fmt.Fprintln(out, pypiLine(report.PyPI))
	if report.Analytics != nil {
		fmt.Fprintln(out, analyticsLine(report.Analytics))
	}
	fmt.Fprintln(out, redditLine(report.Reddit))
	fmt.Fprintln(out, summaryLine(report.Summary))

	for _, e := range report.Exports {
		if !e.Success {
			logger.Warn("snapshot not written", zap.String("path", e.Path), zap.String("error", e.Error))
		}
	}
	return nil
}
