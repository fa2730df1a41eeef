package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recent collection runs, or show one run with its errors",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		history, err := openHistory(ctx)
		if err != nil {
			return err
		}
		if history == nil {
			return errors.New("run history is disabled: set HISTORY_DB or PG_DSN")
		}
		defer history.Close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			run, err := history.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, runLine(*run))
			names := make([]string, 0, len(run.Metrics.Sources))
			for name := range run.Metrics.Sources {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				m := run.Metrics.Sources[name]
				fmt.Fprintf(out, "  %-10s %-9s records=%d restored=%d %s\n", name, m.Status, m.Records, m.Restored, m.Error)
			}
			errs, err := history.RunErrors(ctx, run.ID)
			if err != nil {
				return err
			}
			for _, e := range errs {
				fmt.Fprintf(out, "  ! %s [%s] %s\n", e.Timestamp.Format("15:04:05"), e.Source, e.Message)
			}
			return nil
		}

		runs, err := history.ListRuns(ctx, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "no runs recorded")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintln(out, runLine(r))
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list (0 for all)")
}
