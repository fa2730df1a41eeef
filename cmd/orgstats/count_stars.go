package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ultralytics/stars/internal/pipeline"
)

var (
	starDays  float64
	saveUsers bool
	reposFile string
	usersFile string
)

var countStarsCmd = &cobra.Command{
	Use:   "count-stars",
	Short: "Count stars given over a trailing window for repositories in repos.yaml",
	Long: `Reads "repositories:" (owner/name entries) from repos.yaml and counts the
stars each repository received over the last --days days.

With --save, every recent stargazer is looked up and those with a public
email are written to users.csv. Lookups are paced to stay under the GitHub
rate limit, so this is slow for popular repositories.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.ReposFile
		if reposFile != "" {
			path = reposFile
		}
		repos, err := pipeline.LoadRepoList(path)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		out := cmd.OutOrStdout()
		start := time.Now()
		fmt.Fprintf(out, "Counting stars for last %.1f days from %s\n\n", starDays, start.Format("02 January 2006"))

		windows, users, err := newCollector(nil, cfg.DataDir).CountStars(ctx, repos, pipeline.StarCountOptions{
			Token: cfg.GitHubToken,
			Days:  starDays,
			Save:  saveUsers,
		})
		if err != nil {
			return err
		}
		for _, w := range windows {
			fmt.Fprintln(out, starWindowLine(w))
		}
		fmt.Fprintf(out, "Done in %.1fs\n", time.Since(start).Seconds())

		if !saveUsers {
			return nil
		}
		result, err := pipeline.WriteStargazersCSV(usersFile, users)
		if err != nil {
			return err
		}
		logger.Debug("users exported", zap.String("path", result.Path), zap.Int("records", result.RecordCount))
		fmt.Fprintf(out, "%d users saved to %s\n", result.RecordCount, result.Path)
		return nil
	},
}

func init() {
	countStarsCmd.Flags().Float64Var(&starDays, "days", pipeline.DefaultStarDays, "Trailing days to analyze")
	countStarsCmd.Flags().BoolVar(&saveUsers, "save", false, "Save user info")
	countStarsCmd.Flags().StringVar(&reposFile, "repos", "", "Repository list (overrides REPOS_FILE)")
	countStarsCmd.Flags().StringVar(&usersFile, "users-file", "users.csv", "CSV file for --save")
}
