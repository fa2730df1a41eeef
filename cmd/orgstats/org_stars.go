package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var orgStarsCmd = &cobra.Command{
	Use:   "org-stars",
	Short: "Write the star counts of every public repository of the org",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if org, _ := cmd.Flags().GetString("org"); org != "" {
			cfg.Org = org
		}
		output := cfg.Output
		if o, _ := cmd.Flags().GetString("output"); o != "" {
			output = o
		}

		ctx, cancel := commandContext()
		defer cancel()

		doc, err := newCollector(nil, cfg.DataDir).CollectOrgStars(ctx, output)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), orgStarsLine(output, doc))
		return nil
	},
}

func init() {
	orgStarsCmd.Flags().String("org", "", "GitHub organization (overrides ORG)")
	orgStarsCmd.Flags().StringP("output", "o", "", "Output file (overrides OUTPUT)")
}
