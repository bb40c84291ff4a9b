package main

import (
	"fmt"
	"slices"

	"github.com/cybergodev/scorehider"
	"github.com/cybergodev/scorehider/internal"
	"github.com/spf13/cobra"
)

func newClassifyCmd(root *rootOptions) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "classify <score>",
		Short: "Show the tier a score falls in",
		Long: `Show which tier (good, mid, bad or none) a score earns under the
configured range table.

Examples:
  scorehider classify 1450
  scorehider classify 720 --category math
  scorehider classify --settings strict.json 1,380`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := scorehider.Category(category)
			if !slices.Contains(internal.Categories, cat) {
				return fmt.Errorf("unknown category %q", category)
			}
			score, ok := internal.ParseScore(args[0])
			if !ok {
				return fmt.Errorf("not a score: %q", args[0])
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}
			settings, err := root.settings(cfg)
			if err != nil {
				return err
			}
			table := scorehider.DefaultRangeTable()
			if settings != nil {
				table = settings.Ranges
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d %s: %s\n", score, cat, scorehider.Classify(table, cat, score))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", string(scorehider.CategoryTotal), "score category (total, reading, math, writing)")
	return cmd
}
