package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDiscoverCmd() *cobra.Command {
	var (
		categories []string
		queries    int
		maxTargets int
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Runs one discovery pass per category",
		Long: `Issues the next due search queries for each category, ranks the organic
results into discovery targets and records new URLs. Searches stop as soon
as the search API budget is exhausted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			known := a.Categories()
			if len(categories) == 0 {
				categories = known
			}
			for _, c := range categories {
				if !slices.Contains(known, c) {
					return fmt.Errorf("unknown category %q (known: %v)", c, known)
				}
			}

			w := a.Worker()
			wc := w.Config()
			wc.QueriesPerRun = queries
			wc.MaxTargets = maxTargets
			w = w.WithConfig(wc)

			summaries, err := w.RunCategories(cmd.Context(), categories)
			if err != nil {
				return fmt.Errorf("run discovery: %w", err)
			}
			for _, s := range summaries {
				a.Logger().Info("category discovered",
					zap.String("category", s.Category),
					zap.Int("new_urls", s.NewURLs),
					zap.Int("products_created", s.ProductsCreated),
				)
			}
			return printJSON(cmd.OutOrStdout(), summaries)
		},
	}
	cmd.Flags().StringSliceVar(&categories, "category", nil, "categories to run (default: all configured)")
	cmd.Flags().IntVar(&queries, "queries", 0, "queries per category (default: discovery.queries_per_run)")
	cmd.Flags().IntVar(&maxTargets, "max-targets", 0, "targets kept per search (default: discovery.max_targets)")
	return cmd
}
