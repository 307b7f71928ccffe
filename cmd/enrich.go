package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/enrichment"
)

func newEnrichCmd() *cobra.Command {
	var (
		id      string
		ids     []string
		pending int
		only    string
	)
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enriches stored products with prices, reviews, images and articles",
		Example: `  spirits enrich --id 0190c6c4-...
  spirits enrich --ids a,b,c --only prices
  spirits enrich --pending 20`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modes := 0
			for _, set := range []bool{id != "", len(ids) > 0, pending > 0} {
				if set {
					modes++
				}
			}
			if modes != 1 {
				return errors.New("exactly one of --id, --ids or --pending is required")
			}

			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			svc := a.Enrichment()
			flags := svc.DefaultFlags()
			if only != "" {
				if flags, err = enrichment.ParseOnly(only); err != nil {
					return fmt.Errorf("parse --only: %w", err)
				}
			}

			var results []enrichment.Result
			switch {
			case id != "":
				results = []enrichment.Result{svc.EnrichByID(cmd.Context(), id, flags)}
			case len(ids) > 0:
				results = svc.EnrichByIDs(cmd.Context(), ids, flags)
			default:
				if results, err = svc.EnrichPending(cmd.Context(), pending, flags); err != nil {
					return fmt.Errorf("enrich pending: %w", err)
				}
			}
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d enrichments failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "product ID to enrich")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "product IDs to enrich")
	cmd.Flags().IntVar(&pending, "pending", 0, "enrich up to N pending products")
	cmd.Flags().StringVar(&only, "only", "", "restrict to one category: prices, reviews, images or articles")
	return cmd
}
