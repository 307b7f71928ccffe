package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBudgetCmd() *cobra.Command {
	var api string
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Shows search API quota usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if api == "" {
				api = a.Config().Search.APIName
			}
			usage, err := a.Budget().Usage(cmd.Context(), api)
			if err != nil {
				return fmt.Errorf("budget usage: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), usage)
		},
	}
	cmd.Flags().StringVar(&api, "api", "", "search API name (default: search.api_name)")
	return cmd
}
