package cmd

import (
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/yz4230/selfupdate/internal/usecase"
)

var historyFlags struct {
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded updates and rollbacks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		injector, _, err := newInjector()
		if err != nil {
			return err
		}
		deps, err := do.MustInvoke[usecase.ListDeploymentsUsecase](injector).Execute(cmd.Context(), historyFlags.limit)
		if err != nil {
			return err
		}
		if rootFlags.json {
			return writeJSON(cmd.OutOrStdout(), deps)
		}
		renderDeployments(cmd.OutOrStdout(), deps)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "l", usecase.DefaultDeploymentsLimit, "Maximum number of entries")
}
