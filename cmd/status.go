package cmd

import (
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/yz4230/selfupdate/internal/usecase"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the remote branch has new commits",
	RunE: func(cmd *cobra.Command, args []string) error {
		injector, _, err := newInjector()
		if err != nil {
			return err
		}
		status, err := do.MustInvoke[usecase.GetUpdateStatusUsecase](injector).Execute(cmd.Context())
		if err != nil {
			return err
		}
		if rootFlags.json {
			return writeJSON(cmd.OutOrStdout(), status)
		}
		renderStatus(cmd.OutOrStdout(), status)
		return nil
	},
}
