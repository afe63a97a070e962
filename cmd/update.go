package cmd

import (
	"errors"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/yz4230/selfupdate/internal/usecase"
)

var updateFlags struct {
	noRestart bool
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fast-forward to the remote branch, run post-update steps and restart",
	RunE: func(cmd *cobra.Command, args []string) error {
		injector, _, err := newInjector()
		if err != nil {
			return err
		}
		result, err := do.MustInvoke[usecase.RunUpdateUsecase](injector).Execute(cmd.Context(), !updateFlags.noRestart)
		if err != nil {
			return err
		}
		if rootFlags.json {
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		} else {
			renderUpdate(cmd.OutOrStdout(), result)
		}
		if !result.OK {
			return errors.New("update failed: " + result.Error)
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateFlags.noRestart, "no-restart", false, "Apply the update but leave the restart to the operator")
}
