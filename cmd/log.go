package cmd

import (
	"fmt"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/yz4230/selfupdate/internal/updater"
	"github.com/yz4230/selfupdate/internal/usecase"
)

var logFlags struct {
	lines  int
	follow bool
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the update log",
	RunE: func(cmd *cobra.Command, args []string) error {
		injector, _, err := newInjector()
		if err != nil {
			return err
		}
		tail, err := do.MustInvoke[usecase.ReadLogTailUsecase](injector).Execute(cmd.Context(), logFlags.lines)
		if err != nil {
			return err
		}
		if tail != "" {
			fmt.Fprintln(cmd.OutOrStdout(), tail)
		}
		if !logFlags.follow {
			return nil
		}
		return do.MustInvoke[*updater.Controller](injector).FollowLog(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	logCmd.Flags().IntVarP(&logFlags.lines, "lines", "n", 0, "Number of lines to show (0 uses log_tail_lines, negative shows everything)")
	logCmd.Flags().BoolVarP(&logFlags.follow, "follow", "f", false, "Keep printing new log lines until interrupted")
}
