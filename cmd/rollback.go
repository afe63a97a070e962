package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/do"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/yz4230/selfupdate/internal/updater"
	"github.com/yz4230/selfupdate/internal/usecase"
)

var rollbackFlags struct {
	yes       bool
	noRestart bool
}

var errRollbackAborted = errors.New("rollback aborted")

var rollbackCmd = &cobra.Command{
	Use:   "rollback [revision]",
	Short: "Hard-reset to a revision, by default the one before the last update",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		injector, _, err := newInjector()
		if err != nil {
			return err
		}
		target := ""
		if len(args) == 1 {
			target = strings.TrimSpace(args[0])
		}

		if !rollbackFlags.yes {
			state := do.MustInvoke[*updater.Controller](injector).State().Load()
			shown := lo.CoalesceOrEmpty(target, state.PreviousHead(), state.LastKnownGood(), "<unknown>")
			ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(),
				fmt.Sprintf("Hard-reset the working tree to %s? Uncommitted changes to tracked files are discarded. [y/N] ", shown))
			if err != nil {
				return err
			}
			if !ok {
				return errRollbackAborted
			}
		}

		result, err := do.MustInvoke[usecase.RollbackUsecase](injector).Execute(cmd.Context(), target, !rollbackFlags.noRestart)
		if err != nil {
			return err
		}
		if rootFlags.json {
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		} else {
			renderRollback(cmd.OutOrStdout(), result)
		}
		if !result.OK {
			return errors.New("rollback failed: " + result.Error)
		}
		return nil
	},
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func init() {
	rollbackCmd.Flags().BoolVarP(&rollbackFlags.yes, "yes", "y", false, "Do not ask for confirmation")
	rollbackCmd.Flags().BoolVar(&rollbackFlags.noRestart, "no-restart", false, "Roll back but leave the restart to the operator")
}
