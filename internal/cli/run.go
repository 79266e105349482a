package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"workctl/internal/display"
	"workctl/internal/runner"
	"workctl/internal/workload"
)

func newRunCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a work tree until its budgets run out",
		Long: `Runs the tree from --tree (YAML or TOML), or a small demo tree. The first
interrupt asks the tree to terminate, the second tells it to abort.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := loadTree(o.tree)
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), o.cfg)
			defer a.close()

			a.log.Debugf("Tree (FULL):\n%s", display.FormatTreeFull(tree))
			if workload.IsRisky(tree) {
				a.log.Warnf("Tree %s holds work that ignores termination and only stops when aborted", tree.ID)
			}
			wt, err := a.build(tree)
			if err != nil {
				return err
			}
			id, err := a.runner.Submit(wt.Root, wt.Key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[Run %s STARTED] tree %s\n", id, tree.ID)

			sig := make(chan os.Signal, 2)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			for {
				select {
				case <-sig:
					if cancelled, err := a.runner.CancelCurrent(); err == nil {
						fmt.Fprintf(out, "\n[Run %s CANCELLING] interrupt again to abort\n", cancelled)
					}
				case res, ok := <-a.runner.Results():
					if !ok {
						return fmt.Errorf("run %s: runner stopped", id)
					}
					fmt.Fprint(out, display.FormatResult(res))
					names := make([]string, 0, len(wt.Counters))
					for name := range wt.Counters {
						names = append(names, name)
					}
					sort.Strings(names)
					for _, name := range names {
						fmt.Fprintf(out, "- Counter %s: %d\n", name, wt.Counters[name].Value())
					}
					switch res.Status {
					case runner.StatusSucceeded, runner.StatusCancelled:
						return nil
					}
					return fmt.Errorf("run %s %s", res.RunID, res.Status)
				}
			}
		},
	}
	cmd.Flags().StringVarP(&o.tree, "tree", "t", "", "tree file (.yaml, .yml or .toml)")
	return cmd
}
