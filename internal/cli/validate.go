package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"workctl/internal/config"
	"workctl/internal/control"
	"workctl/internal/display"
	"workctl/internal/workload"
)

func newValidateCmd(o *options) *cobra.Command {
	var listWork bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a tree file and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			registry := workload.DefaultRegistry()
			if listWork {
				fmt.Fprint(out, "AVAILABLE WORK:\n"+registry.Describe())
				return nil
			}
			if o.tree == "" {
				return fmt.Errorf("--tree is required")
			}
			tree, err := config.LoadTree(o.tree)
			if err != nil {
				return err
			}
			if _, err := registry.Build(tree, control.NewDisposeKey(), budgetFrom(o.cfg)); err != nil {
				return err
			}
			fmt.Fprintln(out, display.FormatTree(tree))
			if workload.IsRisky(tree) {
				fmt.Fprintln(out, "Warning: the tree holds work that only stops when aborted.")
			}
			fmt.Fprintf(out, "Tree %s is valid.\n", tree.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&o.tree, "tree", "t", "", "tree file (.yaml, .yml or .toml)")
	cmd.Flags().BoolVar(&listWork, "list-work", false, "list the work a tree can name")
	return cmd
}
