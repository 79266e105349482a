package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"workctl/internal/config"
)

// options are the flags shared by every command. Defaults come from the
// environment.
type options struct {
	cfg config.Config

	checkInterval string
	runFor        string
	abortAfter    string

	tree string
}

func newRootCmd(cfg config.Config) *cobra.Command {
	o := &options{cfg: cfg}

	rootCmd := &cobra.Command{
		Use:   "workctl",
		Short: "Run supervised trees of work under time and iteration budgets",
		Long: `workctl starts a tree of supervisors and work, lets it run until a budget
runs out, asks it to terminate, escalates to abort when termination takes too
long, and tears the tree down.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.resolve(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.checkInterval, "check-interval", cfg.CheckInterval.String(), "time between supervision ticks")
	flags.StringVar(&o.runFor, "run-for", formatBudget(cfg.RunFor), "run budget per supervisor (\"none\" disables it)")
	flags.StringVar(&o.abortAfter, "abort-after", cfg.AbortAfter.String(), "time granted to terminate before aborting")
	flags.IntVar(&o.cfg.Iterations, "iterations", cfg.Iterations, "running ticks per supervisor (-1 disables the budget)")
	flags.IntVar(&o.cfg.Workers, "workers", cfg.Workers, "work running at the same time")
	flags.StringVar(&o.cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve metrics and run status on this address")

	rootCmd.AddCommand(newRunCmd(o), newValidateCmd(o), newShellCmd(o))
	return rootCmd
}

func (o *options) resolve(cmd *cobra.Command) error {
	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"check-interval", o.checkInterval, &o.cfg.CheckInterval},
		{"run-for", o.runFor, &o.cfg.RunFor},
		{"abort-after", o.abortAfter, &o.cfg.AbortAfter},
	} {
		parsed, err := config.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("--%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return o.cfg.Validate()
}

func formatBudget(d time.Duration) string {
	if d < 0 {
		return "none"
	}
	return d.String()
}

// Execute runs the command line with defaults taken from cfg.
func Execute(cfg config.Config) error {
	return newRootCmd(cfg).Execute()
}
