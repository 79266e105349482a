package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"workctl/internal/display"
	"workctl/internal/listener"
	"workctl/internal/workload"
)

const shellHelp = `Commands:
  run [file]     run a tree file, or the demo tree
  cancel [id]    cancel the current run; cancelling twice aborts it
  status         show the current run
  work           list the work a tree can name
  exit           quit`

func newShellCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Submit and cancel runs interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console, err := listener.Open("workctl> ")
			if err != nil {
				return fmt.Errorf("failed to init terminal input: %w", err)
			}
			defer console.Close()

			a := newApp(cmd.Context(), o.cfg)
			defer a.close()
			return runShell(console, a)
		},
	}
}

// shellConsole is the part of listener.Console the shell uses.
type shellConsole interface {
	ReadLine() (string, error)
	Println(s string)
	AskYesNo(question string) bool
}

func runShell(console shellConsole, a *app) error {
	go func() {
		for res := range a.runner.Results() {
			console.Println(display.FormatResult(res))
		}
	}()

	console.Println("Type 'help' for commands, 'exit' or Ctrl+C to quit.")
	for {
		line, err := console.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}

		switch strings.ToLower(fields[0]) {
		case "exit", "quit":
			if id, err := a.runner.CancelCurrent(); err == nil {
				console.Println(fmt.Sprintf("[Run %s CANCELLING]", id))
			}
			return nil
		case "help":
			console.Println(shellHelp)
		case "work":
			console.Println(a.registry.Describe())
		case "status":
			st, ok := a.runner.Current()
			if !ok {
				console.Println("No run in progress.")
				continue
			}
			console.Println(fmt.Sprintf("Run %s (root %s): %s", st.RunID, st.RootID, st.State))
		case "cancel":
			if _, err := a.runner.Cancel(arg); err != nil {
				console.Println(fmt.Sprintf("[Cancel FAILED] %v", err))
			}
		case "run":
			submitFromShell(console, a, arg)
		default:
			console.Println(fmt.Sprintf("Unknown command %q. Type 'help' for commands.", fields[0]))
		}
	}
}

func submitFromShell(console shellConsole, a *app, path string) {
	tree, err := loadTree(path)
	if err != nil {
		console.Println(fmt.Sprintf("[Tree FAILED] %v", err))
		return
	}
	if workload.IsRisky(tree) {
		console.Println(display.FormatTree(tree))
		if !console.AskYesNo("This tree holds work that only stops when aborted. Run it?") {
			console.Println("[Run REJECTED]")
			return
		}
	}
	wt, err := a.build(tree)
	if err != nil {
		console.Println(fmt.Sprintf("[Tree FAILED] %v", err))
		return
	}
	id, err := a.runner.Submit(wt.Root, wt.Key)
	if err != nil {
		console.Println(fmt.Sprintf("[Submit FAILED] %v", err))
		return
	}
	console.Println(fmt.Sprintf("[Run %s ACCEPTED] tree %s", id, tree.ID))
}
