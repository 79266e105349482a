package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"workctl/internal/config"
)

const quickTree = `
id: quick
check_interval: 5ms
run_for: 20ms
children:
  - id: nap
    work: sleep
  - id: tally-1
    work: count
    shared: hits
  - id: tally-2
    work: count
    shared: hits
`

func writeTree(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd(config.Default())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	testCases := []struct {
		name        string
		args        func(t *testing.T) []string
		wantOutput  string
		expectError bool
	}{
		{
			name:       "valid tree",
			args:       func(t *testing.T) []string { return []string{"validate", "--tree", writeTree(t, "tree.yaml", quickTree)} },
			wantOutput: "Tree quick is valid.",
		},
		{
			name: "risky tree",
			args: func(t *testing.T) []string {
				return []string{"validate", "-t", writeTree(t, "tree.toml", "id = \"r\"\n[[children]]\nid = \"mule\"\nwork = \"stubborn\"\n")}
			},
			wantOutput: "only stops when aborted",
		},
		{
			name:       "list work",
			args:       func(t *testing.T) []string { return []string{"validate", "--list-work"} },
			wantOutput: "`stubborn`",
		},
		{
			name: "unknown work",
			args: func(t *testing.T) []string {
				return []string{"validate", "--tree", writeTree(t, "tree.yaml", "id: r\nchildren:\n  - id: x\n    work: dance\n")}
			},
			expectError: true,
		},
		{
			name:        "missing tree flag",
			args:        func(t *testing.T) []string { return []string{"validate"} },
			expectError: true,
		},
		{
			name:        "bad budget flag",
			args:        func(t *testing.T) []string { return []string{"validate", "--list-work", "--run-for", "soon"} },
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(tc.args(t)...)
			if tc.expectError {
				if err == nil {
					t.Errorf("expected an error, output:\n%s", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v\n%s", err, out)
			}
			if !strings.Contains(out, tc.wantOutput) {
				t.Errorf("output does not contain %q:\n%s", tc.wantOutput, out)
			}
		})
	}
}

func TestRunCommand(t *testing.T) {
	g := NewWithT(t)

	out, err := execute("run", "--tree", writeTree(t, "tree.yaml", quickTree))
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring("SUCCEEDED"))
	g.Expect(out).To(ContainSubstring("- Counter hits:"))

	failing := "id: r\ncheck_interval: 5ms\nrun_for: 20ms\nchildren:\n  - id: bad\n    work: fail\n"
	out, err = execute("run", "--tree", writeTree(t, "fail.yaml", failing))
	g.Expect(err).To(MatchError(ContainSubstring("FAILED")))
	g.Expect(out).To(ContainSubstring("err: work failed"))
}

func TestRunCommandDemoTree(t *testing.T) {
	out, err := execute("run")
	if err != nil {
		t.Fatalf("demo run failed: %v\n%s", err, out)
	}
	for _, id := range []string{"demo", "sleeper-1", "sleeper-2", "sleeper-3"} {
		if !strings.Contains(out, id) {
			t.Errorf("output is missing node %s:\n%s", id, out)
		}
	}
}

// scriptedConsole feeds the shell one line at a time and records output.
type scriptedConsole struct {
	lines   chan string
	answers []bool

	mu  sync.Mutex
	out []string
}

func (c *scriptedConsole) ReadLine() (string, error) {
	line, ok := <-c.lines
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (c *scriptedConsole) Println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, s)
}

func (c *scriptedConsole) AskYesNo(string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ans := c.answers[0]
	c.answers = c.answers[1:]
	return ans
}

func (c *scriptedConsole) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.out, "\n")
}

func TestShell(t *testing.T) {
	g := NewWithT(t)
	cfg := config.Default()
	console := &scriptedConsole{lines: make(chan string), answers: []bool{false}}
	a := newApp(context.Background(), cfg)

	done := make(chan error, 1)
	go func() {
		done <- runShell(console, a)
	}()

	console.lines <- "help"
	console.lines <- "status"
	console.lines <- "run " + writeTree(t, "risky.yaml", "id: r\nchildren:\n  - id: mule\n    work: stubborn\n")
	console.lines <- "run " + writeTree(t, "tree.yaml", quickTree)
	g.Eventually(console.output).WithTimeout(5 * time.Second).Should(ContainSubstring("Run "))
	g.Eventually(console.output).WithTimeout(5 * time.Second).Should(ContainSubstring("SUCCEEDED"))
	console.lines <- "cancel"
	console.lines <- "bogus"
	close(console.lines)

	g.Eventually(done).WithTimeout(5 * time.Second).Should(Receive(BeNil()))
	a.close()

	out := console.output()
	g.Expect(out).To(ContainSubstring("Commands:"))
	g.Expect(out).To(ContainSubstring("No run in progress."))
	g.Expect(out).To(ContainSubstring("[Run REJECTED]"))
	g.Expect(out).To(ContainSubstring("ACCEPTED"))
	g.Expect(out).To(ContainSubstring("[Cancel FAILED]"))
	g.Expect(out).To(ContainSubstring(`Unknown command "bogus"`))
}
