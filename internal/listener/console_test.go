package listener

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/chzyer/readline"
)

// syncBuffer is written by readline's own goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestConsole(t *testing.T, input string) (*Console, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	c, err := OpenWith(&readline.Config{
		Prompt:         "> ",
		Stdin:          io.NopCloser(strings.NewReader(input)),
		Stdout:         out,
		Stderr:         out,
		FuncIsTerminal: func() bool { return false },
	})
	if err != nil {
		t.Fatalf("OpenWith: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, out
}

func TestReadLineTrimsAndEnds(t *testing.T) {
	c, _ := newTestConsole(t, "  run demo  \n")

	line, err := c.ReadLine()
	if err != nil || line != "run demo" {
		t.Fatalf("ReadLine() = (%q, %v), want run demo", line, err)
	}
	if _, err := c.ReadLine(); err != io.EOF {
		t.Errorf("ReadLine at end = %v, want io.EOF", err)
	}
}

func TestAskYesNo(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "yes", input: "yes\n", expected: true},
		{name: "no", input: "n\n", expected: false},
		{name: "retries until answered", input: "maybe\ny\n", expected: true},
		{name: "end of input is no", input: "", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestConsole(t, tc.input)
			if got := c.AskYesNo("Proceed?"); got != tc.expected {
				t.Errorf("AskYesNo() = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestPrintlnIsHeldDuringQuestion(t *testing.T) {
	c, out := newTestConsole(t, "y\n")
	c.mu.Lock()
	c.hold = true
	c.mu.Unlock()

	c.Println("background line")
	if strings.Contains(out.String(), "background line") {
		t.Fatalf("line printed while held")
	}
	if len(c.heldLines) != 1 {
		t.Fatalf("held %d lines, want 1", len(c.heldLines))
	}

	c.AskYesNo("Proceed?")
	if !strings.Contains(out.String(), "background line") {
		t.Errorf("held line was not flushed after the question")
	}
}
