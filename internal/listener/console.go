package listener

import (
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// Console reads commands from a terminal while background output is printed
// above the prompt. During an interactive question background lines are held
// back and flushed afterwards.
type Console struct {
	rl *readline.Instance

	mu        sync.Mutex
	hold      bool
	heldLines []string
}

// Open starts a console on the process terminal.
func Open(prompt string) (*Console, error) {
	return OpenWith(&readline.Config{Prompt: prompt})
}

// OpenWith starts a console with a custom readline configuration.
func OpenWith(cfg *readline.Config) (*Console, error) {
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}
	return &Console{rl: rl}, nil
}

func (c *Console) Close() error {
	return c.rl.Close()
}

// ReadLine returns the next trimmed line, or io.EOF once input ends or is
// interrupted.
func (c *Console) ReadLine() (string, error) {
	line, err := c.rl.Readline()
	if err == readline.ErrInterrupt {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Println prints s above the prompt, or queues it while a question is open.
func (c *Console) Println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hold {
		c.heldLines = append(c.heldLines, s)
		return
	}
	c.printUnlocked(s)
}

func (c *Console) printUnlocked(s string) {
	_, _ = c.rl.Write([]byte(s + "\n"))
	c.rl.Refresh()
}

// AskYesNo asks question until it gets a yes or no answer. End of input
// counts as no.
func (c *Console) AskYesNo(question string) bool {
	c.mu.Lock()
	c.hold = true
	old := c.rl.Config.Prompt
	c.rl.SetPrompt(question + " [y/n] > ")
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.rl.SetPrompt(old)
		c.hold = false
		for _, s := range c.heldLines {
			c.printUnlocked(s)
		}
		c.heldLines = nil
	}()

	for {
		ans, err := c.ReadLine()
		if err != nil {
			return false
		}
		switch strings.ToLower(ans) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		c.mu.Lock()
		c.printUnlocked("Please answer y/n.")
		c.mu.Unlock()
	}
}
