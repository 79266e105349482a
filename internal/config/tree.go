package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// TreeNode describes one node of a work tree. A node with Work set is a leaf
// running that workload; every other node is a supervisor.
type TreeNode struct {
	ID string `yaml:"id" toml:"id"`

	Work     string `yaml:"work,omitempty" toml:"work,omitempty"`
	Duration string `yaml:"duration,omitempty" toml:"duration,omitempty"`
	Message  string `yaml:"message,omitempty" toml:"message,omitempty"`
	// Leaves naming the same group share one argument.
	Shared string `yaml:"shared,omitempty" toml:"shared,omitempty"`

	CheckInterval string `yaml:"check_interval,omitempty" toml:"check_interval,omitempty"`
	RunFor        string `yaml:"run_for,omitempty" toml:"run_for,omitempty"`
	AbortAfter    string `yaml:"abort_after,omitempty" toml:"abort_after,omitempty"`
	Iterations    *int   `yaml:"iterations,omitempty" toml:"iterations,omitempty"`

	Children []TreeNode `yaml:"children,omitempty" toml:"children,omitempty"`
}

func (n TreeNode) IsLeaf() bool { return n.Work != "" }

var ErrUnknownFormat = errors.New("unknown tree file format")

// LoadTree reads a tree file; the extension selects YAML or TOML.
func LoadTree(path string) (*TreeNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read tree file: %w", err)
	}
	return ParseTree(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

func ParseTree(data []byte, format string) (*TreeNode, error) {
	var root TreeNode
	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&root); err != nil {
			return nil, fmt.Errorf("could not parse tree YAML: %w", err)
		}
	case "toml":
		md, err := toml.Decode(string(data), &root)
		if err != nil {
			return nil, fmt.Errorf("could not parse tree TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("could not parse tree TOML: unknown keys %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err := root.Validate(); err != nil {
		return nil, err
	}
	return &root, nil
}

// Validate checks ids are unique, budgets parse into values a supervisor can
// honour, and leaves have no children.
func (n *TreeNode) Validate() error {
	return n.validate(make(map[string]struct{}), "")
}

func (n *TreeNode) validate(ids map[string]struct{}, path string) error {
	where := path + "/" + n.ID
	if n.ID != "" {
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("tree node %s: duplicate id", where)
		}
		ids[n.ID] = struct{}{}
	}
	if n.IsLeaf() && len(n.Children) > 0 {
		return fmt.Errorf("tree node %s: work node cannot have children", where)
	}
	for _, f := range []struct {
		name  string
		value string
		check func(time.Duration) error
	}{
		{"duration", n.Duration, ValidateRunFor},
		{"check_interval", n.CheckInterval, ValidateCheckInterval},
		{"run_for", n.RunFor, ValidateRunFor},
		{"abort_after", n.AbortAfter, ValidateAbortAfter},
	} {
		if f.value == "" {
			continue
		}
		d, err := ParseDuration(f.value)
		if err != nil {
			return fmt.Errorf("tree node %s: %s: %w", where, f.name, err)
		}
		if err := f.check(d); err != nil {
			return fmt.Errorf("tree node %s: %s: %w", where, f.name, err)
		}
	}
	if n.Iterations != nil {
		if err := ValidateIterations(*n.Iterations); err != nil {
			return fmt.Errorf("tree node %s: iterations: %w", where, err)
		}
	}
	for i := range n.Children {
		if err := n.Children[i].validate(ids, where); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of supervisors and leaves in the tree.
func (n *TreeNode) Count() (supervisors, leaves int) {
	if n.IsLeaf() {
		return 0, 1
	}
	supervisors = 1
	for i := range n.Children {
		s, l := n.Children[i].Count()
		supervisors += s
		leaves += l
	}
	return supervisors, leaves
}
