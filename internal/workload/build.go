package workload

import (
	"errors"
	"fmt"
	"time"

	"workctl/internal/config"
	"workctl/internal/control"
)

var ErrLeafRoot = errors.New("tree root must be a supervisor")

// Tree is a built work tree.
type Tree struct {
	Root     *control.Supervisor
	Key      *control.DisposeKey
	Counters map[string]*Counter
}

// Build turns a tree description into control nodes owned by key. Supervisors
// start from defaults and the budget of their parent; fields set in the tree
// override them. opts apply to every supervisor.
func (r *Registry) Build(root *config.TreeNode, key *control.DisposeKey, defaults control.Budget, opts ...control.Option) (*Tree, error) {
	if root.IsLeaf() {
		return nil, ErrLeafRoot
	}
	if err := root.Validate(); err != nil {
		return nil, err
	}
	if err := r.Validate(root); err != nil {
		return nil, err
	}
	t := &Tree{Key: key, Counters: make(map[string]*Counter)}
	s, err := r.supervisor(t, root, defaults, opts)
	if err != nil {
		return nil, err
	}
	t.Root = s
	return t, nil
}

func (r *Registry) supervisor(t *Tree, n *config.TreeNode, parent control.Budget, opts []control.Option) (*control.Supervisor, error) {
	b, err := budgetFor(n, parent)
	if err != nil {
		return nil, err
	}
	s := control.NewSupervisor(n.ID, t.Key, append(append([]control.Option(nil), opts...), control.WithBudget(b))...)
	for i := range n.Children {
		c := &n.Children[i]
		var child control.ControlNode
		if c.IsLeaf() {
			child, err = r.leaf(t, c)
		} else {
			child, err = r.supervisor(t, c, b, opts)
		}
		if err != nil {
			return nil, err
		}
		if err := s.Add(child); err != nil {
			return nil, fmt.Errorf("add %s to %s: %w", child.ID(), s.ID(), err)
		}
	}
	return s, nil
}

func (r *Registry) leaf(t *Tree, n *config.TreeNode) (*control.Node, error) {
	d, _ := r.Lookup(n.Work)
	args := &Args{Message: n.Message}
	if n.Duration != "" {
		dur, err := config.ParseDuration(n.Duration)
		if err != nil {
			return nil, fmt.Errorf("node %s: duration: %w", n.ID, err)
		}
		args.Duration = dur
	}
	if n.Shared != "" {
		c, ok := t.Counters[n.Shared]
		if !ok {
			c = NewCounter(n.Shared)
			t.Counters[n.Shared] = c
		}
		args.Counter = c
	}
	return control.NewWork(n.ID, t.Key, args, d.Entry), nil
}

func budgetFor(n *config.TreeNode, b control.Budget) (control.Budget, error) {
	fields := []struct {
		value string
		dst   *time.Duration
	}{
		{n.CheckInterval, &b.CheckInterval},
		{n.RunFor, &b.RunFor},
		{n.AbortAfter, &b.AbortAfter},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := config.ParseDuration(f.value)
		if err != nil {
			return b, fmt.Errorf("node %s: %w", n.ID, err)
		}
		*f.dst = d
	}
	if n.Iterations != nil {
		b.Iterations = *n.Iterations
	}
	return b, nil
}
