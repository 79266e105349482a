package workload

import (
	"fmt"
	"sort"
	"strings"

	"workctl/internal/config"
	"workctl/internal/control"
)

type Definition struct {
	Name        string
	Description string
	// Shared marks work that needs a counter group.
	Shared bool
	Entry  control.EntryPoint[*Args]
}

// Registry maps work names used in tree files to entry points.
type Registry struct {
	defs map[string]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.Name] = d
	}
	return r
}

// DefaultRegistry holds the built-in work.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Definition{Name: "sleep", Description: "Waits for `duration`, or until terminated when no duration is set.", Entry: Sleep},
		Definition{Name: "count", Description: "Increments the `shared` counter until terminated.", Shared: true, Entry: Count},
		Definition{Name: "fail", Description: "Waits for `duration`, then fails with `message`.", Entry: Fail},
		Definition{Name: "stubborn", Description: "Ignores termination for `duration`; stops when aborted.", Entry: Stubborn},
	)
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns the registered work names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe lists the registered work, one line each.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, n := range r.Names() {
		d := r.defs[n]
		fmt.Fprintf(&sb, "- `%s`: %s\n", d.Name, d.Description)
	}
	return sb.String()
}

// Validate checks that every leaf of the tree names registered work and that
// shared work belongs to a group.
func (r *Registry) Validate(n *config.TreeNode) error {
	if !n.IsLeaf() {
		for i := range n.Children {
			if err := r.Validate(&n.Children[i]); err != nil {
				return err
			}
		}
		return nil
	}
	d, ok := r.Lookup(n.Work)
	if !ok {
		return fmt.Errorf("work '%s' of node '%s' is not defined in the registry", n.Work, n.ID)
	}
	if d.Shared && n.Shared == "" {
		return fmt.Errorf("work '%s' of node '%s' is missing required key: 'shared'", n.Work, n.ID)
	}
	return nil
}
