package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/onsi/gomega"
)

const yamlTree = `
id: root
run_for: 30ms
check_interval: 10ms
abort_after: 50ms
children:
  - id: a
    work: sleep
    duration: 1s
  - id: group
    iterations: 3
    children:
      - id: b
        work: count
        shared: counter
      - id: c
        work: count
        shared: counter
`

const tomlTree = `
id = "root"
run_for = "30ms"

[[children]]
id = "a"
work = "sleep"
duration = "1s"

[[children]]
id = "group"
iterations = 3

  [[children.children]]
  id = "b"
  work = "count"
  shared = "counter"

  [[children.children]]
  id = "c"
  work = "count"
  shared = "counter"
`

func TestParseTreeFormats(t *testing.T) {
	for format, data := range map[string]string{"yaml": yamlTree, "toml": tomlTree} {
		t.Run(format, func(t *testing.T) {
			g := gomega.NewWithT(t)
			root, err := ParseTree([]byte(data), format)
			g.Expect(err).NotTo(gomega.HaveOccurred())
			g.Expect(root.ID).To(gomega.Equal("root"))
			g.Expect(root.RunFor).To(gomega.Equal("30ms"))
			g.Expect(root.Children).To(gomega.HaveLen(2))
			g.Expect(root.Children[0].IsLeaf()).To(gomega.BeTrue())

			group := root.Children[1]
			g.Expect(group.IsLeaf()).To(gomega.BeFalse())
			g.Expect(group.Iterations).NotTo(gomega.BeNil())
			g.Expect(*group.Iterations).To(gomega.Equal(3))
			g.Expect(group.Children[1].Shared).To(gomega.Equal("counter"))

			supervisors, leaves := root.Count()
			g.Expect(supervisors).To(gomega.Equal(2))
			g.Expect(leaves).To(gomega.Equal(3))
		})
	}
}

func TestParseTreeRejects(t *testing.T) {
	testCases := []struct {
		name   string
		format string
		data   string
	}{
		{name: "unknown format", format: "json", data: `{}`},
		{name: "unknown yaml key", format: "yaml", data: "id: root\nbudget: 1s\n"},
		{name: "unknown toml key", format: "toml", data: "id = \"root\"\nbudget = \"1s\"\n"},
		{name: "duplicate id", format: "yaml", data: "id: root\nchildren:\n  - id: x\n    work: sleep\n  - id: x\n    work: sleep\n"},
		{name: "leaf with children", format: "yaml", data: "id: root\nchildren:\n  - id: x\n    work: sleep\n    children:\n      - id: y\n        work: sleep\n"},
		{name: "bad duration", format: "yaml", data: "id: root\nrun_for: later\n"},
		{name: "abort budget none", format: "yaml", data: "id: root\nrun_for: 20ms\nabort_after: none\n"},
		{name: "abort budget minus one", format: "toml", data: "id = \"root\"\nabort_after = \"-1\"\n"},
		{name: "negative abort budget", format: "yaml", data: "id: root\nabort_after: -5ms\n"},
		{name: "check interval none", format: "yaml", data: "id: root\ncheck_interval: none\n"},
		{name: "zero check interval", format: "yaml", data: "id: root\ncheck_interval: 0s\n"},
		{name: "negative run budget", format: "yaml", data: "id: root\nrun_for: -5s\n"},
		{name: "iterations below minus one", format: "yaml", data: "id: root\niterations: -2\n"},
		{name: "nested bad budget", format: "yaml", data: "id: root\nchildren:\n  - id: sub\n    abort_after: unbounded\n    children:\n      - id: x\n        work: sleep\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTree([]byte(tc.data), tc.format); err == nil {
				t.Errorf("expected %s to be rejected", tc.name)
			}
		})
	}
}

func TestLoadTreeUsesExtension(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()

	yml := filepath.Join(dir, "tree.yml")
	g.Expect(os.WriteFile(yml, []byte(yamlTree), 0o600)).To(gomega.Succeed())
	root, err := LoadTree(yml)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(root.Children).To(gomega.HaveLen(2))

	txt := filepath.Join(dir, "tree.txt")
	g.Expect(os.WriteFile(txt, []byte(yamlTree), 0o600)).To(gomega.Succeed())
	_, err = LoadTree(txt)
	g.Expect(errors.Is(err, ErrUnknownFormat)).To(gomega.BeTrue())

	_, err = LoadTree(filepath.Join(dir, "missing.yaml"))
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestParseTreeAcceptsUnboundedRunBudget(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{name: "none", data: "id: root\nrun_for: none\niterations: -1\n"},
		{name: "minus one", data: "id: root\nrun_for: \"-1\"\n"},
		{name: "zero abort budget", data: "id: root\nabort_after: 0s\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTree([]byte(tc.data), "yaml"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestInvalidBudgetIsReported(t *testing.T) {
	_, err := ParseTree([]byte("id: root\nabort_after: none\n"), "yaml")
	if !errors.Is(err, ErrInvalidBudget) {
		t.Errorf("err = %v, want ErrInvalidBudget", err)
	}
}
