package display

import (
	"strings"
	"testing"

	"workctl/internal/config"
	"workctl/internal/metrics"
	"workctl/internal/runner"
)

func TestFormatTree(t *testing.T) {
	three := 3
	tree := &config.TreeNode{
		ID:     "root",
		RunFor: "30ms",
		Children: []config.TreeNode{
			{ID: "nap", Work: "sleep", Duration: "1s"},
			{ID: "group", Iterations: &three, Children: []config.TreeNode{
				{ID: "tally", Work: "count", Shared: "hits"},
			}},
		},
	}

	resultString := FormatTree(tree)

	if !strings.Contains(resultString, "Work tree (supervisors=2, work=2)") {
		t.Errorf("The tree output is missing the header counts.")
	}
	if !strings.Contains(resultString, "+ Supervisor: root (run=30ms)") {
		t.Errorf("The tree output is missing the root budget.")
	}
	if !strings.Contains(resultString, "- Work: sleep (ID: nap)") {
		t.Errorf("The tree output is missing the sleep work.")
	}
	if !strings.Contains(resultString, "+ Supervisor: group (iterations=3)") {
		t.Errorf("The tree output is missing the nested supervisor.")
	}
	if !strings.Contains(resultString, "shared: hits") {
		t.Errorf("The tree output is missing a work detail.")
	}
}

func TestFormatTree_WithLongMessage(t *testing.T) {
	longMessage := strings.Repeat("a", 200)
	tree := &config.TreeNode{
		ID:       "root",
		Children: []config.TreeNode{{ID: "loud", Work: "fail", Message: longMessage}},
	}

	resultString := FormatTree(tree)

	if !strings.Contains(resultString, "...") {
		t.Errorf("Expected long message to be truncated with '...', but it wasn't.")
	}
	if strings.Contains(resultString, longMessage) {
		t.Errorf("Expected long message to be truncated, but the full string was found.")
	}
	if !strings.Contains(FormatTreeFull(tree), longMessage) {
		t.Errorf("Expected the full tree output to keep the whole message.")
	}
}

func TestFormatResult(t *testing.T) {
	res := runner.Result{
		RunID:  "abcd1234",
		RootID: "root",
		Status: runner.StatusFailed,
		Metrics: &metrics.RunMetrics{
			DurationMs: 42,
			Nodes: []metrics.NodeMetrics{
				{ID: "root", Supervisor: true, Started: true, Terminated: true},
				{ID: "bad", Depth: 1, Started: true, Terminated: true, Err: "boom"},
				{ID: "idle", Depth: 1},
			},
		},
	}

	resultString := FormatResult(res)

	if !strings.Contains(resultString, "Run abcd1234 (root root): FAILED") {
		t.Errorf("The result output is missing the header.")
	}
	if !strings.Contains(resultString, "- Total: 42 ms") {
		t.Errorf("The result output is missing the duration.")
	}
	if !strings.Contains(resultString, "[started,terminated]  err: boom") {
		t.Errorf("The result output is missing the faulted node.")
	}
	if !strings.Contains(resultString, "[idle]") {
		t.Errorf("The result output is missing the idle node.")
	}
	if !strings.Contains(FormatRunMetrics(nil), "No metrics available.") {
		t.Errorf("Expected a placeholder for missing metrics.")
	}
}
