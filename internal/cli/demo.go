package cli

import "workctl/internal/config"

// DemoTree is run when no tree file is given: three cooperative sleepers
// under one supervisor that runs them for 30ms.
func DemoTree() *config.TreeNode {
	return &config.TreeNode{
		ID:            "demo",
		CheckInterval: "10ms",
		RunFor:        "30ms",
		AbortAfter:    "50ms",
		Children: []config.TreeNode{
			{ID: "sleeper-1", Work: "sleep"},
			{ID: "sleeper-2", Work: "sleep"},
			{ID: "sleeper-3", Work: "sleep"},
		},
	}
}
