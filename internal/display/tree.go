package display

import (
	"fmt"
	"strings"

	"workctl/internal/config"
)

const maxValueLength = 100

// FormatTree renders a tree description for stdout; long values are cut.
func FormatTree(root *config.TreeNode) string {
	return formatTreeInternal(root, maxValueLength)
}

// FormatTreeFull renders a tree description without truncation, for logs.
func FormatTreeFull(root *config.TreeNode) string {
	return formatTreeInternal(root, -1)
}

func formatTreeInternal(root *config.TreeNode, limit int) string {
	var sb strings.Builder
	supervisors, leaves := root.Count()
	sb.WriteString(fmt.Sprintf("Work tree (supervisors=%d, work=%d):\n", supervisors, leaves))
	sb.WriteString("--------------------------------------------------\n")
	writeNode(&sb, root, 0, limit)
	sb.WriteString("--------------------------------------------------")
	return sb.String()
}

func writeNode(sb *strings.Builder, n *config.TreeNode, depth, limit int) {
	indent := strings.Repeat("  ", depth)
	if n.IsLeaf() {
		sb.WriteString(fmt.Sprintf("%s- Work: %s (ID: %s)\n", indent, n.Work, n.ID))
		for _, kv := range [][2]string{{"duration", n.Duration}, {"message", n.Message}, {"shared", n.Shared}} {
			if kv[1] != "" {
				sb.WriteString(fmt.Sprintf("%s    %s: %s\n", indent, kv[0], formatValueForDisplay(kv[1], limit)))
			}
		}
		return
	}
	sb.WriteString(fmt.Sprintf("%s+ Supervisor: %s%s\n", indent, n.ID, budgetSummary(n)))
	for i := range n.Children {
		writeNode(sb, &n.Children[i], depth+1, limit)
	}
}

func budgetSummary(n *config.TreeNode) string {
	var parts []string
	for _, kv := range [][2]string{
		{"check", n.CheckInterval},
		{"run", n.RunFor},
		{"abort", n.AbortAfter},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+kv[1])
		}
	}
	if n.Iterations != nil {
		parts = append(parts, fmt.Sprintf("iterations=%d", *n.Iterations))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// Limit a value's stdout length (limit < 0 means no limit)
func formatValueForDisplay(value any, limit int) string {
	s := fmt.Sprintf("%v", value)
	s = strings.ReplaceAll(s, "\n", "\\n")
	if limit >= 0 && len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
