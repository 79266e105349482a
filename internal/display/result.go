package display

import (
	"fmt"
	"strings"

	"workctl/internal/metrics"
	"workctl/internal/runner"
)

func FormatResult(res runner.Result) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run %s (root %s): %s\n", res.RunID, res.RootID, res.Status))
	if res.Error != "" {
		sb.WriteString(fmt.Sprintf("- Error: %s\n", res.Error))
	}
	if res.Teardown != "" {
		sb.WriteString(fmt.Sprintf("- Teardown: %s\n", res.Teardown))
	}
	sb.WriteString(FormatRunMetrics(res.Metrics))
	return sb.String()
}

func FormatRunMetrics(rm *metrics.RunMetrics) string {
	if rm == nil {
		return "No metrics available.\n"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("- Total: %d ms  (success=%v)\n", rm.DurationMs, rm.Succeeded))
	for _, n := range rm.Nodes {
		kind := "work"
		if n.Supervisor {
			kind = "supervisor"
		}
		sb.WriteString(fmt.Sprintf("  %s%-12s %-12s [%s]",
			strings.Repeat("  ", n.Depth), n.ID, "("+kind+")", nodeState(n)))
		if n.Err != "" {
			sb.WriteString("  err: " + formatValueForDisplay(n.Err, maxValueLength))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func nodeState(n metrics.NodeMetrics) string {
	var flags []string
	if n.Started {
		flags = append(flags, "started")
	}
	if n.Terminated {
		flags = append(flags, "terminated")
	}
	if n.Aborting {
		flags = append(flags, "aborting")
	}
	if len(flags) == 0 {
		return "idle"
	}
	return strings.Join(flags, ",")
}
