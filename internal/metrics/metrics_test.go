package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRunMetrics(t *testing.T) {
	start := time.Now()
	rm := &RunMetrics{
		Start: start,
		End:   start.Add(1500 * time.Millisecond),
		Nodes: []NodeMetrics{
			{ID: "root", Supervisor: true},
			{ID: "ok", Depth: 1},
			{ID: "bad", Depth: 1, Err: "boom"},
		},
	}
	rm.Finalize()

	if rm.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", rm.DurationMs)
	}
	faulted := rm.Faulted()
	if len(faulted) != 1 || faulted[0].ID != "bad" {
		t.Errorf("Faulted() = %+v, want only bad", faulted)
	}
}

func TestCounters(t *testing.T) {
	testCases := []struct {
		name  string
		bump  func()
		value func() float64
		want  float64
	}{
		{
			name:  "dispatched ignores non-positive counts",
			bump:  func() { AddDispatched("metrics-test", 3); AddDispatched("metrics-test", 0) },
			value: func() float64 { return testutil.ToFloat64(dispatchedTotal.WithLabelValues("metrics-test")) },
			want:  3,
		},
		{
			name:  "aborts",
			bump:  func() { IncAborted("metrics-test") },
			value: func() float64 { return testutil.ToFloat64(abortsTotal.WithLabelValues("metrics-test")) },
			want:  1,
		},
		{
			name:  "runs by outcome",
			bump:  func() { IncRun("metrics-test"); IncRun("metrics-test") },
			value: func() float64 { return testutil.ToFloat64(runsTotal.WithLabelValues("metrics-test")) },
			want:  2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.bump()
			if got := tc.value(); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
