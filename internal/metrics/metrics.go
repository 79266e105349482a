package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "workctl"
	subsystem = "control"
)

var (
	tickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Processing time of one supervision tick",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"supervisor"},
	)

	dispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatched_total",
			Help:      "Children handed to an execution context",
		},
		[]string{"supervisor"},
	)

	terminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "terminations_requested_total",
			Help:      "Terminations requested because a budget ran out or termination was asked for",
		},
		[]string{"supervisor"},
	)

	abortsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "aborts_total",
			Help:      "Subtrees escalated to abort after the abort budget ran out",
		},
		[]string{"supervisor"},
	)

	supervisionFaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "supervision_faults_total",
			Help:      "Supervisors disabled by a fault in their tick",
		},
		[]string{"supervisor"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "runs_total",
			Help:      "Finished tree runs by outcome",
		},
		[]string{"outcome"},
	)
)

// Handler serves the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveTick(supervisor string, d time.Duration) {
	tickDuration.WithLabelValues(supervisor).Observe(d.Seconds())
}

func AddDispatched(supervisor string, n int) {
	if n <= 0 {
		return
	}
	dispatchedTotal.WithLabelValues(supervisor).Add(float64(n))
}

func IncTerminationRequested(supervisor string) {
	terminationsTotal.WithLabelValues(supervisor).Inc()
}

func IncAborted(supervisor string) {
	abortsTotal.WithLabelValues(supervisor).Inc()
}

func IncSupervisionFault(supervisor string) {
	supervisionFaultsTotal.WithLabelValues(supervisor).Inc()
}

func IncRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}

// NodeMetrics is the final state of one node of a run.
type NodeMetrics struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id,omitempty"`
	Depth      int    `json:"depth"`
	Supervisor bool   `json:"supervisor"`
	Started    bool   `json:"started"`
	Terminated bool   `json:"terminated"`
	Aborting   bool   `json:"aborting"`
	Err        string `json:"err,omitempty"`
}

type RunMetrics struct {
	RunID      string        `json:"run_id"`
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end"`
	DurationMs int64         `json:"duration_ms"`
	Succeeded  bool          `json:"succeeded"`
	Nodes      []NodeMetrics `json:"nodes"`
}

// Compute derived fields for a run.
func (r *RunMetrics) Finalize() {
	r.DurationMs = r.End.Sub(r.Start).Milliseconds()
}

// Faulted returns the nodes that reported a fault.
func (r *RunMetrics) Faulted() []NodeMetrics {
	var out []NodeMetrics
	for _, n := range r.Nodes {
		if n.Err != "" {
			out = append(out, n)
		}
	}
	return out
}
