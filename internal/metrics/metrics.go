package metrics

import (
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	forkrt "github.com/Paintersrp/forkrun/internal/runtime"
)

var (
	registry = prometheus.NewRegistry()

	childrenSpawned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "forkrun",
		Name:      "children_spawned_total",
		Help:      "Total number of child processes spawned.",
	})

	childrenReplaced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "forkrun",
		Name:      "children_replaced_total",
		Help:      "Total number of children killed to make room for a replacement.",
	})

	childExits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forkrun",
		Name:      "child_exits_total",
		Help:      "Total number of reaped children by outcome and exit status.",
	}, []string{"outcome", "status"})

	childrenRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "forkrun",
		Name:      "children_running",
		Help:      "Number of spawned children that have not been reaped yet.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "forkrun",
		Name:      "build_info",
		Help:      "Build metadata for the running forkrun binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(childrenSpawned, childrenReplaced, childExits, childrenRunning, buildInfo)
}

// Registry returns the Prometheus registry containing all forkrun metrics.
func Registry() *prometheus.Registry {
	return registry
}

// Observe updates the metrics for a runtime event.
func Observe(evt forkrt.Event) {
	switch evt.Type {
	case forkrt.EventTypeSpawned:
		childrenSpawned.Inc()
		childrenRunning.Inc()
	case forkrt.EventTypeReplaced:
		childrenReplaced.Inc()
		childrenRunning.Dec()
	case forkrt.EventTypeExited:
		childExits.WithLabelValues("success", strconv.Itoa(evt.Status)).Inc()
		childrenRunning.Dec()
	case forkrt.EventTypeFailed:
		childExits.WithLabelValues("failure", strconv.Itoa(evt.Status)).Inc()
		childrenRunning.Dec()
	case forkrt.EventTypeLost:
		childExits.WithLabelValues("lost", strconv.Itoa(evt.Status)).Inc()
		childrenRunning.Dec()
	}
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
