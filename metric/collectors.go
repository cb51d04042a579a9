package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExecutorLabels are vector definitions for executor-level metrics.
var ExecutorLabels = []string{"executor", "kind"}

var RunDurationSummary = promauto.NewSummaryVec(
	prometheus.SummaryOpts{
		Name:       "partscan_run_duration_sec",
		Help:       "Query execution duration in seconds per executor",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	},
	ExecutorLabels,
)

var ItemsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "partscan_items_total",
		Help: "The number of result items read from the store per executor",
	},
	ExecutorLabels,
)

var RunningPartitionTasksGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "partscan_running_partition_tasks",
	Help: "The current number of in-flight partition-scoped queries",
})

var FeedRangesGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "partscan_feed_ranges",
	Help: "The number of feed ranges seen by the last enumeration",
})

var MismatchesCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "partscan_result_mismatches_total",
	Help: "The number of comparisons whose sequential and parallel results differ",
})

// LabelValues returns label values for executor-level metrics.
func LabelValues(executor, kind string) prometheus.Labels {
	return prometheus.Labels{
		"executor": executor,
		"kind":     kind,
	}
}
