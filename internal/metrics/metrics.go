// Package metrics provides Prometheus metrics for tree builds.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetree_builds_total",
			Help: "Total number of tree builds by outcome",
		},
		[]string{"status"},
	)

	buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filetree_build_duration_seconds",
			Help:    "Time to rebuild the tree from the record store",
			Buckets: prometheus.DefBuckets,
		},
	)

	recordsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filetree_records_loaded",
			Help: "Records read from the store by the last build",
		},
	)

	recordsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filetree_records_skipped_total",
			Help: "Records dropped because their path normalized to empty",
		},
	)

	treeNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filetree_tree_nodes",
			Help: "Nodes in the last built tree by kind",
		},
		[]string{"kind"},
	)

	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetree_publish_total",
			Help: "Serialized tree publications by sink and outcome",
		},
		[]string{"sink", "status"},
	)

	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetree_mutations_total",
			Help: "Record mutations by operation and outcome",
		},
		[]string{"op", "status"},
	)
)

// TreeSize is the node breakdown reported after a successful build.
type TreeSize struct {
	Files       int
	Directories int
	Synthetic   int
	Uncertain   int
}

// RecordBuild records a finished build.
func RecordBuild(err error, duration time.Duration, records, skipped int, size TreeSize) {
	buildDuration.Observe(duration.Seconds())
	if err != nil {
		buildsTotal.WithLabelValues("error").Inc()
		return
	}
	buildsTotal.WithLabelValues("ok").Inc()
	recordsLoaded.Set(float64(records))
	recordsSkipped.Add(float64(skipped))
	treeNodes.WithLabelValues("file").Set(float64(size.Files))
	treeNodes.WithLabelValues("directory").Set(float64(size.Directories))
	treeNodes.WithLabelValues("synthetic").Set(float64(size.Synthetic))
	treeNodes.WithLabelValues("uncertain").Set(float64(size.Uncertain))
}

// RecordPublish records one sink write.
func RecordPublish(sink string, err error) {
	publishTotal.WithLabelValues(sink, status(err)).Inc()
}

// RecordMutation records one store mutation.
func RecordMutation(op string, err error) {
	mutationsTotal.WithLabelValues(op, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
