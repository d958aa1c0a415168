// Package telemetry holds the process counters exported for node_exporter's
// textfile collector after a batch run.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is private to the toolkit so runs never pick up default process collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	ScenesImported = factory.NewCounter(prometheus.CounterOpts{
		Name: "dw_scenes_imported_total",
		Help: "Scenes written to the catalog",
	})

	ScenesLoaded = factory.NewCounter(prometheus.CounterOpts{
		Name: "dw_scenes_loaded_total",
		Help: "Scenes read from the catalog for processing",
	})

	IntervalsReduced = factory.NewCounter(prometheus.CounterOpts{
		Name: "dw_intervals_reduced_total",
		Help: "Intervals reduced to a single image",
	})

	IntervalsSkipped = factory.NewCounter(prometheus.CounterOpts{
		Name: "dw_intervals_skipped_total",
		Help: "Intervals skipped because no scene fell inside them",
	})

	CompositesBuilt = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "dw_composites_built_total",
		Help: "Label composites built by product",
	}, []string{"product"}) // product=mode|max_median

	SamplesDrawn = factory.NewCounter(prometheus.CounterOpts{
		Name: "dw_assessment_samples_total",
		Help: "Pixel samples drawn for accuracy assessment",
	})

	ReductionSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "dw_reduction_duration_seconds",
		Help:    "Time spent reducing one interval",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

// WriteTextfile writes every registered metric to path in the text exposition format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
