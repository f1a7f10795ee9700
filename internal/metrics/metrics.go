// Package metrics holds the Prometheus collectors updated during a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/woozymasta/ipcareas/internal/merge"
)

const namespace = "ipcareas"

// Label values.
const (
	ResultOK      = "ok"
	ResultNoData  = "no_data"
	ResultError   = "error"
	ResultFailed  = "failed"
	OutcomeAdded  = "added"
	OutcomeUpdate = "updated"
	OutcomeSkip   = "skipped"
)

// Metrics is a set of collectors bound to a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	MergeFeatures    *prometheus.CounterVec
	Fetches          *prometheus.CounterVec
	SimplifyFailures *prometheus.CounterVec
	DatasetFeatures  *prometheus.GaugeVec
	Countries        *prometheus.CounterVec
	PublishedObjects prometheus.Counter
	LastRunTimestamp prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MergeFeatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_features_total",
			Help:      "Features handed to the merge engine by source and outcome",
		}, []string{"source", "outcome"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Remote area requests by result",
		}, []string{"result"}),
		SimplifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simplify_failures_total",
			Help:      "Features left unsimplified by reason",
		}, []string{"reason"}),
		DatasetFeatures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_features",
			Help:      "Features written per dataset",
		}, []string{"dataset"}),
		Countries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "countries_total",
			Help:      "Processed countries by result",
		}, []string{"result"}),
		PublishedObjects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_objects_total",
			Help:      "Artefacts uploaded to object storage",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}

	m.Registry.MustRegister(
		m.MergeFeatures,
		m.Fetches,
		m.SimplifyFailures,
		m.DatasetFeatures,
		m.Countries,
		m.PublishedObjects,
		m.LastRunTimestamp,
	)

	return m
}

// ObserveMerge records the outcome of one merge call.
func (m *Metrics) ObserveMerge(source string, st merge.Stats) {
	m.MergeFeatures.WithLabelValues(source, OutcomeAdded).Add(float64(st.Added))
	m.MergeFeatures.WithLabelValues(source, OutcomeUpdate).Add(float64(st.Updated))
	m.MergeFeatures.WithLabelValues(source, OutcomeSkip).Add(float64(st.Skipped))
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
