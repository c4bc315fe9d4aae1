// Package metrics holds the prometheus collectors of the activity pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "willwe"

// result label values
const (
	Inserted  = "inserted"
	Duplicate = "duplicate"
	Skipped   = "skipped"
	OK        = "ok"
	Failed    = "failed"
)

type Metrics struct {
	// ActivitiesWritten counts ingestion writes by event type and result
	ActivitiesWritten *prometheus.CounterVec
	// Backfills counts write-through fetches from the event source by result
	Backfills *prometheus.CounterVec
	// IngestErrors counts events dropped by the ingestion pipelines by stage
	IngestErrors *prometheus.CounterVec
	// Polls counts client poll attempts by result
	Polls *prometheus.CounterVec
}

// New creates the collectors and registers them on reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActivitiesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "activities_written_total",
			Help:      "Activity rows offered to the store, by event type and result.",
		}, []string{"event_type", "result"}),
		Backfills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "backfills_total",
			Help:      "Write-through fetches from the event source, by result.",
		}, []string{"result"}),
		IngestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "errors_total",
			Help:      "Events dropped by the ingestion pipelines, by stage.",
		}, []string{"stage"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "polls_total",
			Help:      "Client poll attempts, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.ActivitiesWritten, m.Backfills, m.IngestErrors, m.Polls)
	}
	return m
}

// Nop returns unregistered collectors for callers that do not export metrics.
func Nop() *Metrics {
	return New(nil)
}

func (m *Metrics) Written(eventType string, inserted bool) {
	result := Duplicate
	if inserted {
		result = Inserted
	}
	m.ActivitiesWritten.WithLabelValues(eventType, result).Inc()
}
