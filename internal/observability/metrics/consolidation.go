// Package metrics provides Prometheus collectors for the consolidation passes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Histogram bucket parameters shared by the duration metrics.
const (
	BucketStart1ms = 0.001
	BucketFactor2  = 2
	BucketCount15  = 15
)

// ConsolidationMetrics contains Prometheus metrics for grouping, track
// building and decision propagation.
type ConsolidationMetrics struct {
	registry *prometheus.Registry

	// Pass level metrics
	passesTotal  *prometheus.CounterVec
	passDuration *prometheus.HistogramVec

	// Work item metrics
	detectionsProcessedTotal *prometheus.CounterVec
	groupsCreatedTotal       prometheus.Counter
	tracksCreatedTotal       prometheus.Counter
	trajectoriesTotal        *prometheus.CounterVec
	gapFillFramesTotal       prometheus.Counter

	// Review propagation metrics
	decisionsPropagatedTotal *prometheus.CounterVec
	annotationsCreatedTotal  prometheus.Counter
	conflictTracksGauge      prometheus.Gauge

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewConsolidationMetrics creates and registers new consolidation metrics
func NewConsolidationMetrics(registry *prometheus.Registry) (*ConsolidationMetrics, error) {
	m := &ConsolidationMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *ConsolidationMetrics) initMetrics() error {
	m.passesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consolidation_passes_total",
			Help: "Total number of consolidation passes",
		},
		[]string{"pass", "status"}, // pass: group, regroup, rebuild, match, trajectory, propagate; status: success, error
	)

	m.passDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consolidation_pass_duration_seconds",
			Help:    "Time taken for consolidation passes",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"pass"},
	)

	m.detectionsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consolidation_detections_processed_total",
			Help: "Total number of detections processed per pass",
		},
		[]string{"pass"},
	)

	m.groupsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consolidation_groups_created_total",
			Help: "Total number of prediction groups created",
		},
	)

	m.tracksCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consolidation_tracks_created_total",
			Help: "Total number of camera object tracks created",
		},
	)

	m.trajectoriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consolidation_trajectories_total",
			Help: "Total number of clip trajectories by outcome",
		},
		[]string{"outcome"}, // kept, split_discarded, merged, too_short
	)

	m.gapFillFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consolidation_gap_fill_frames_total",
			Help: "Total number of frames sampled for gap-fill re-detection",
		},
	)

	m.decisionsPropagatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consolidation_decisions_propagated_total",
			Help: "Total number of review decisions applied by propagation",
		},
		[]string{"decision"}, // auto_approved, auto_rejected
	)

	m.annotationsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consolidation_annotations_created_total",
			Help: "Total number of annotation records created",
		},
	)

	m.conflictTracksGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "consolidation_conflict_tracks",
			Help: "Number of tracks currently flagged as conflict",
		},
	)

	m.collectors = []prometheus.Collector{
		m.passesTotal,
		m.passDuration,
		m.detectionsProcessedTotal,
		m.groupsCreatedTotal,
		m.tracksCreatedTotal,
		m.trajectoriesTotal,
		m.gapFillFramesTotal,
		m.decisionsPropagatedTotal,
		m.annotationsCreatedTotal,
		m.conflictTracksGauge,
	}

	return nil
}

// Describe implements the prometheus.Collector interface
func (m *ConsolidationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *ConsolidationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordPass records a completed pass with its outcome.
func (m *ConsolidationMetrics) RecordPass(pass, status string) {
	m.passesTotal.WithLabelValues(pass, status).Inc()
}

// RecordPassDuration records how long a pass took in seconds.
func (m *ConsolidationMetrics) RecordPassDuration(pass string, seconds float64) {
	m.passDuration.WithLabelValues(pass).Observe(seconds)
}

// RecordDetectionsProcessed adds to the processed-detections counter.
func (m *ConsolidationMetrics) RecordDetectionsProcessed(pass string, count int) {
	m.detectionsProcessedTotal.WithLabelValues(pass).Add(float64(count))
}

// RecordGroupCreated increments the created-groups counter.
func (m *ConsolidationMetrics) RecordGroupCreated() {
	m.groupsCreatedTotal.Inc()
}

// RecordTrackCreated increments the created-tracks counter.
func (m *ConsolidationMetrics) RecordTrackCreated() {
	m.tracksCreatedTotal.Inc()
}

// RecordTrajectory records a trajectory outcome.
func (m *ConsolidationMetrics) RecordTrajectory(outcome string) {
	m.trajectoriesTotal.WithLabelValues(outcome).Inc()
}

// RecordGapFillFrames adds to the sampled gap-fill frame counter.
func (m *ConsolidationMetrics) RecordGapFillFrames(count int) {
	m.gapFillFramesTotal.Add(float64(count))
}

// RecordDecisionPropagated records a propagated decision.
func (m *ConsolidationMetrics) RecordDecisionPropagated(decision string, count int) {
	m.decisionsPropagatedTotal.WithLabelValues(decision).Add(float64(count))
}

// RecordAnnotationCreated increments the created-annotations counter.
func (m *ConsolidationMetrics) RecordAnnotationCreated() {
	m.annotationsCreatedTotal.Inc()
}

// SetConflictTracks sets the current number of conflict tracks.
func (m *ConsolidationMetrics) SetConflictTracks(count int) {
	m.conflictTracksGauge.Set(float64(count))
}
