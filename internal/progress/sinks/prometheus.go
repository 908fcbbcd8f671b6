package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/streetview-harvester/internal/progress"
)

// PrometheusSink exports harvest progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsActive    *prometheus.GaugeVec
	runDuration   *prometheus.HistogramVec

	units        *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	panoramas    prometheus.Counter
	batchRate    *prometheus.GaugeVec

	checkpoints *prometheus.CounterVec
	contained   *prometheus.GaugeVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_runs_started_total",
			Help: "Pass invocations started.",
		}, []string{"pass"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_runs_completed_total",
			Help: "Pass invocations completed partitioned by result.",
		}, []string{"pass", "result"}),
		runsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_runs_active",
			Help: "Pass invocations currently running.",
		}, []string{"pass"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 21600},
		}, []string{"pass", "result"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_units_total",
			Help: "Processed units partitioned by pass and outcome.",
		}, []string{"pass", "outcome"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_unit_duration_seconds",
			Help:    "Processing time per unit.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"pass"}),
		panoramas: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_panoramas_found_total",
			Help: "Panoramas returned by the search service, before deduplication.",
		}),
		batchRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_batch_units_per_second",
			Help: "Throughput of the most recent completed batch.",
		}, []string{"pass"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_sample_checkpoints_total",
			Help: "Sampler checkpoints partitioned by zone.",
		}, []string{"zone"}),
		contained: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_sample_contained_points",
			Help: "Interior points found so far in the current polygon.",
		}, []string{"zone"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.units,
		s.unitDuration,
		s.panoramas,
		s.batchRate,
		s.checkpoints,
		s.contained,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	pass := string(evt.Pass)
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(pass).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.WithLabelValues(pass).Inc()
		}
	case progress.StageRunDone:
		s.finishRun(evt, "success")
	case progress.StageRunError:
		s.finishRun(evt, "error")
	case progress.StageUnitDone:
		s.units.WithLabelValues(pass, string(evt.Outcome)).Inc()
		if evt.Dur > 0 {
			s.unitDuration.WithLabelValues(pass).Observe(evt.Dur.Seconds())
		}
		if evt.Found > 0 {
			s.panoramas.Add(float64(evt.Found))
		}
	case progress.StageBatchDone:
		s.batchRate.WithLabelValues(pass).Set(evt.Rate())
	case progress.StageSampleCheckpoint:
		s.checkpoints.WithLabelValues(evt.Zone).Inc()
		s.contained.WithLabelValues(evt.Zone).Set(float64(evt.Found))
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	pass := string(evt.Pass)
	s.runsCompleted.WithLabelValues(pass, result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(pass, result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsActive.WithLabelValues(pass).Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
