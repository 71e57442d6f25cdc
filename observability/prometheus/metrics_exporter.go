package prometheus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Swind/go-batch-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

const unknownLabel = "unknown"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	// DurationBuckets overrides prom.DefBuckets for task_duration_seconds.
	DurationBuckets []float64

	// ConstLabels are attached to every series, e.g. {"host": "..."}.
	ConstLabels prom.Labels
}

// MetricsExporter implements core.Metrics on Prometheus collectors. Every
// series is labelled by scheduler name; rejections also carry the reason.
type MetricsExporter struct {
	durations *prom.HistogramVec
	completed *prom.CounterVec
	panics    *prom.CounterVec
	rejected  *prom.CounterVec
	depth     *prom.GaugeVec

	// series caches the children of each scheduler so the per-task hot path
	// skips the label lookup.
	series sync.Map // scheduler name -> *schedulerSeries
}

type schedulerSeries struct {
	duration  prom.Observer
	completed prom.Counter
	panics    prom.Counter
	depth     prom.Gauge
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates the collectors and registers them with reg
// (prom.DefaultRegisterer when nil). Collectors already registered under the
// same names are adopted, so several exporters can share one registry.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "batchscheduler"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	scheduler := []string{"scheduler"}
	counter := func(name, help string, labels []string) *prom.CounterVec {
		return prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: opts.ConstLabels,
		}, labels)
	}

	m := &MetricsExporter{
		durations: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace:   namespace,
			Name:        "task_duration_seconds",
			Help:        "Time spent in Task.Run, panicking runs included.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, scheduler),
		completed: counter("tasks_completed_total", "Tasks that returned from Run, panicking runs included.", scheduler),
		panics:    counter("task_panics_total", "Tasks whose Run panicked.", scheduler),
		rejected:  counter("tasks_rejected_total", "Tasks refused at submission or discarded at shutdown.", []string{"scheduler", "reason"}),
		depth: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace:   namespace,
			Name:        "queue_depth",
			Help:        "Tasks waiting to be claimed by a worker.",
			ConstLabels: opts.ConstLabels,
		}, scheduler),
	}

	var err error
	if m.durations, err = registerCollector(reg, m.durations); err != nil {
		return nil, err
	}
	for _, vec := range []**prom.CounterVec{&m.completed, &m.panics, &m.rejected} {
		if *vec, err = registerCollector(reg, *vec); err != nil {
			return nil, err
		}
	}
	if m.depth, err = registerCollector(reg, m.depth); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MetricsExporter) seriesFor(schedulerName string) *schedulerSeries {
	name := normalizeLabel(schedulerName, unknownLabel)
	if s, ok := m.series.Load(name); ok {
		return s.(*schedulerSeries)
	}
	s, _ := m.series.LoadOrStore(name, &schedulerSeries{
		duration:  m.durations.WithLabelValues(name),
		completed: m.completed.WithLabelValues(name),
		panics:    m.panics.WithLabelValues(name),
		depth:     m.depth.WithLabelValues(name),
	})
	return s.(*schedulerSeries)
}

// RecordTaskDuration observes the run time and counts the task as completed;
// the scheduler calls it exactly once per finished task.
func (m *MetricsExporter) RecordTaskDuration(schedulerName string, duration time.Duration) {
	if m == nil {
		return
	}
	s := m.seriesFor(schedulerName)
	s.duration.Observe(duration.Seconds())
	s.completed.Inc()
}

func (m *MetricsExporter) RecordTaskPanic(schedulerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.seriesFor(schedulerName).panics.Inc()
}

func (m *MetricsExporter) RecordQueueDepth(schedulerName string, depth int) {
	if m == nil {
		return
	}
	m.seriesFor(schedulerName).depth.Set(float64(depth))
}

func (m *MetricsExporter) RecordTaskRejected(schedulerName string, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(schedulerName, unknownLabel), normalizeLabel(reason, unknownLabel)).Inc()
}

// Forget drops every series of a scheduler, e.g. after it was shut down
// for good. Later records for the name start from zero.
func (m *MetricsExporter) Forget(schedulerName string) {
	if m == nil {
		return
	}
	name := normalizeLabel(schedulerName, unknownLabel)
	m.series.Delete(name)
	labels := prom.Labels{"scheduler": name}
	m.durations.DeletePartialMatch(labels)
	m.completed.DeletePartialMatch(labels)
	m.panics.DeletePartialMatch(labels)
	m.rejected.DeletePartialMatch(labels)
	m.depth.DeletePartialMatch(labels)
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// registerCollector registers collector, or returns the collector of the
// same type that already holds its descriptors.
func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prom.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return collector, err
	}
	existing, ok := already.ExistingCollector.(T)
	if !ok {
		return collector, fmt.Errorf("collector type mismatch for %T", collector)
	}
	return existing, nil
}
