package prometheus

import (
	"strings"
	"testing"
	"time"

	"github.com/Swind/go-batch-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("batchscheduler", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("sched-a", 250*time.Millisecond)
	exporter.RecordTaskPanic("sched-a", "panic")
	exporter.RecordQueueDepth("sched-a", 7)
	exporter.RecordTaskRejected("sched-a", core.RejectShuttingDown)

	panicTotal := testutil.ToFloat64(exporter.panics.WithLabelValues("sched-a"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.depth.WithLabelValues("sched-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.rejected.WithLabelValues("sched-a", core.RejectShuttingDown))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	histCount, err := histogramSampleCount(exporter.durations.WithLabelValues("sched-a"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("batchscheduler", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("batchscheduler", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("sched-a", nil)
	second.RecordTaskPanic("sched-a", nil)

	got := testutil.ToFloat64(first.panics.WithLabelValues("sched-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

// TestMetricsExporter_WiredIntoScheduler runs a real batch through the exporter
// Main test items:
// 1. One duration sample per task
// 2. Panics are counted
// 3. Queue depth ends at zero
func TestMetricsExporter_WiredIntoScheduler(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	cfg := core.DefaultTaskSchedulerConfig()
	cfg.Name = "wired"
	cfg.Logger = core.NewNoOpLogger()
	cfg.Metrics = exporter
	cfg.PanicHandler = core.PanicHandlerFunc(func(string, int, any, []byte) {})
	s := core.NewTaskSchedulerWithConfig(1, cfg)
	defer s.Shutdown()

	tasks := core.Batch(func() {}, func() {}, func() {}, func() { panic("x") })
	if err := s.EnqueueTasks(tasks...); err != nil {
		t.Fatalf("EnqueueTasks failed: %v", err)
	}
	s.WaitForAllTasks()

	histCount, err := histogramSampleCount(exporter.durations.WithLabelValues("wired"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 4 {
		t.Fatalf("duration sample count = %d, want 4", histCount)
	}
	if got := testutil.ToFloat64(exporter.panics.WithLabelValues("wired")); got != 1 {
		t.Fatalf("panic total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.completed.WithLabelValues("wired")); got != 4 {
		t.Fatalf("completed total = %v, want 4", got)
	}
	if got := testutil.ToFloat64(exporter.depth.WithLabelValues("wired")); got != 0 {
		t.Fatalf("queue depth = %v, want 0", got)
	}
}

// TestMetricsExporter_ConstLabelsAndForget checks extra labels and series removal
// Main test items:
// 1. ConstLabels appear on exported series
// 2. Completed counts one per duration record
// 3. Forget removes only the named scheduler
func TestMetricsExporter_ConstLabelsAndForget(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("bench", reg, ExporterOptions{
		ConstLabels: prom.Labels{"host": "node-1"},
	})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("keep", time.Millisecond)
	exporter.RecordTaskDuration("keep", time.Millisecond)
	exporter.RecordTaskDuration("drop", time.Millisecond)
	exporter.RecordTaskRejected("drop", core.RejectNilTask)

	expected := `
# HELP bench_tasks_completed_total Tasks that returned from Run, panicking runs included.
# TYPE bench_tasks_completed_total counter
bench_tasks_completed_total{host="node-1",scheduler="drop"} 1
bench_tasks_completed_total{host="node-1",scheduler="keep"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "bench_tasks_completed_total"); err != nil {
		t.Fatalf("unexpected completed series: %v", err)
	}

	exporter.Forget("drop")

	if got := testutil.CollectAndCount(exporter.completed); got != 1 {
		t.Fatalf("completed series after Forget = %d, want 1", got)
	}
	if got := testutil.CollectAndCount(exporter.rejected); got != 0 {
		t.Fatalf("rejected series after Forget = %d, want 0", got)
	}

	exporter.RecordTaskDuration("drop", time.Millisecond)
	if got := testutil.ToFloat64(exporter.completed.WithLabelValues("drop")); got != 1 {
		t.Fatalf("completed after re-record = %v, want 1", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
