package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-batch-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
// *core.TaskScheduler satisfies it.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

var _ SchedulerSnapshotProvider = (*core.TaskScheduler)(nil)

// SnapshotPoller periodically exports scheduler Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	queued     *prom.GaugeVec
	active     *prom.GaugeVec
	unfinished *prom.GaugeVec
	workers    *prom.GaugeVec
	completed  *prom.GaugeVec
	panicked   *prom.GaugeVec
	running    *prom.GaugeVec

	stateMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "batchscheduler",
			Name:      name,
			Help:      help,
		}, []string{"scheduler"})
	}

	p := &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]SchedulerSnapshotProvider),
		queued:     gauge("scheduler_queued", "Tasks waiting in the queue."),
		active:     gauge("scheduler_active", "Tasks currently inside Run."),
		unfinished: gauge("scheduler_unfinished", "Submitted tasks not yet finished."),
		workers:    gauge("scheduler_workers", "Live worker pool size."),
		completed:  gauge("scheduler_completed_total", "Completed task count snapshot."),
		panicked:   gauge("scheduler_panicked_total", "Panicked task count snapshot."),
		running:    gauge("scheduler_running", "Worker pool state (1=running, 0=stopped)."),
	}

	for _, vec := range []**prom.GaugeVec{
		&p.queued, &p.active, &p.unfinished, &p.workers, &p.completed, &p.panicked, &p.running,
	} {
		registered, err := registerCollector(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}

	return p, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// RemoveScheduler stops exporting the named scheduler and deletes its series.
func (p *SnapshotPoller) RemoveScheduler(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	delete(p.schedulers, name)
	p.schedulersMu.Unlock()

	for _, vec := range []*prom.GaugeVec{p.queued, p.active, p.unfinished, p.workers, p.completed, p.panicked, p.running} {
		vec.DeleteLabelValues(name)
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.started {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.started {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.started = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce exports one snapshot of every registered scheduler.
func (p *SnapshotPoller) CollectOnce() {
	p.schedulersMu.RLock()
	defer p.schedulersMu.RUnlock()

	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.queued.WithLabelValues(name).Set(float64(stats.Queued))
		p.active.WithLabelValues(name).Set(float64(stats.Active))
		p.unfinished.WithLabelValues(name).Set(float64(stats.Unfinished))
		p.workers.WithLabelValues(name).Set(float64(stats.Workers))
		p.completed.WithLabelValues(name).Set(float64(stats.Completed))
		p.panicked.WithLabelValues(name).Set(float64(stats.Panicked))
		if stats.Running {
			p.running.WithLabelValues(name).Set(1)
		} else {
			p.running.WithLabelValues(name).Set(0)
		}
	}
}
