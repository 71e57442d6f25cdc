package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-batch-scheduler/config"
	"github.com/Swind/go-batch-scheduler/core"
	obs "github.com/Swind/go-batch-scheduler/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "submit batches of counting tasks and wait for each batch",

		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "worker count, <= 0 for one per logical core"},
			&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Value: 1000, Usage: "tasks per batch"},
			&cli.IntFlag{Name: "batches", Aliases: []string{"b"}, Value: 1, Usage: "number of batches"},
			&cli.DurationFlag{Name: "task-duration", Usage: "time each task sleeps"},
			&cli.StringFlag{Name: "order", Usage: "queue order, fifo or lifo"},
			&cli.BoolFlag{Name: "pin", Usage: "pin each worker thread to one CPU"},
			&cli.StringFlag{Name: "log-file", Usage: "write logs to a rotated file"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
		},

		Action: RunAction,
	}
}

// flagOverrides maps explicitly set flags onto config keys.
func flagOverrides(c *cli.Context) map[string]any {
	overrides := make(map[string]any)
	set := func(flag, key string, value any) {
		if c.IsSet(flag) {
			overrides[key] = value
		}
	}
	set("workers", "scheduler.workers", c.Int("workers"))
	set("order", "scheduler.queue-order", c.String("order"))
	set("pin", "scheduler.pin-workers", c.Bool("pin"))
	set("log-file", "logging.file", c.String("log-file"))
	set("log-format", "logging.format", c.String("log-format"))
	set("metrics-addr", "metrics.addr", c.String("metrics-addr"))
	return overrides
}

func RunAction(c *cli.Context) error {
	tasks, batches := c.Int("tasks"), c.Int("batches")
	if tasks < 0 || batches < 1 {
		return cli.Exit("tasks must be >= 0 and batches >= 1", 1)
	}

	cfg, err := config.Load(c.String("config"), flagOverrides(c))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	logger, closer, err := cfg.Logging.NewLogger()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer closer.Close()

	var metrics core.Metrics
	var poller *obs.SnapshotPoller
	if cfg.Metrics.Addr != "" {
		reg := prom.NewRegistry()
		exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		poller, err = obs.NewSnapshotPoller(reg, cfg.Metrics.PollInterval)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		metrics = exporter

		stop := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer stop()
	}

	s := core.NewTaskSchedulerWithConfig(cfg.Scheduler.Workers, cfg.TaskSchedulerConfig(logger, metrics))
	if poller != nil {
		poller.AddScheduler(s.Name(), s)
		poller.Start(c.Context)
		defer poller.Stop()
	}

	report, err := runBatches(s, tasks, batches, c.Duration("task-duration"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	if timeout := cfg.Scheduler.ShutdownTimeout; timeout > 0 {
		if err := s.ShutdownGraceful(timeout); err != nil {
			logger.Warn("shutdown did not drain", core.F("error", err))
		}
	} else {
		s.Shutdown()
	}

	stats := s.Stats()
	fmt.Fprintf(c.App.Writer, "scheduler:  %s\n", s.Name())
	fmt.Fprintf(c.App.Writer, "workers:    %d\n", report.workers)
	fmt.Fprintf(c.App.Writer, "tasks run:  %d of %d\n", report.ran, tasks*batches)
	fmt.Fprintf(c.App.Writer, "threads:    %d\n", report.threads)
	fmt.Fprintf(c.App.Writer, "completed:  %d, panicked: %d, rejected: %d\n", stats.Completed, stats.Panicked, stats.Rejected)
	fmt.Fprintf(c.App.Writer, "elapsed:    %s\n", report.elapsed)
	return nil
}

type benchReport struct {
	workers int
	ran     int64
	threads int
	elapsed time.Duration
}

// runBatches submits batches one after another, waiting for each to finish,
// and records which OS threads executed the tasks.
func runBatches(s *core.TaskScheduler, tasks, batches int, taskDuration time.Duration) (benchReport, error) {
	var (
		ran  atomic.Int64
		mu   sync.Mutex
		tids = make(map[int]struct{})
	)
	task := core.TaskFunc(func() {
		if taskDuration > 0 {
			time.Sleep(taskDuration)
		}
		tid := core.CurrentThreadID()
		mu.Lock()
		tids[tid] = struct{}{}
		mu.Unlock()
		ran.Add(1)
	})

	batch := make([]core.Task, tasks)
	for i := range batch {
		batch[i] = task
	}

	start := time.Now()
	for n := 0; n < batches; n++ {
		if err := s.EnqueueTasks(batch...); err != nil {
			return benchReport{}, err
		}
		s.WaitForAllTasks()
	}

	return benchReport{
		workers: s.WorkerCount(),
		ran:     ran.Load(),
		threads: len(tids),
		elapsed: time.Since(start),
	}, nil
}

func serveMetrics(addr string, reg *prom.Registry, logger core.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", core.F("addr", addr), core.F("error", err))
		}
	}()
	logger.Info("serving metrics", core.F("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
