package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Swind/go-batch-scheduler/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, "taskbench", c.Scheduler.Name)
	assert.Equal(t, 0, c.Scheduler.Workers)
	assert.Equal(t, "fifo", c.Scheduler.QueueOrder)
	assert.Equal(t, "text", c.Logging.Format)
	assert.Equal(t, 512, c.Logging.LogRotate.MaxFileSizeMB)
	assert.Equal(t, time.Second, c.Metrics.PollInterval)
}

func TestLoad_FileEnvAndOverrides(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  name: render
  workers: 4
  queue-order: lifo
  shutdown-timeout: 3s
logging:
  format: json
  severity: debug
metrics:
  addr: ":9100"
`)
	t.Setenv("BATCHSCHED_SCHEDULER_WORKERS", "6")
	t.Setenv("BATCHSCHED_METRICS_POLL_INTERVAL", "250ms")

	c, err := Load(path, map[string]any{"scheduler.name": "override"})
	require.NoError(t, err)

	assert.Equal(t, "override", c.Scheduler.Name)
	assert.Equal(t, 6, c.Scheduler.Workers, "env beats file")
	assert.Equal(t, "lifo", c.Scheduler.QueueOrder)
	assert.Equal(t, 3*time.Second, c.Scheduler.ShutdownTimeout)
	assert.Equal(t, "json", c.Logging.Format)
	assert.Equal(t, ":9100", c.Metrics.Addr)
	assert.Equal(t, 250*time.Millisecond, c.Metrics.PollInterval)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad order", "scheduler:\n  queue-order: random\n", "queue-order"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"bad severity", "logging:\n  severity: loud\n", "logging.severity"},
		{"bad rotate size", "logging:\n  log-rotate:\n    max-file-size-mb: 0\n", "max-file-size-mb"},
		{"negative timeout", "scheduler:\n  shutdown-timeout: -1s\n", "shutdown-timeout"},
		{"unknown key", "scheduler:\n  priority: high\n", "priority"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestTaskSchedulerConfig(t *testing.T) {
	c, err := Load("", map[string]any{
		"scheduler.queue-order": "lifo",
		"scheduler.pin-workers": true,
		"scheduler.name":        "converted",
	})
	require.NoError(t, err)

	logger := core.NewNoOpLogger()
	cfg := c.TaskSchedulerConfig(logger, nil)

	assert.Equal(t, "converted", cfg.Name)
	assert.Equal(t, core.QueueOrderLIFO, cfg.QueueOrder)
	assert.True(t, cfg.PinWorkers)
	assert.Same(t, logger, cfg.Logger)
	assert.IsType(t, &core.NilMetrics{}, cfg.Metrics)
}

func TestLoggingConfig_NewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.log")
	lc := Default().Logging
	lc.File = path
	lc.Format = "json"

	logger, closer, err := lc.NewLogger()
	require.NoError(t, err)
	logger.Info("worker pool started", core.F("workers", 4))
	logger.Debug("filtered out")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg":"worker pool started"`)
	assert.Contains(t, lines[0], `"workers":4`)
}
