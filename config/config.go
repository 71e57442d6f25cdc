// Package config loads scheduler, logging and metrics settings from a YAML
// file, BATCHSCHED_* environment variables and explicit overrides, in
// increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Swind/go-batch-scheduler/core"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g.
// BATCHSCHED_SCHEDULER_WORKERS or BATCHSCHED_LOGGING_FORMAT.
const EnvPrefix = "BATCHSCHED"

type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type SchedulerConfig struct {
	Name string `mapstructure:"name"`

	// Workers <= 0 means one worker per logical core.
	Workers int `mapstructure:"workers"`

	QueueOrder string `mapstructure:"queue-order"`

	PinWorkers bool `mapstructure:"pin-workers"`

	// ShutdownTimeout bounds the drain on shutdown; 0 waits indefinitely.
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
}

type LoggingConfig struct {
	// File is the log file path; empty logs to stderr.
	File string `mapstructure:"file"`

	// Format is "text" or "json".
	Format string `mapstructure:"format"`

	// Severity is one of debug, info, warn, error.
	Severity string `mapstructure:"severity"`

	LogRotate LogRotateConfig `mapstructure:"log-rotate"`
}

type LogRotateConfig struct {
	MaxFileSizeMB   int  `mapstructure:"max-file-size-mb"`
	BackupFileCount int  `mapstructure:"backup-file-count"`
	Compress        bool `mapstructure:"compress"`
}

type MetricsConfig struct {
	// Addr serves /metrics when non-empty, e.g. ":9090".
	Addr string `mapstructure:"addr"`

	Namespace string `mapstructure:"namespace"`

	PollInterval time.Duration `mapstructure:"poll-interval"`
}

var defaults = map[string]any{
	"scheduler.name":                       "taskbench",
	"scheduler.workers":                    0,
	"scheduler.queue-order":                "fifo",
	"scheduler.pin-workers":                false,
	"scheduler.shutdown-timeout":           time.Duration(0),
	"logging.file":                         "",
	"logging.format":                       "text",
	"logging.severity":                     "info",
	"logging.log-rotate.max-file-size-mb":  512,
	"logging.log-rotate.backup-file-count": 10,
	"logging.log-rotate.compress":          true,
	"metrics.addr":                         "",
	"metrics.namespace":                    "batchscheduler",
	"metrics.poll-interval":                time.Second,
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration.
func Default() *Config {
	c, err := Load("", nil)
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not validate: %v", err))
	}
	return c
}

// Load reads path (skipped when empty), applies environment variables and
// then overrides keyed by dotted names such as "scheduler.workers", and
// validates the result.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var c Config
	err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)), func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	})
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate returns a non-nil error if the config is invalid.
func Validate(c *Config) error {
	if _, ok := core.ParseQueueOrder(c.Scheduler.QueueOrder); !ok {
		return fmt.Errorf("scheduler.queue-order must be fifo or lifo, got %q", c.Scheduler.QueueOrder)
	}
	if c.Scheduler.ShutdownTimeout < 0 {
		return fmt.Errorf("scheduler.shutdown-timeout can't be negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if _, err := parseSeverity(c.Logging.Severity); err != nil {
		return err
	}
	if c.Logging.LogRotate.MaxFileSizeMB <= 0 {
		return fmt.Errorf("logging.log-rotate.max-file-size-mb should be atleast 1")
	}
	if c.Logging.LogRotate.BackupFileCount < 0 {
		return fmt.Errorf("logging.log-rotate.backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	if c.Metrics.PollInterval <= 0 {
		return fmt.Errorf("metrics.poll-interval must be positive")
	}
	return nil
}

// TaskSchedulerConfig converts the scheduler section into a core config
// using the given logger and metrics sink (either may be nil for defaults).
func (c *Config) TaskSchedulerConfig(logger core.Logger, metrics core.Metrics) *core.TaskSchedulerConfig {
	order, _ := core.ParseQueueOrder(c.Scheduler.QueueOrder)

	cfg := core.DefaultTaskSchedulerConfig()
	cfg.Name = c.Scheduler.Name
	cfg.QueueOrder = order
	cfg.PinWorkers = c.Scheduler.PinWorkers
	if logger != nil {
		cfg.Logger = logger
	}
	if metrics != nil {
		cfg.Metrics = metrics
	}
	return cfg
}
