// Package config assembles process configuration from the environment, the way
// the teacher repo's internal/app.LoadConfig does for its own subsystem.
package config

import (
	"os"
	"time"

	"github.com/fernlabs/reservecore/internal/platform/envutil"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	PostgresDSN string
	RedisAddr   string

	ResourceManagerQueue  string
	SchedulerQueue        string
	ResourceManagerPrefix string
	SchedulerPrefix       string

	HeartbeatInterval  time.Duration
	MissingTimeout     time.Duration
	PlacementRetryWait time.Duration
	LeaseRenewInterval time.Duration
	LeaseTTL           time.Duration

	ProfilingEnabled   bool
	ProfilingDirectory string

	ControlPlaneAddr string

	WorkerNamePrefix string
	WorkDirRoot      string
}

// Load reads every recognized option from the environment, falling back to
// defaults suited to local development. PostgresDSN can carry a database
// password, and envutil.GetEnv logs any default it falls back to at debug
// level under the "default" key, which the logger does not redact.
func Load(log *logger.Logger) Config {
	cfg := Config{
		PostgresDSN: envutil.GetEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=reservecore sslmode=disable", log),
		RedisAddr:   envutil.GetEnv("REDIS_ADDR", "localhost:6379", log),

		ResourceManagerQueue:  envutil.GetEnv("RESOURCE_MANAGER_QUEUE", "resource_manager", log),
		SchedulerQueue:        envutil.GetEnv("SCHEDULER_QUEUE", "scheduler", log),
		ResourceManagerPrefix: envutil.GetEnv("RESOURCE_MANAGER_WORKER_NAME", "resource_manager", log),
		SchedulerPrefix:       envutil.GetEnv("SCHEDULER_WORKER_NAME", "scheduler", log),

		HeartbeatInterval:  envutil.GetEnvAsDuration("HEARTBEAT_INTERVAL", 15*time.Second, log),
		MissingTimeout:     envutil.GetEnvAsDuration("MISSING_WORKER_TIMEOUT", 90*time.Second, log),
		PlacementRetryWait: envutil.GetEnvAsDuration("PLACEMENT_RETRY_WAIT", 250*time.Millisecond, log),
		LeaseRenewInterval: envutil.GetEnvAsDuration("LEASE_RENEW_INTERVAL", 10*time.Second, log),
		LeaseTTL:           envutil.GetEnvAsDuration("LEASE_TTL", 30*time.Second, log),

		ProfilingEnabled:   envutil.GetEnvAsBool("PROFILING_ENABLED", false, log),
		ProfilingDirectory: envutil.GetEnv("PROFILING_DIRECTORY", "/tmp/reservecore-profiles", log),

		ControlPlaneAddr: envutil.GetEnv("CONTROL_PLANE_ADDR", ":8080", log),

		WorkerNamePrefix: envutil.GetEnv("WORKER_NAME_PREFIX", "worker", log),
		WorkDirRoot:      envutil.GetEnv("WORKER_WORK_DIR_ROOT", "/tmp/reservecore-work", log),
	}

	if path := envutil.GetEnv("CONFIG_FILE", "", log); path != "" {
		if err := applyOverlayFile(&cfg, path); err != nil && log != nil {
			log.Warn("failed to apply config file overlay, keeping env-derived values", "path", path, "error", err.Error())
		}
	}
	return cfg
}

// overlay mirrors the subset of Config an operator may want to pin in a
// checked-in file rather than as individual environment variables (cluster
// addresses, queue names). Zero-value fields are left untouched so the file
// only needs to name what it overrides, the same partial-overlay shape as a
// Warren resource manifest.
type overlay struct {
	PostgresDSN           string `yaml:"postgres_dsn"`
	RedisAddr             string `yaml:"redis_addr"`
	ResourceManagerQueue  string `yaml:"resource_manager_queue"`
	SchedulerQueue        string `yaml:"scheduler_queue"`
	ResourceManagerPrefix string `yaml:"resource_manager_prefix"`
	SchedulerPrefix       string `yaml:"scheduler_prefix"`
	ControlPlaneAddr      string `yaml:"control_plane_addr"`
	WorkerNamePrefix      string `yaml:"worker_name_prefix"`
	WorkDirRoot           string `yaml:"work_dir_root"`
}

func applyOverlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return err
	}
	if o.PostgresDSN != "" {
		cfg.PostgresDSN = o.PostgresDSN
	}
	if o.RedisAddr != "" {
		cfg.RedisAddr = o.RedisAddr
	}
	if o.ResourceManagerQueue != "" {
		cfg.ResourceManagerQueue = o.ResourceManagerQueue
	}
	if o.SchedulerQueue != "" {
		cfg.SchedulerQueue = o.SchedulerQueue
	}
	if o.ResourceManagerPrefix != "" {
		cfg.ResourceManagerPrefix = o.ResourceManagerPrefix
	}
	if o.SchedulerPrefix != "" {
		cfg.SchedulerPrefix = o.SchedulerPrefix
	}
	if o.ControlPlaneAddr != "" {
		cfg.ControlPlaneAddr = o.ControlPlaneAddr
	}
	if o.WorkerNamePrefix != "" {
		cfg.WorkerNamePrefix = o.WorkerNamePrefix
	}
	if o.WorkDirRoot != "" {
		cfg.WorkDirRoot = o.WorkDirRoot
	}
	return nil
}
