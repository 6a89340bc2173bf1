// Package config loads this subsystem's runtime configuration: worker pool
// size, subscriber buffer, and HTTP binding (spec.md §6). Grounded in the
// teacher's viper-based config loading (internal/shared/config), reading a
// YAML file merged with environment variable overrides. No ".env" file is
// read.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the subsystem's top-level runtime configuration.
type Config struct {
	// WorkerPoolSize bounds concurrent run executors. Default 8.
	WorkerPoolSize uint `mapstructure:"worker_pool_size"`
	// SubscriberBuffer bounds each SSE subscriber's queue. Default 256.
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
	// APIBase is loaded (default "/api") but not read by the HTTP facade: its
	// routes and stream URLs are always mounted under the fixed "/api" prefix.
	APIBase string `mapstructure:"api_base"`
	// BindAddr is the address the HTTP server listens on, e.g. ":8080".
	BindAddr string `mapstructure:"bind_addr"`
	// RunRetention bounds how long terminal runs are retained in memory.
	RunRetention time.Duration `mapstructure:"run_retention"`
	// RunStatePath, if set, enables snapshot-to-file persistence for runs.
	RunStatePath string `mapstructure:"run_state_path"`
	// ObservabilityConfigPath points at the observability config.yaml, if any.
	ObservabilityConfigPath string `mapstructure:"observability_config_path"`
}

// DefaultConfig returns the configuration used absent any file or env
// override (spec.md §6 defaults).
func DefaultConfig() Config {
	return Config{
		WorkerPoolSize:   8,
		SubscriberBuffer: 256,
		APIBase:          "/api",
		BindAddr:         ":8080",
		RunRetention:     24 * time.Hour,
	}
}

// Load reads configuration from configPath (YAML, optional) overlaid with
// environment variables prefixed RUNEXEC_ (e.g. RUNEXEC_WORKER_POOL_SIZE),
// on top of DefaultConfig. A missing configPath is not an error.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("RUNEXEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("worker_pool_size", cfg.WorkerPoolSize)
	v.SetDefault("subscriber_buffer", cfg.SubscriberBuffer)
	v.SetDefault("api_base", cfg.APIBase)
	v.SetDefault("bind_addr", cfg.BindAddr)
	v.SetDefault("run_retention", cfg.RunRetention)
	v.SetDefault("run_state_path", cfg.RunStatePath)
	v.SetDefault("observability_config_path", cfg.ObservabilityConfigPath)

	if strings.TrimSpace(configPath) != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return cfg, err
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
