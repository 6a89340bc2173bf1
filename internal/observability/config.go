// Package observability wires Prometheus metrics and OpenTelemetry tracing
// into the run execution subsystem, and carries a logging config section
// that nothing in the subsystem reads. Grounded in the
// teacher's internal/observability package: the same three-section Config
// shape (Logging/Metrics/Tracing) loaded via viper, the same prometheus
// client_golang metrics collector, the same span-wrapping tracer.
package observability

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LoggingConfig holds a logging level and format. internal/logging does not
// read it: the component logger writes every level in a single line format.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics collector.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled" yaml:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port" yaml:"prometheus_port"`
}

// TracingConfig controls the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter       string  `mapstructure:"exporter" yaml:"exporter"` // not read by NewTracer, which always exports over OTLP/HTTP
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint" yaml:"jaeger_endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName    string  `mapstructure:"service_name" yaml:"service_name"`
	ServiceVersion string  `mapstructure:"service_version" yaml:"service_version"`
}

// Config is the top-level observability configuration, nested under an
// "observability:" key the same way the teacher's config.yaml does.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// DefaultConfig returns the configuration used when no file or env override
// is present.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, PrometheusPort: 9090},
		Tracing: TracingConfig{Enabled: false, Exporter: "jaeger", SampleRate: 1.0},
	}
}

// LoadConfig reads path (a YAML file with a top-level "observability:" key)
// via viper, merging over DefaultConfig. A missing file is not an error: the
// defaults are returned unchanged, matching the teacher's "config is
// optional" stance.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return cfg, err
	}

	if err := v.UnmarshalKey("observability", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories as
// needed. Used by operator tooling to snapshot an effective configuration.
func SaveConfig(cfg Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	out := map[string]Config{"observability": cfg}
	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
