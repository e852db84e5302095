package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ControllerConfig holds tunables for the packet-in dispatch path.
type ControllerConfig struct {
	// EventChannelSize is the per-session event queue depth.
	EventChannelSize int `yaml:"event_channel_size"`
	// PerfLogInterval is how many classifications pass between periodic
	// performance log lines. 0 disables them.
	PerfLogInterval int `yaml:"perf_log_interval"`
}

// ClassifierConfig selects and tunes the traffic classifier.
type ClassifierConfig struct {
	Kind                string  `yaml:"kind"` // "rule" or "model"
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	ModelPath           string  `yaml:"model_path"`
	PredictTimeout      string  `yaml:"predict_timeout"`
}

// InstallerConfig holds flow-table installation parameters.
type InstallerConfig struct {
	FlowIdleTimeout string `yaml:"flow_idle_timeout"`
}

// MacTableConfig holds the MAC learning table parameters.
type MacTableConfig struct {
	// EntryExpiry ages out entries that have not been refreshed. Empty or
	// zero disables expiry, the base design.
	EntryExpiry string `yaml:"entry_expiry"`
}

// FlowStatsConfig holds the running flow statistics tracker parameters.
type FlowStatsConfig struct {
	NumShards uint32 `yaml:"num_shards"`
}

// NATSConfig describes the switch transport subjects.
type NATSConfig struct {
	URL                  string `yaml:"url"`
	EventSubject         string `yaml:"event_subject"`
	CommandSubjectPrefix string `yaml:"command_subject_prefix"`
}

// ClickHouseConfig holds the connection info for the record store.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ExportConfig controls persistence of classification records.
type ExportConfig struct {
	Enabled       bool             `yaml:"enabled"`
	FlushInterval string           `yaml:"flush_interval"`
	ClickHouse    ClickHouseConfig `yaml:"clickhouse"`
}

// APIConfig holds the HTTP API parameters.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Installer  InstallerConfig  `yaml:"installer"`
	MacTable   MacTableConfig   `yaml:"mac_table"`
	FlowStats  FlowStatsConfig  `yaml:"flow_stats"`
	NATS       NATSConfig       `yaml:"nats"`
	Export     ExportConfig     `yaml:"export"`
	API        APIConfig        `yaml:"api"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config
// struct with defaults applied.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Controller.EventChannelSize <= 0 {
		c.Controller.EventChannelSize = 1024
	}
	if c.Classifier.Kind == "" {
		c.Classifier.Kind = "rule"
	}
	if c.Classifier.ConfidenceThreshold == 0 {
		c.Classifier.ConfidenceThreshold = 0.5
	}
	if c.Classifier.PredictTimeout == "" {
		c.Classifier.PredictTimeout = "50ms"
	}
	if c.Installer.FlowIdleTimeout == "" {
		c.Installer.FlowIdleTimeout = "30s"
	}
	if c.FlowStats.NumShards == 0 {
		c.FlowStats.NumShards = 256
	}
}

func (c *Config) validate() error {
	if c.Classifier.Kind != "rule" && c.Classifier.Kind != "model" {
		return fmt.Errorf("unknown classifier kind: %q", c.Classifier.Kind)
	}
	if c.Classifier.ConfidenceThreshold < 0 || c.Classifier.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0,1], got %v", c.Classifier.ConfidenceThreshold)
	}
	if _, err := c.FlowIdleTimeout(); err != nil {
		return fmt.Errorf("invalid flow_idle_timeout: %w", err)
	}
	if _, err := c.MacEntryExpiry(); err != nil {
		return fmt.Errorf("invalid mac_table entry_expiry: %w", err)
	}
	return nil
}

// FlowIdleTimeout returns the parsed idle timeout for installed flows.
func (c *Config) FlowIdleTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Installer.FlowIdleTimeout)
}

// MacEntryExpiry returns the parsed MAC entry expiry, zero when disabled.
func (c *Config) MacEntryExpiry() (time.Duration, error) {
	if c.MacTable.EntryExpiry == "" {
		return 0, nil
	}
	return time.ParseDuration(c.MacTable.EntryExpiry)
}

// PredictTimeout returns the bounded budget for one model prediction.
func (c *Config) PredictTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Classifier.PredictTimeout)
}
