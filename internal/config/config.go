package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete sidecar configuration
type Config struct {
	InstanceID string         `yaml:"instance_id"`
	Stream     StreamConfig   `yaml:"stream"`
	Detector   DetectorConfig `yaml:"detector"`
	MQTT       MQTTConfig     `yaml:"mqtt"`
	Metrics    MetricsConfig  `yaml:"metrics"`
}

// StreamConfig contains frame acquisition settings
type StreamConfig struct {
	Source          string  `yaml:"source"`            // rtsp://... or mock://
	Width           int     `yaml:"width"`             // decoded frame width
	Height          int     `yaml:"height"`            // decoded frame height
	FPS             float64 `yaml:"fps"`               // target fps
	ReconnectWaitMS int     `yaml:"reconnect_wait_ms"` // pause between reconnect attempts
}

// DetectorConfig contains detection engine settings
type DetectorConfig struct {
	ModelPath  string  `yaml:"model_path"`
	Confidence float64 `yaml:"confidence"`
	ImageSize  int     `yaml:"image_size"` // square inference resolution
	Classes    []int   `yaml:"classes"`    // empty means all classes
}

// MQTTConfig contains the optional event mirror settings
type MQTTConfig struct {
	Broker string `yaml:"broker"` // empty disables the mirror
	Topic  string `yaml:"topic"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Default returns a configuration with all defaults applied and no
// source set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
