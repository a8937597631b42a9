package config

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults for optional
// fields. The source URL may still be empty after validation; the caller
// decides whether it comes from the file or the command line.
func Validate(cfg *Config) error {
	applyDefaults(cfg)

	if cfg.InstanceID != "" && !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Stream.Source != "" &&
		!strings.HasPrefix(cfg.Stream.Source, "rtsp://") &&
		!strings.HasPrefix(cfg.Stream.Source, "mock://") {
		return fmt.Errorf("stream.source must be an rtsp:// or mock:// URL")
	}
	if cfg.Stream.Width <= 0 || cfg.Stream.Height <= 0 {
		return fmt.Errorf("stream resolution must be positive, got %dx%d",
			cfg.Stream.Width, cfg.Stream.Height)
	}
	if math.IsNaN(cfg.Stream.FPS) || cfg.Stream.FPS <= 0 {
		return fmt.Errorf("stream.fps must be > 0")
	}
	if cfg.Stream.ReconnectWaitMS <= 0 {
		return fmt.Errorf("stream.reconnect_wait_ms must be > 0")
	}

	// YAML .nan would slip past the range comparison
	if math.IsNaN(cfg.Detector.Confidence) || cfg.Detector.Confidence < 0 || cfg.Detector.Confidence > 1 {
		return fmt.Errorf("detector.confidence must be within [0, 1], got %v",
			cfg.Detector.Confidence)
	}
	if cfg.Detector.ImageSize <= 0 || cfg.Detector.ImageSize%32 != 0 {
		return fmt.Errorf("detector.image_size must be a positive multiple of 32, got %d",
			cfg.Detector.ImageSize)
	}
	for _, c := range cfg.Detector.Classes {
		if c < 0 {
			return fmt.Errorf("detector.classes must be non-negative, got %d", c)
		}
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = fmt.Sprintf("vision/events/%s", orDefault(cfg.InstanceID, "default"))
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Stream.Width == 0 {
		cfg.Stream.Width = 640
	}
	if cfg.Stream.Height == 0 {
		cfg.Stream.Height = 480
	}
	if cfg.Stream.FPS == 0 {
		cfg.Stream.FPS = 15
	}
	if cfg.Stream.ReconnectWaitMS == 0 {
		cfg.Stream.ReconnectWaitMS = 1000
	}
	if cfg.Detector.Confidence == 0 {
		cfg.Detector.Confidence = 0.35
	}
	if cfg.Detector.ImageSize == 0 {
		cfg.Detector.ImageSize = 640
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
