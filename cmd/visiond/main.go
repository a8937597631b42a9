package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/gabrielmaialva33/vivino/internal/config"
	"github.com/gabrielmaialva33/vivino/internal/control"
	"github.com/gabrielmaialva33/vivino/internal/core"
	"github.com/gabrielmaialva33/vivino/internal/detect"
	"github.com/gabrielmaialva33/vivino/internal/emitter"
	"github.com/gabrielmaialva33/vivino/internal/event"
	"github.com/gabrielmaialva33/vivino/internal/metrics"
	"github.com/gabrielmaialva33/vivino/internal/pipeline"
	"github.com/gabrielmaialva33/vivino/internal/stream"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to YAML configuration file")
	modelPath := flag.String("model", "", "Path to ONNX detection model")
	conf := flag.Float64("conf", -1, "Confidence threshold override [0, 1]")
	imgsz := flag.Int("imgsz", 0, "Inference image size override")
	classes := flag.String("classes", "", "Comma-separated class id filter")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker host:port for the event mirror")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address, e.g. :9102")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// stdout carries the event stream, so logs go to stderr
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *modelPath, *conf, *imgsz, *classes, *mqttBroker, *metricsAddr)

	if flag.NArg() > 0 {
		cfg.Stream.Source = flag.Arg(0)
	}
	if cfg.Stream.Source == "" {
		slog.Error("no stream source: pass an rtsp:// or mock:// URL as argument or set stream.source")
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting vision sidecar",
		"source", cfg.Stream.Source,
		"model", cfg.Detector.ModelPath,
		"confidence", cfg.Detector.Confidence,
		"image_size", cfg.Detector.ImageSize,
	)

	if err := run(cfg); err != nil {
		slog.Error("sidecar failed", "error", err)
		os.Exit(1)
	}
	slog.Info("sidecar stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// applyOverrides lets command line flags win over the file.
func applyOverrides(cfg *config.Config, model string, conf float64, imgsz int, classes, broker, metricsAddr string) {
	if model != "" {
		cfg.Detector.ModelPath = model
	}
	if conf >= 0 {
		cfg.Detector.Confidence = conf
	}
	if imgsz > 0 {
		cfg.Detector.ImageSize = imgsz
	}
	if classes != "" {
		ids, err := control.ParseClassList(classes)
		if err != nil {
			slog.Warn("ignoring malformed -classes flag", "value", classes, "error", err)
		} else {
			cfg.Detector.Classes = ids
		}
	}
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if cfg.Metrics.Addr != "" {
		metrics.Serve(cfg.Metrics.Addr)
	}

	// The emitter exists before anything that can fail, so every fatal
	// startup fault reaches the parent as an error record, not just a log
	emit := emitter.New(os.Stdout)
	defer emit.Close()
	if cfg.MQTT.Broker != "" {
		mirror, err := emitter.NewMQTTMirror(emitter.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: mirrorClientID(cfg.InstanceID),
		})
		if err != nil {
			// The mirror is best-effort; stdout remains authoritative
			slog.Warn("event mirror unavailable", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			emit.SetMirror(mirror)
		}
	}

	detector, err := detect.NewONNXDetector(cfg.Detector.ModelPath)
	if err != nil {
		return reportFatal(emit, "cannot load model", err)
	}
	defer detector.Close()

	params := pipeline.NewParamsCell(detect.Params{
		ConfThreshold: cfg.Detector.Confidence,
		ClassFilter:   cfg.Detector.Classes,
		ImageSize:     cfg.Detector.ImageSize,
	})
	pipe := pipeline.New(detector, params)

	source, err := openSource(cfg)
	if err != nil {
		return reportFatal(emit, "cannot create stream source", err)
	}

	runState := control.NewRunState()
	listener := control.NewListener(os.Stdin, params, runState)
	go func() {
		listener.Run()
		// A stop command must also unblock a read that is waiting on a
		// stalled source
		if !runState.Running() {
			cancel()
		}
	}()

	sup := core.New(core.Config{
		Source:        source,
		Pipeline:      pipe,
		Emitter:       emit,
		Run:           runState,
		ReconnectWait: time.Duration(cfg.Stream.ReconnectWaitMS) * time.Millisecond,
	})
	return sup.Run(ctx)
}

// reportFatal emits an error record for a startup fault so the parent
// sees it on the event channel, then hands the error back for the exit
// status.
func reportFatal(emit *emitter.Emitter, msg string, err error) error {
	emit.Emit(event.EncodeError(msg, map[string]any{"detail": err.Error()}))
	return err
}

func openSource(cfg *config.Config) (stream.Source, error) {
	if strings.HasPrefix(cfg.Stream.Source, "mock://") {
		return stream.NewMockSource(cfg.Stream.Width, cfg.Stream.Height, cfg.Stream.FPS), nil
	}
	return stream.NewRTSPSource(stream.RTSPConfig{
		URL:       cfg.Stream.Source,
		Width:     cfg.Stream.Width,
		Height:    cfg.Stream.Height,
		TargetFPS: cfg.Stream.FPS,
	})
}

func mirrorClientID(instanceID string) string {
	if instanceID == "" {
		instanceID = "visiond"
	}
	return instanceID + "-" + uuid.NewString()[:8]
}
