// Package metrics exposes Prometheus instrumentation for the sidecar.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FramesProcessed counts successfully processed frames
	FramesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vision_frames_processed_total",
			Help: "Total number of frames processed through the pipeline",
		},
	)

	// FrameDrops counts transient stream faults
	FrameDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vision_frame_drops_total",
			Help: "Total number of frame drops due to stream read failures",
		},
	)

	// Reconnects counts stream reconnection attempts
	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vision_stream_reconnects_total",
			Help: "Total number of stream reconnection attempts",
		},
	)

	// InferenceDuration tracks per-frame processing latency
	InferenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vision_inference_duration_seconds",
			Help:    "Per-frame inference latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// SmoothedFPS is the exponentially-weighted processing rate
	SmoothedFPS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vision_fps_smoothed",
			Help: "Smoothed frames-per-second estimate",
		},
	)

	// MotionScore is the most recent normalized motion score
	MotionScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vision_motion_score",
			Help: "Normalized frame-to-frame motion score (0-1)",
		},
	)
)

// Serve starts the /metrics HTTP listener in the background. The listener
// is optional observability: a serving failure is logged, never fatal.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics listener starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener failed", "error", err)
		}
	}()
}
