// Package pipeline orchestrates one frame through detection, motion
// scoring, rate estimation and event assembly.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/gabrielmaialva33/vivino/internal/detect"
	"github.com/gabrielmaialva33/vivino/internal/event"
	"github.com/gabrielmaialva33/vivino/internal/metrics"
	"github.com/gabrielmaialva33/vivino/internal/motion"
	"github.com/gabrielmaialva33/vivino/internal/rate"
	"github.com/gabrielmaialva33/vivino/internal/types"
)

// Pipeline processes frames one at a time. The frame counter, motion
// history and rate estimate are encapsulated here so the pipeline is
// instantiable and testable in isolation.
//
// Process is called only from the stream supervisor's loop; the only state
// shared with other goroutines is the ParamsCell.
type Pipeline struct {
	detector detect.Detector
	params   *ParamsCell
	motion   *motion.Scorer
	rate     *rate.Estimator

	frameIndex uint64
}

// New creates a Pipeline around a detector and a shared params cell.
func New(detector detect.Detector, params *ParamsCell) *Pipeline {
	return &Pipeline{
		detector: detector,
		params:   params,
		motion:   motion.NewScorer(),
		rate:     rate.NewEstimator(),
	}
}

// Process runs one frame through the pipeline and assembles its event.
//
// A detection failure is fatal for the frame and propagated to the caller:
// the frame counter is not advanced and no event is produced, so a
// systematically failing engine is visible instead of masked.
func (p *Pipeline) Process(ctx context.Context, frame types.Frame) (event.FrameEvent, error) {
	start := time.Now()

	// Parameter snapshot: updates from the command channel become visible
	// here, at the start of a frame, never mid-frame.
	params := p.params.Snapshot()

	raws, err := p.detector.Detect(ctx, frame, params)
	if err != nil {
		return event.FrameEvent{}, fmt.Errorf("detection failed on frame %d: %w", p.frameIndex+1, err)
	}

	motionScore := p.motion.Score(frame)

	elapsed := time.Since(start)
	fps := p.rate.Update(elapsed.Seconds())

	// Exactly one increment per successfully processed frame; a failed
	// detection above never reaches this point.
	p.frameIndex++

	detections := make([]event.Detection, 0, len(raws))
	for _, r := range raws {
		detections = append(detections, coerce(r, frame))
	}

	metrics.FramesProcessed.Inc()
	metrics.InferenceDuration.Observe(elapsed.Seconds())
	metrics.SmoothedFPS.Set(fps)
	metrics.MotionScore.Set(motionScore)

	return event.FrameEvent{
		TS:          time.Now().UnixMilli(),
		FPS:         fps,
		Detections:  detections,
		Motion:      motionScore,
		Frame:       p.frameIndex,
		InferenceMS: float64(elapsed) / float64(time.Millisecond),
	}, nil
}

// FrameIndex returns the index of the last successfully processed frame
// (0 before the first). It is never reset, including across reconnects.
func (p *Pipeline) FrameIndex() uint64 {
	return p.frameIndex
}

// Warmup delegates to the detector so the supervisor can pay model
// initialization cost before announcing readiness.
func (p *Pipeline) Warmup(ctx context.Context) error {
	return p.detector.Warmup(ctx)
}

// Model identifies the loaded model for the ready event.
func (p *Pipeline) Model() string {
	return p.detector.Model()
}

// coerce converts an engine detection into its wire form: coordinates
// clipped to the frame and truncated to integers, area computed from the
// clipped box.
func coerce(r detect.RawDetection, frame types.Frame) event.Detection {
	x1 := clip(int(r.X1), 0, frame.Width)
	y1 := clip(int(r.Y1), 0, frame.Height)
	x2 := clip(int(r.X2), 0, frame.Width)
	y2 := clip(int(r.Y2), 0, frame.Height)
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}

	return event.Detection{
		Class: r.Class,
		Conf:  r.Conf,
		BBox:  [4]int{x1, y1, x2, y2},
		Area:  (x2 - x1) * (y2 - y1),
	}
}

func clip(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
