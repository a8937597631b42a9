// Package detect defines the inference engine capability boundary.
//
// The core pipeline treats the engine as opaque: it hands over a frame and
// the current tunable parameters and receives an ordered list of raw
// detections or an error. The bundled ONNX Runtime implementation lives in
// onnx.go; tests substitute their own Detector.
package detect

import (
	"context"

	"github.com/gabrielmaialva33/vivino/internal/types"
)

// Params are the tunable inference parameters. They are owned by the frame
// pipeline's shared cell and snapshotted at the start of each frame.
type Params struct {
	// ConfThreshold filters detections below this confidence, in [0,1]
	ConfThreshold float64
	// ClassFilter restricts detection to these class IDs; nil means all
	ClassFilter []int
	// ImageSize is the square model input size in pixels
	ImageSize int
}

// RawDetection is one engine result in the engine's native coordinate
// space (float pixel coordinates on the original frame). The pipeline
// coerces coordinates to clipped integers before emission.
type RawDetection struct {
	Class string
	Conf  float64
	X1    float64
	Y1    float64
	X2    float64
	Y2    float64
}

// Detector is the external object-detection capability.
type Detector interface {
	// Detect runs inference on one frame. The returned order is the
	// engine's output order and is preserved downstream. A failure is
	// reported to the caller, never swallowed.
	Detect(ctx context.Context, frame types.Frame, p Params) ([]RawDetection, error)
	// Warmup runs one throwaway inference so the first real frame does not
	// pay initialization cost.
	Warmup(ctx context.Context) error
	// Model identifies the loaded model for the ready event.
	Model() string
	// Close releases engine resources.
	Close() error
}
