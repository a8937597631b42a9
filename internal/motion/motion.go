// Package motion computes a normalized frame-to-frame difference score.
package motion

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/gabrielmaialva33/vivino/internal/types"
)

const (
	// Frames are downscaled before differencing; motion is a coarse signal
	// and full-resolution diffs waste cycles on sensor noise.
	scaledWidth  = 160
	scaledHeight = 120
	// Gaussian blur sigma applied after downscale to suppress pixel noise
	blurSigma = 1.5
)

// Scorer scores pixel-level change between consecutive frames.
//
// It holds exactly one frame of history: the downscaled grayscale
// representation of the previous frame. The first frame ever scored yields
// 0.0 by convention. History survives stream reconnects, so the first score
// after a reconnect is computed against the last frame before the gap.
//
// Scorer is not safe for concurrent use; it is owned by the frame pipeline.
type Scorer struct {
	prev []uint8
}

// NewScorer creates a Scorer with empty history.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score converts the frame to a blurred grayscale representation, returns
// the mean absolute difference against the previous representation
// normalized to [0,1], and replaces the stored representation.
func (s *Scorer) Score(frame types.Frame) float64 {
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.Data) == 0 {
		return 0.0
	}

	gray := prepare(frame)

	if s.prev == nil {
		s.prev = gray
		return 0.0
	}

	var sum float64
	for i := range gray {
		sum += math.Abs(float64(gray[i]) - float64(s.prev[i]))
	}
	s.prev = gray

	// Normalize by the maximum possible intensity delta
	return sum / float64(len(gray)) / 255.0
}

// prepare downscales, blurs and grayscales a frame into a flat intensity
// plane of scaledWidth*scaledHeight bytes.
func prepare(frame types.Frame) []uint8 {
	img := image.NewNRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for i, j := 0, 0; i+3 <= len(frame.Data) && j+4 <= len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = frame.Data[i]
		img.Pix[j+1] = frame.Data[i+1]
		img.Pix[j+2] = frame.Data[i+2]
		img.Pix[j+3] = 0xff
	}

	small := imaging.Resize(img, scaledWidth, scaledHeight, imaging.Box)
	blurred := imaging.Blur(small, blurSigma)
	grayImg := imaging.Grayscale(blurred)

	// Grayscale output has R=G=B; keep one channel
	gray := make([]uint8, scaledWidth*scaledHeight)
	for p := 0; p < len(gray); p++ {
		gray[p] = grayImg.Pix[p*4]
	}
	return gray
}
