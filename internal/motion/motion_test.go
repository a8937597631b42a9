package motion

import (
	"math"
	"testing"
	"time"

	"github.com/gabrielmaialva33/vivino/internal/types"
)

// uniformFrame creates a frame where every pixel has the same RGB value.
func uniformFrame(w, h int, value byte) types.Frame {
	data := make([]byte, w*h*types.Channels)
	for i := range data {
		data[i] = value
	}
	return types.Frame{
		Timestamp: time.Now(),
		Width:     w,
		Height:    h,
		Data:      data,
	}
}

// TestFirstFrameScoresZero validates the no-history convention: without a
// prior frame there is no signal, so the score is exactly 0.0.
func TestFirstFrameScoresZero(t *testing.T) {
	s := NewScorer()

	score := s.Score(uniformFrame(320, 240, 200))
	if score != 0.0 {
		t.Errorf("first frame: expected 0.0, got %v", score)
	}
}

// TestIdenticalFramesScoreZero validates two identical consecutive frames
// produce a score of 0.0 within numeric tolerance.
func TestIdenticalFramesScoreZero(t *testing.T) {
	s := NewScorer()

	s.Score(uniformFrame(320, 240, 128))
	score := s.Score(uniformFrame(320, 240, 128))
	if score > 1e-9 {
		t.Errorf("identical frames: expected ~0.0, got %v", score)
	}
}

// TestMaximallyDifferentFrames validates all-black followed by all-white
// approaches 1.0 (the maximum normalized intensity delta).
func TestMaximallyDifferentFrames(t *testing.T) {
	s := NewScorer()

	s.Score(uniformFrame(320, 240, 0))
	score := s.Score(uniformFrame(320, 240, 255))
	if score < 0.95 || score > 1.0 {
		t.Errorf("black->white: expected score near 1.0, got %v", score)
	}
}

// TestScoreInRange validates normalization stays within [0,1] for
// intermediate deltas.
func TestScoreInRange(t *testing.T) {
	s := NewScorer()

	s.Score(uniformFrame(320, 240, 100))
	score := s.Score(uniformFrame(320, 240, 150))
	if score < 0 || score > 1 {
		t.Fatalf("score out of range: %v", score)
	}
	if math.Abs(score-50.0/255.0) > 0.02 {
		t.Errorf("uniform delta of 50: expected ~%v, got %v", 50.0/255.0, score)
	}
}

// TestHistoryReplacedEveryCall validates scoring is always against the
// immediately preceding frame: A, B, B must score ~0 on the third call even
// though A and B differ.
func TestHistoryReplacedEveryCall(t *testing.T) {
	s := NewScorer()

	s.Score(uniformFrame(320, 240, 0))
	s.Score(uniformFrame(320, 240, 255))
	score := s.Score(uniformFrame(320, 240, 255))
	if score > 1e-9 {
		t.Errorf("history not replaced: expected ~0.0, got %v", score)
	}
}

// TestResolutionChangeAcrossFrames validates frames of different dimensions
// can be scored against each other (history is kept at a fixed downscaled
// size, which is what makes scoring across a reconnect well-defined).
func TestResolutionChangeAcrossFrames(t *testing.T) {
	s := NewScorer()

	s.Score(uniformFrame(640, 480, 10))
	score := s.Score(uniformFrame(320, 240, 10))
	if score > 0.02 {
		t.Errorf("same content at different resolutions: expected ~0.0, got %v", score)
	}
}

// TestDegenerateFrameIgnored validates an empty frame neither panics nor
// pollutes history.
func TestDegenerateFrameIgnored(t *testing.T) {
	s := NewScorer()

	s.Score(uniformFrame(320, 240, 50))
	if got := s.Score(types.Frame{}); got != 0.0 {
		t.Errorf("degenerate frame: expected 0.0, got %v", got)
	}
	score := s.Score(uniformFrame(320, 240, 50))
	if score > 1e-9 {
		t.Errorf("history lost after degenerate frame: got %v", score)
	}
}
