package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/gabrielmaialva33/vivino/internal/detect"
	"github.com/gabrielmaialva33/vivino/internal/types"
)

// stubDetector returns canned results and records the params it saw.
type stubDetector struct {
	results    []detect.RawDetection
	err        error
	seenParams []detect.Params
}

func (s *stubDetector) Detect(ctx context.Context, frame types.Frame, p detect.Params) ([]detect.RawDetection, error) {
	s.seenParams = append(s.seenParams, p)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *stubDetector) Warmup(ctx context.Context) error { return nil }
func (s *stubDetector) Model() string                    { return "stub" }
func (s *stubDetector) Close() error                     { return nil }

func testFrame(w, h int) types.Frame {
	return types.Frame{Width: w, Height: h, Data: make([]byte, w*h*types.Channels)}
}

// TestFrameIndexStrictlyIncreasing validates exactly one increment per
// successfully processed frame, starting at 1.
func TestFrameIndexStrictlyIncreasing(t *testing.T) {
	p := New(&stubDetector{}, NewParamsCell(detect.Params{ConfThreshold: 0.35}))

	for i := 1; i <= 5; i++ {
		ev, err := p.Process(context.Background(), testFrame(64, 48))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev.Frame != uint64(i) {
			t.Errorf("frame %d: expected index %d, got %d", i, i, ev.Frame)
		}
	}
	if p.FrameIndex() != 5 {
		t.Errorf("expected counter 5, got %d", p.FrameIndex())
	}
}

// TestDetectionFailureIsPropagated validates a failed detection produces no
// event and does not advance the frame counter.
func TestDetectionFailureIsPropagated(t *testing.T) {
	stub := &stubDetector{}
	p := New(stub, NewParamsCell(detect.Params{}))

	if _, err := p.Process(context.Background(), testFrame(64, 48)); err != nil {
		t.Fatalf("first frame: %v", err)
	}

	stub.err = errors.New("engine exploded")
	_, err := p.Process(context.Background(), testFrame(64, 48))
	if err == nil {
		t.Fatal("expected detection failure to propagate")
	}
	if p.FrameIndex() != 1 {
		t.Errorf("failed frame must not advance the counter, got %d", p.FrameIndex())
	}

	// Recovery continues from where the counter left off
	stub.err = nil
	ev, err := p.Process(context.Background(), testFrame(64, 48))
	if err != nil {
		t.Fatalf("recovered frame: %v", err)
	}
	if ev.Frame != 2 {
		t.Errorf("expected index 2 after recovery, got %d", ev.Frame)
	}
}

// TestParamsSnapshotPerFrame validates a parameter update becomes visible
// on the next processed frame, not the one already in flight.
func TestParamsSnapshotPerFrame(t *testing.T) {
	stub := &stubDetector{}
	cell := NewParamsCell(detect.Params{ConfThreshold: 0.35})
	p := New(stub, cell)

	p.Process(context.Background(), testFrame(64, 48))
	cell.SetConfThreshold(0.5)
	p.Process(context.Background(), testFrame(64, 48))

	if stub.seenParams[0].ConfThreshold != 0.35 {
		t.Errorf("first frame saw %v, expected 0.35", stub.seenParams[0].ConfThreshold)
	}
	if stub.seenParams[1].ConfThreshold != 0.5 {
		t.Errorf("second frame saw %v, expected 0.5", stub.seenParams[1].ConfThreshold)
	}
}

// TestCoercionClipsAndComputesArea validates bbox coordinates are coerced
// to integers clipped to the frame, with area from the clipped box.
func TestCoercionClipsAndComputesArea(t *testing.T) {
	stub := &stubDetector{results: []detect.RawDetection{
		{Class: "person", Conf: 0.9, X1: -10.7, Y1: 5.2, X2: 70.9, Y2: 1000},
	}}
	p := New(stub, NewParamsCell(detect.Params{}))

	ev, err := p.Process(context.Background(), testFrame(64, 48))
	if err != nil {
		t.Fatal(err)
	}
	d := ev.Detections[0]
	if d.BBox != [4]int{0, 5, 64, 48} {
		t.Errorf("expected clipped bbox [0 5 64 48], got %v", d.BBox)
	}
	if d.Area != 64*43 {
		t.Errorf("expected area %d, got %d", 64*43, d.Area)
	}
}

// TestDetectionOrderPreserved validates engine output order survives into
// the event.
func TestDetectionOrderPreserved(t *testing.T) {
	stub := &stubDetector{results: []detect.RawDetection{
		{Class: "dog", Conf: 0.5, X2: 10, Y2: 10},
		{Class: "person", Conf: 0.9, X2: 20, Y2: 20},
		{Class: "cat", Conf: 0.7, X2: 30, Y2: 30},
	}}
	p := New(stub, NewParamsCell(detect.Params{}))

	ev, _ := p.Process(context.Background(), testFrame(64, 48))
	if len(ev.Detections) != 3 {
		t.Fatalf("expected 3 detections, got %d", len(ev.Detections))
	}
	for i, want := range []string{"dog", "person", "cat"} {
		if ev.Detections[i].Class != want {
			t.Errorf("position %d: expected %s, got %s", i, want, ev.Detections[i].Class)
		}
	}
}

// TestEventFieldsPopulated validates timestamps, fps and inference time are
// sane for a processed frame.
func TestEventFieldsPopulated(t *testing.T) {
	p := New(&stubDetector{}, NewParamsCell(detect.Params{}))

	ev, err := p.Process(context.Background(), testFrame(64, 48))
	if err != nil {
		t.Fatal(err)
	}
	if ev.TS <= 0 {
		t.Errorf("expected wall-clock ts, got %d", ev.TS)
	}
	if ev.FPS < 0 {
		t.Errorf("fps must be >= 0, got %v", ev.FPS)
	}
	if ev.InferenceMS < 0 {
		t.Errorf("inference_ms must be >= 0, got %v", ev.InferenceMS)
	}
	if ev.Motion != 0.0 {
		t.Errorf("first frame motion must be 0.0, got %v", ev.Motion)
	}
	if ev.Detections == nil {
		t.Error("detections must never be nil")
	}
}
