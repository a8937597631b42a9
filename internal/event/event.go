// Package event defines the line-oriented wire records the sidecar emits.
//
// Every record is a single self-contained JSON object with no embedded line
// terminators. Consumers distinguish record kinds by key presence: a full
// frame record carries "frame" and "detections", diagnostics carry "error",
// and lifecycle records carry "status". Encoding is pure; the emitter owns
// flushing lines atomically.
package event

import (
	"encoding/json"
	"math"
)

// Detection is one object instance found by the inference engine, with
// coordinates already coerced to pixel integers by the pipeline.
type Detection struct {
	Class string  `json:"class"`
	Conf  float64 `json:"conf"`
	BBox  [4]int  `json:"bbox"`
	Area  int     `json:"area"`
}

// FrameEvent is the unit emitted downstream, one per successfully
// processed frame.
type FrameEvent struct {
	TS          int64       `json:"ts"`
	FPS         float64     `json:"fps"`
	Detections  []Detection `json:"detections"`
	Motion      float64     `json:"motion"`
	Frame       uint64      `json:"frame"`
	InferenceMS float64     `json:"inference_ms"`
}

// EncodeFrame serializes a FrameEvent into a compact single-line record.
//
// Numeric precision is fixed to bound output size: confidence and motion to
// 3 decimals, fps and inference time to 1 decimal. An empty detection set
// encodes as [] rather than null.
func EncodeFrame(ev FrameEvent) []byte {
	out := ev
	out.FPS = Round1(ev.FPS)
	out.Motion = Round3(ev.Motion)
	out.InferenceMS = Round1(ev.InferenceMS)

	out.Detections = make([]Detection, len(ev.Detections))
	for i, d := range ev.Detections {
		d.Conf = Round3(d.Conf)
		out.Detections[i] = d
	}

	line, _ := json.Marshal(out)
	return line
}

// EncodeReady produces the startup record emitted once the engine is warm.
func EncodeReady(model string) []byte {
	line, _ := json.Marshal(struct {
		Status string `json:"status"`
		Model  string `json:"model"`
	}{Status: "ready", Model: model})
	return line
}

// EncodeStopped produces the terminal record of an orderly shutdown.
func EncodeStopped() []byte {
	line, _ := json.Marshal(struct {
		Status string `json:"status"`
	}{Status: "stopped"})
	return line
}

// EncodeFrameDrop produces the diagnostic record for a transient stream
// fault. frame is the index of the last successfully processed frame.
func EncodeFrameDrop(frame uint64) []byte {
	line, _ := json.Marshal(struct {
		Error string `json:"error"`
		Frame uint64 `json:"frame"`
	}{Error: "frame_drop", Frame: frame})
	return line
}

// EncodeError produces a fatal fault record. Extra context fields are
// merged alongside the "error" key.
func EncodeError(msg string, context map[string]any) []byte {
	rec := make(map[string]any, len(context)+1)
	for k, v := range context {
		rec[k] = v
	}
	rec["error"] = msg
	line, _ := json.Marshal(rec)
	return line
}

// Round1 rounds to 1 decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round3 rounds to 3 decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
