package types

import "time"

// Frame represents a single decoded video frame.
//
// Pixel data is packed RGB, 3 bytes per pixel, row-major. Frames are
// transient: the pipeline reads a frame during one iteration and does not
// retain it (the motion scorer keeps only its own downscaled grayscale copy).
type Frame struct {
	// Seq is the source-local monotonic sequence number
	Seq uint64
	// Timestamp is when the frame was captured/decoded
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data contains the frame data (RGB, 3 bytes per pixel)
	Data []byte
	// TraceID is a unique identifier for tracing a frame across the pipeline
	TraceID string
}

// Channels is the number of color channels in Frame.Data.
const Channels = 3
