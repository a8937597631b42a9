// Package stream provides video frame sources.
//
// The supervisor drives a Source through a pull model: Open, then Read one
// frame at a time, Close on fault or shutdown. Sources do not reconnect on
// their own; recovery policy belongs to the supervisor.
package stream

import (
	"context"
	"errors"

	"github.com/gabrielmaialva33/vivino/internal/types"
)

// ErrEndOfStream is returned by Read when the source has no further
// frames. The supervisor treats it like any other read failure: release,
// pause, reopen.
var ErrEndOfStream = errors.New("stream: end of stream")

// Source is the video acquisition capability.
type Source interface {
	// Open acquires the source. An error from the first Open indicates
	// misconfiguration and is fatal for startup; later Opens are part of
	// the supervisor's reconnect loop.
	Open(ctx context.Context) error
	// Read blocks until the next frame is available. It returns
	// ErrEndOfStream when the stream ends and other errors on read
	// failures; after an error the source must be reopened.
	Read(ctx context.Context) (types.Frame, error)
	// Close releases the source. Safe to call on a closed source.
	Close() error
}
