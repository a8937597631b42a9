// Package emitter owns the outbound event channel.
//
// All emissions funnel through one Emitter so partial lines can never
// interleave, regardless of which goroutine produced the record.
package emitter

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Lines queued for the mirror while the broker is slow; beyond this the
// mirror copy is dropped.
const mirrorBuffer = 64

// Mirror receives a copy of every emitted line. Mirror failures are
// reported through the log, never to the caller: mirroring is best-effort
// observability, the line channel is the contract.
type Mirror interface {
	Publish(line []byte) error
	Close() error
}

// Emitter writes one record per line to the output channel. It is safe for
// concurrent use; each line is flushed in a single write.
type Emitter struct {
	mu  sync.Mutex
	out io.Writer

	mirror     Mirror
	mirrorCh   chan []byte
	mirrorDone chan struct{}
}

// New creates an Emitter over the given writer (stdout in production).
func New(out io.Writer) *Emitter {
	return &Emitter{out: out}
}

// SetMirror attaches an optional mirror and starts its delivery goroutine.
// Delivery is asynchronous: a publish that blocks (stalled broker, token
// timeout) must never hold up the frame loop, so lines queue in a bounded
// buffer and are dropped once it fills.
func (e *Emitter) SetMirror(m Mirror) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mirror = m
	e.mirrorCh = make(chan []byte, mirrorBuffer)
	e.mirrorDone = make(chan struct{})
	go mirrorLoop(m, e.mirrorCh, e.mirrorDone)
}

// Emit writes one encoded record followed by a newline as a single write.
func (e *Emitter) Emit(line []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := e.out.Write(buf); err != nil {
		return fmt.Errorf("failed to write event line: %w", err)
	}

	if e.mirrorCh != nil {
		select {
		case e.mirrorCh <- line:
		default:
			slog.Debug("event mirror backlogged, dropping line")
		}
	}
	return nil
}

// Close drains queued mirror lines and releases the mirror, if any.
func (e *Emitter) Close() error {
	e.mu.Lock()
	ch, done, m := e.mirrorCh, e.mirrorDone, e.mirror
	e.mirrorCh = nil
	e.mirror = nil
	e.mu.Unlock()

	if ch == nil {
		return nil
	}
	close(ch)
	<-done
	return m.Close()
}

func mirrorLoop(m Mirror, lines <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for line := range lines {
		if err := m.Publish(line); err != nil {
			slog.Warn("event mirror publish failed", "error", err)
		}
	}
}
