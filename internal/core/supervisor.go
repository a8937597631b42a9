// Package core drives the sidecar's main loop.
//
// The Supervisor owns the video source, detects acquisition failure,
// reconnects with a bounded delay, and pushes every successfully read
// frame through the pipeline. It is the only goroutine that processes
// frames and emits frame events; the command listener runs beside it and
// communicates only through the params cell and the run state.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gabrielmaialva33/vivino/internal/control"
	"github.com/gabrielmaialva33/vivino/internal/emitter"
	"github.com/gabrielmaialva33/vivino/internal/event"
	"github.com/gabrielmaialva33/vivino/internal/metrics"
	"github.com/gabrielmaialva33/vivino/internal/pipeline"
	"github.com/gabrielmaialva33/vivino/internal/stream"
)

// State is the supervisor's lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DefaultReconnectWait is the pause between reconnection attempts. The
// delay is fixed, not exponential: a live source is assumed recoverable
// and the loop retries indefinitely until an explicit stop.
const DefaultReconnectWait = 1 * time.Second

// Supervisor runs the acquisition and processing loop.
type Supervisor struct {
	source stream.Source
	pipe   *pipeline.Pipeline
	emit   *emitter.Emitter
	run    *control.RunState

	reconnectWait time.Duration
	state         State
}

// Config wires a Supervisor.
type Config struct {
	Source   stream.Source
	Pipeline *pipeline.Pipeline
	Emitter  *emitter.Emitter
	Run      *control.RunState
	// ReconnectWait overrides DefaultReconnectWait when positive
	ReconnectWait time.Duration
}

// New creates a Supervisor.
func New(cfg Config) *Supervisor {
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = DefaultReconnectWait
	}
	return &Supervisor{
		source:        cfg.Source,
		pipe:          cfg.Pipeline,
		emit:          cfg.Emitter,
		run:           cfg.Run,
		reconnectWait: wait,
		state:         StateConnecting,
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return s.state
}

// Run executes the full lifecycle: warm the engine, announce readiness,
// open the source, stream until stopped. A nil return means an orderly
// stop (process exit 0); any error is unrecoverable and the process must
// exit non-zero.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.pipe.Warmup(ctx); err != nil {
		s.emit.Emit(event.EncodeError(err.Error(), map[string]any{"model": s.pipe.Model()}))
		s.state = StateStopped
		return err
	}
	s.emit.Emit(event.EncodeReady(s.pipe.Model()))

	// First open gets no retry: an un-openable source at startup is
	// misconfiguration, not transient loss.
	if err := s.source.Open(ctx); err != nil {
		s.emit.Emit(event.EncodeError("cannot open stream", map[string]any{"detail": err.Error()}))
		s.state = StateStopped
		return fmt.Errorf("failed to open stream: %w", err)
	}

	s.state = StateStreaming
	slog.Info("supervisor streaming", "reconnect_wait", s.reconnectWait)

	err := s.streamLoop(ctx)

	s.state = StateStopping
	if cerr := s.source.Close(); cerr != nil {
		slog.Warn("failed to release source", "error", cerr)
	}

	if err == nil {
		s.emit.Emit(event.EncodeStopped())
		slog.Info("supervisor stopped", "frames", s.pipe.FrameIndex())
	}
	s.state = StateStopped
	return err
}

// streamLoop pulls and processes frames until a stop is requested or a
// detection failure makes the process non-viable. A nil return is an
// orderly stop.
func (s *Supervisor) streamLoop(ctx context.Context) error {
	lastLog := time.Now()
	logInterval := 5 * time.Second

	for {
		// Stop flag is checked between reads, so after STOP at most one
		// already-read frame is processed before shutdown.
		if !s.run.Running() {
			return nil
		}
		if ctx.Err() != nil {
			// Process termination signal is an operator stop
			return nil
		}

		frame, err := s.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !s.recover(ctx, err) {
				return nil
			}
			continue
		}

		ev, perr := s.pipe.Process(ctx, frame)
		if perr != nil {
			// Engine failure is fatal: a systematically failing engine
			// must be visible, not masked as dropped frames.
			s.emit.Emit(event.EncodeError("inference failed", map[string]any{
				"detail": perr.Error(),
				"frame":  s.pipe.FrameIndex() + 1,
			}))
			return perr
		}

		if eerr := s.emit.Emit(event.EncodeFrame(ev)); eerr != nil {
			// Losing stdout means losing the parent; nothing downstream
			// can hear us anymore.
			return fmt.Errorf("event channel failed: %w", eerr)
		}

		// Log stats periodically
		if time.Since(lastLog) >= logInterval {
			slog.Debug("pipeline stats",
				"frames", s.pipe.FrameIndex(),
				"fps", ev.FPS,
				"motion", ev.Motion,
				"detections", len(ev.Detections),
				"last_seq", frame.Seq,
			)
			lastLog = time.Now()
		}
	}
}

// recover handles one transient stream fault: emit a diagnostic, release
// the source, pause, reopen. Returns false when a stop arrived during
// recovery.
func (s *Supervisor) recover(ctx context.Context, cause error) bool {
	slog.Warn("stream read failed, reconnecting",
		"error", cause,
		"frame", s.pipe.FrameIndex(),
		"wait", s.reconnectWait,
	)
	s.emit.Emit(event.EncodeFrameDrop(s.pipe.FrameIndex()))
	metrics.FrameDrops.Inc()

	if err := s.source.Close(); err != nil {
		slog.Warn("failed to release source", "error", err)
	}

	select {
	case <-time.After(s.reconnectWait):
	case <-ctx.Done():
		return false
	}
	if !s.run.Running() {
		return false
	}

	metrics.Reconnects.Inc()
	if err := s.source.Open(ctx); err != nil {
		// Reopen failure is another transient fault; the next loop
		// iteration will fail its read and come back here.
		slog.Warn("stream reopen failed", "error", err)
	}
	return true
}
