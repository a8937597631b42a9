// Package control implements the operator command channel.
//
// A background listener reads one command per line from an input stream
// (stdin when run under a supervisor) and applies it to the shared pipeline
// parameters, or raises the stop signal. The listener is optional control:
// if its input closes or fails, the main loop keeps running.
package control

import (
	"bufio"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gabrielmaialva33/vivino/internal/pipeline"
)

// Command prefixes, case-sensitive.
const (
	cmdStop    = "STOP"
	confPrefix = "CONF:"
	clsPrefix  = "CLASSES:"
)

// RunState is the one-way stop flag shared between the command listener and
// the stream supervisor. It transitions true→false exactly once and is
// never set back.
type RunState struct {
	stopped atomic.Bool
}

// NewRunState returns a RunState in the running position.
func NewRunState() *RunState {
	return &RunState{}
}

// Running reports whether a stop has not yet been requested.
func (r *RunState) Running() bool {
	return !r.stopped.Load()
}

// Stop raises the stop flag. Idempotent.
func (r *RunState) Stop() {
	r.stopped.Store(true)
}

// Listener parses operator commands and applies them to the shared state.
type Listener struct {
	in     io.Reader
	params *pipeline.ParamsCell
	run    *RunState
}

// NewListener creates a Listener over the given input stream.
func NewListener(in io.Reader, params *pipeline.ParamsCell, run *RunState) *Listener {
	return &Listener{in: in, params: params, run: run}
}

// Run reads commands until the input closes, a read fails, or STOP arrives.
// It is meant to run on its own goroutine for the process lifetime.
//
// End-of-input and read failures are equivalent: the listener exits and
// leaves the run state untouched, since losing the control channel must not
// kill an otherwise healthy pipeline.
func (l *Listener) Run() {
	scanner := bufio.NewScanner(l.in)
	for scanner.Scan() {
		if l.apply(strings.TrimSpace(scanner.Text())) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("command channel read failed, listener exiting", "error", err)
		return
	}
	slog.Info("command channel closed, listener exiting")
}

// apply executes a single command line. It returns true when the listener
// should exit. Malformed values are ignored and the prior configuration is
// retained; unrecognized commands are ignored silently.
func (l *Listener) apply(line string) bool {
	switch {
	case line == cmdStop:
		slog.Info("stop command received")
		l.run.Stop()
		return true

	case strings.HasPrefix(line, confPrefix):
		raw := line[len(confPrefix):]
		v, err := strconv.ParseFloat(raw, 64)
		// ParseFloat accepts "NaN", which slips past the range checks
		if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
			slog.Warn("ignoring malformed confidence command", "value", raw)
			return false
		}
		l.params.SetConfThreshold(v)
		slog.Info("confidence threshold updated", "value", v)

	case strings.HasPrefix(line, clsPrefix):
		ids, err := ParseClassList(line[len(clsPrefix):])
		if err != nil {
			slog.Warn("ignoring malformed class filter command", "value", line[len(clsPrefix):])
			return false
		}
		l.params.SetClassFilter(ids)
		slog.Info("class filter updated", "classes", ids)
	}
	return false
}

// ParseClassList parses a comma-separated list of class IDs. Any
// unparseable element rejects the whole line.
func ParseClassList(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
