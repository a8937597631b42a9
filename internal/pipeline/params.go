package pipeline

import (
	"sync"

	"github.com/gabrielmaialva33/vivino/internal/detect"
)

// ParamsCell is the shared mutable cell holding the tunable inference
// parameters. It is written by the command listener and read by the frame
// pipeline at the start of each frame.
//
// Consistency contract: a write is guaranteed visible to the pipeline
// starting from the next frame, never mid-frame. Reads are not linearizable
// with concurrent writes and do not need to be; overwrite-latest semantics
// are acceptable for operator tuning.
type ParamsCell struct {
	mu sync.RWMutex
	p  detect.Params
}

// NewParamsCell creates a cell seeded with the startup parameters.
func NewParamsCell(p detect.Params) *ParamsCell {
	return &ParamsCell{p: p}
}

// Snapshot returns a copy of the current parameters. The class filter slice
// is copied so a concurrent update can never mutate a frame in flight.
func (c *ParamsCell) Snapshot() detect.Params {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := c.p
	if c.p.ClassFilter != nil {
		p.ClassFilter = make([]int, len(c.p.ClassFilter))
		copy(p.ClassFilter, c.p.ClassFilter)
	}
	return p
}

// SetConfThreshold updates the confidence threshold.
func (c *ParamsCell) SetConfThreshold(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.p.ConfThreshold = v
}

// SetClassFilter replaces the class filter. nil clears it.
func (c *ParamsCell) SetClassFilter(ids []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.p.ClassFilter = ids
}
