package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmaialva33/vivino/internal/types"
)

// MockSource generates synthetic frames at a target rate. It exists for
// development without a camera (mock:// addresses) and never fails a read.
type MockSource struct {
	width  int
	height int
	fps    float64

	mu     sync.Mutex
	opened bool
	seq    uint64
	next   time.Time
}

// NewMockSource creates a synthetic source.
func NewMockSource(width, height int, fps float64) *MockSource {
	if fps <= 0 {
		fps = 10
	}
	return &MockSource{width: width, height: height, fps: fps}
}

// Open implements Source.
func (m *MockSource) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opened {
		return fmt.Errorf("mock source already open")
	}
	m.opened = true
	m.next = time.Now()

	slog.Info("mock source opened",
		"resolution", fmt.Sprintf("%dx%d", m.width, m.height),
		"fps", m.fps,
	)
	return nil
}

// Read implements Source, pacing frames to the target rate.
func (m *MockSource) Read(ctx context.Context) (types.Frame, error) {
	m.mu.Lock()
	if !m.opened {
		m.mu.Unlock()
		return types.Frame{}, fmt.Errorf("mock source not open")
	}
	wait := time.Until(m.next)
	m.next = m.next.Add(time.Duration(float64(time.Second) / m.fps))
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		}
	}

	return types.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     m.width,
		Height:    m.height,
		Data:      m.pattern(seq),
		TraceID:   uuid.New().String(),
	}, nil
}

// Close implements Source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

// pattern fills the frame with a slowly shifting gray level so motion
// scoring sees a nonzero signal.
func (m *MockSource) pattern(seq uint64) []byte {
	data := make([]byte, m.width*m.height*types.Channels)
	level := byte(seq * 8 % 256)
	for i := range data {
		data[i] = level
	}
	return data
}
