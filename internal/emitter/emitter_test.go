package emitter

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// lockedBuffer makes bytes.Buffer safe for the concurrent emit test and
// records the size of each individual write.
type lockedBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes []int
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, len(p))
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestEmitSingleWritePerLine validates each record plus its newline lands
// in exactly one Write call, the property that makes lines atomic.
func TestEmitSingleWritePerLine(t *testing.T) {
	buf := &lockedBuffer{}
	e := New(buf)

	if err := e.Emit([]byte(`{"status":"ready"}`)); err != nil {
		t.Fatal(err)
	}
	if err := e.Emit([]byte(`{"frame":1}`)); err != nil {
		t.Fatal(err)
	}

	if len(buf.writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(buf.writes))
	}
	if buf.String() != "{\"status\":\"ready\"}\n{\"frame\":1}\n" {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

// TestConcurrentEmitsNeverInterleave validates lines from competing
// goroutines stay whole.
func TestConcurrentEmitsNeverInterleave(t *testing.T) {
	buf := &lockedBuffer{}
	e := New(buf)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			line := []byte(strings.Repeat(string(rune('a'+g)), 100))
			for i := 0; i < 50; i++ {
				e.Emit(line)
			}
		}(g)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 200 {
		t.Fatalf("expected 200 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if len(line) != 100 || strings.Count(line, line[:1]) != 100 {
			t.Fatalf("interleaved line: %q", line)
		}
	}
}

// failMirror always fails to publish.
type failMirror struct{ published int }

func (m *failMirror) Publish(line []byte) error {
	m.published++
	return errors.New("broker gone")
}
func (m *failMirror) Close() error { return nil }

// TestMirrorFailureDoesNotFailEmit validates the mirror is best-effort:
// its errors never surface to the emitting caller.
func TestMirrorFailureDoesNotFailEmit(t *testing.T) {
	buf := &lockedBuffer{}
	e := New(buf)
	m := &failMirror{}
	e.SetMirror(m)

	if err := e.Emit([]byte(`{"frame":1}`)); err != nil {
		t.Fatalf("mirror failure leaked: %v", err)
	}
	// Close drains the mirror queue, so the attempt is visible afterwards
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if m.published != 1 {
		t.Errorf("expected mirror to be attempted once, got %d", m.published)
	}
	if !strings.Contains(buf.String(), `{"frame":1}`) {
		t.Error("line missing from primary channel")
	}
}

// stalledMirror blocks every publish until released.
type stalledMirror struct {
	release chan struct{}
}

func (m *stalledMirror) Publish(line []byte) error {
	<-m.release
	return nil
}
func (m *stalledMirror) Close() error { return nil }

// TestStalledMirrorDoesNotBlockEmit validates a broker that stops
// accepting publishes cannot throttle the primary channel: every Emit
// returns without waiting on the mirror, and overflow lines are dropped
// from the mirror only, never from the output writer.
func TestStalledMirrorDoesNotBlockEmit(t *testing.T) {
	buf := &lockedBuffer{}
	e := New(buf)
	m := &stalledMirror{release: make(chan struct{})}
	e.SetMirror(m)

	const lines = 100 // more than the mirror can queue
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < lines; i++ {
			if err := e.Emit([]byte(`{"frame":1}`)); err != nil {
				t.Errorf("emit %d: %v", i, err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("emits blocked behind a stalled mirror")
	}

	if got := strings.Count(buf.String(), "\n"); got != lines {
		t.Errorf("primary channel lost lines: expected %d, got %d", lines, got)
	}

	close(m.release)
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
