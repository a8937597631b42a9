package pipeline

import (
	"sync"
	"testing"

	"github.com/gabrielmaialva33/vivino/internal/detect"
)

// TestSnapshotCopiesClassFilter validates a snapshot can never be mutated
// by a later filter update.
func TestSnapshotCopiesClassFilter(t *testing.T) {
	cell := NewParamsCell(detect.Params{ClassFilter: []int{0, 1}})

	snap := cell.Snapshot()
	cell.SetClassFilter([]int{7})

	if len(snap.ClassFilter) != 2 || snap.ClassFilter[0] != 0 || snap.ClassFilter[1] != 1 {
		t.Errorf("snapshot mutated by later write: %v", snap.ClassFilter)
	}
}

// TestConcurrentReadersAndWriter exercises the cell under the race
// detector: one writer (the command listener) against a reading pipeline.
func TestConcurrentReadersAndWriter(t *testing.T) {
	cell := NewParamsCell(detect.Params{ConfThreshold: 0.35, ClassFilter: []int{0}})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			cell.SetConfThreshold(float64(i%100) / 100)
			cell.SetClassFilter([]int{i % 10})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			p := cell.Snapshot()
			if p.ConfThreshold < 0 || p.ConfThreshold > 1 {
				t.Errorf("torn read: %v", p.ConfThreshold)
				return
			}
		}
	}()

	wg.Wait()
}
