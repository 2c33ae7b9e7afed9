package scheduler

import (
	"sync"

	"github.com/google/uuid"
)

type claim int

const (
	claimed claim = iota
	claimBusy
	claimStale
)

// inflight tracks services with a probe in progress and the probe count last persisted
// for each, so overlapping cycles never double-probe and never apply a result to a
// snapshot older than the stored state.
type inflight struct {
	mu      sync.Mutex
	ids     map[uuid.UUID]struct{}
	applied map[uuid.UUID]int64
}

func newInflight() *inflight {
	return &inflight{
		ids:     make(map[uuid.UUID]struct{}),
		applied: make(map[uuid.UUID]int64),
	}
}

// acquire reserves id for a probe on top of a snapshot that had seenTotal probes.
func (f *inflight) acquire(id uuid.UUID, seenTotal int64) claim {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.ids[id]; busy {
		return claimBusy
	}
	if last, ok := f.applied[id]; ok && last > seenTotal {
		return claimStale
	}
	f.ids[id] = struct{}{}
	return claimed
}

// markApplied records that a probe result with total probes was persisted for id.
func (f *inflight) markApplied(id uuid.UUID, total int64) {
	f.mu.Lock()
	if total > f.applied[id] {
		f.applied[id] = total
	}
	f.mu.Unlock()
}

func (f *inflight) release(id uuid.UUID) {
	f.mu.Lock()
	delete(f.ids, id)
	f.mu.Unlock()
}

func (f *inflight) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}
