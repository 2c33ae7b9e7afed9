package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CycleSummary reports one scheduling pass.
// Succeeded counts probes whose result was persisted; Failed counts services whose probe
// could not be applied or whose write-back failed.
type CycleSummary struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Due        int           `json:"due"`
	Probed     int           `json:"probed"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Canceled   int           `json:"canceled"`
	Online     int           `json:"online"`
	Offline    int           `json:"offline"`
	ReadFailed bool          `json:"read_failed"`
	Errors     []string      `json:"errors,omitempty"`
}

func (s CycleSummary) HasErrors() bool { return s.ReadFailed || s.Failed > 0 }

type tally struct {
	mu  sync.Mutex
	sum CycleSummary
}

func newTally(started time.Time) *tally {
	return &tally{sum: CycleSummary{ID: uuid.NewString(), StartedAt: started}}
}

func (t *tally) add(fn func(s *CycleSummary)) {
	t.mu.Lock()
	fn(&t.sum)
	t.mu.Unlock()
}

func (t *tally) fail(format string, args ...any) {
	t.add(func(s *CycleSummary) {
		s.Failed++
		s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
	})
}

func (t *tally) result(elapsed time.Duration) CycleSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.sum
	out.Duration = elapsed
	out.Errors = append([]string(nil), t.sum.Errors...)
	return out
}
