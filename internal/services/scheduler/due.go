package scheduler

import (
	"time"

	"github.com/NordCoder/pingwatch/internal/domain/service"
)

// SelectDue keeps active services that were never probed or whose next probe is at or before now.
// Input order is preserved.
func SelectDue(services []service.Service, now time.Time) []service.Service {
	out := make([]service.Service, 0, len(services))
	for _, s := range services {
		if isDue(s, now) {
			out = append(out, s)
		}
	}
	return out
}

func isDue(s service.Service, now time.Time) bool {
	if !s.IsActive {
		return false
	}
	return s.NextProbeAt == nil || !s.NextProbeAt.After(now)
}
