package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/pingwatch/internal/domain/service"
)

var (
	_ service.Repo     = (*ServiceRepo)(nil)
	_ service.Reader   = (*ServiceRepo)(nil)
	_ service.Registry = (*ServiceRepo)(nil)
)

// ServiceRepo keeps services in process memory. Listing follows insertion order.
type ServiceRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*service.Service
	order   []uuid.UUID
	nextRec int64
	now     func() time.Time
}

func NewServiceRepo() *ServiceRepo {
	return &ServiceRepo{
		byID: make(map[uuid.UUID]*service.Service),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *ServiceRepo) Create(_ context.Context, s *service.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if _, exists := m.byID[s.ID]; exists {
		return fmt.Errorf("service %s already exists", s.ID)
	}
	if s.Status == "" {
		s.Status = service.StatusUnknown
	}
	now := m.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.assignIDs(s)

	cp := clone(*s)
	m.byID[s.ID] = &cp
	m.order = append(m.order, s.ID)
	return nil
}

func (m *ServiceRepo) GetByID(_ context.Context, id uuid.UUID) (*service.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	cp := clone(*s)
	return &cp, nil
}

// ListServices returns services matching f without their history.
func (m *ServiceRepo) ListServices(_ context.Context, f service.ListFilter) ([]service.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]service.Service, 0, len(m.order))
	for _, id := range m.order {
		s := m.byID[id]
		if f.ActiveOnly && !s.IsActive {
			continue
		}
		if f.DueBefore != nil && s.NextProbeAt != nil && s.NextProbeAt.After(*f.DueBefore) {
			continue
		}
		cp := *s
		cp.History = nil
		out = append(out, clone(cp))
	}
	return out, nil
}

// Save applies the probe state of s on top of the stored service. Stored history is kept
// and records of s without an ID are appended with fresh IDs, which are also set in s.History.
func (m *ServiceRepo) Save(_ context.Context, s *service.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.byID[s.ID]
	if !ok {
		return fmt.Errorf("save %s: %w", s.ID, service.ErrNotFound)
	}
	if s.TotalProbes != cur.TotalProbes+1 {
		return fmt.Errorf("save %s: stored %d probes, update has %d: %w",
			s.ID, cur.TotalProbes, s.TotalProbes, service.ErrStale)
	}
	s.UpdatedAt = m.now()

	next := clone(*cur)
	next.Status = s.Status
	next.LastProbeAt = copyTime(s.LastProbeAt)
	next.NextProbeAt = copyTime(s.NextProbeAt)
	next.LastResponseTimeMs = s.LastResponseTimeMs
	next.TotalProbes = s.TotalProbes
	next.SuccessfulProbes = s.SuccessfulProbes
	next.UpdatedAt = s.UpdatedAt
	for i := range s.History {
		if s.History[i].ID != 0 {
			continue
		}
		m.nextRec++
		s.History[i].ID = m.nextRec
		next.History = append(next.History, s.History[i])
	}
	m.byID[s.ID] = &next
	return nil
}

func (m *ServiceRepo) assignIDs(s *service.Service) {
	for i := range s.History {
		if s.History[i].ID == 0 {
			m.nextRec++
			s.History[i].ID = m.nextRec
		}
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func clone(s service.Service) service.Service {
	out := s
	out.NextProbeAt = copyTime(s.NextProbeAt)
	out.LastProbeAt = copyTime(s.LastProbeAt)
	out.History = append([]service.ProbeRecord(nil), s.History...)
	return out
}
