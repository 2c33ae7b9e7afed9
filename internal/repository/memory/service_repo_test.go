package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/pingwatch/internal/domain/service"
)

func TestServiceRepo_ListFilters(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 2, 2, 2, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	m := NewServiceRepo()

	a := &service.Service{Name: "a", URL: "http://a", IntervalMinutes: 1, IsActive: true}
	b := &service.Service{Name: "b", URL: "http://b", IntervalMinutes: 1, IsActive: false}
	c := &service.Service{Name: "c", URL: "http://c", IntervalMinutes: 1, IsActive: true, NextProbeAt: &later}
	for _, s := range []*service.Service{a, b, c} {
		require.NoError(t, m.Create(ctx, s))
	}

	all, err := m.ListServices(ctx, service.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name)

	due, err := m.ListServices(ctx, service.ListFilter{ActiveOnly: true, DueBefore: &now})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, a.ID, due[0].ID)
}

func TestServiceRepo_SaveAssignsHistoryIDs(t *testing.T) {
	ctx := context.Background()
	m := NewServiceRepo()
	s := &service.Service{Name: "x", URL: "http://x", IntervalMinutes: 2, IsActive: true}
	require.NoError(t, m.Create(ctx, s))

	up := service.ApplyResult(*s, service.ProbeResult{Success: true, ObservedAt: time.Now()})
	require.NoError(t, m.Save(ctx, &up))
	require.NotZero(t, up.History[0].ID)

	up2 := service.ApplyResult(up, service.ProbeResult{Success: false, ObservedAt: time.Now()})
	require.NoError(t, m.Save(ctx, &up2))
	assert.Equal(t, up.History[0].ID, up2.History[0].ID)
	assert.Greater(t, up2.History[1].ID, up2.History[0].ID)

	got, err := m.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.TotalProbes)
	assert.Equal(t, service.StatusOffline, got.Status)

	got.History[0].Error = "mutated"
	again, err := m.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, again.History[0].Error)
}

func TestServiceRepo_SaveKeepsRegistrationFields(t *testing.T) {
	ctx := context.Background()
	m := NewServiceRepo()
	s := &service.Service{Name: "keep", URL: "http://keep", IntervalMinutes: 3, IsActive: true}
	require.NoError(t, m.Create(ctx, s))

	up := service.ApplyResult(*s, service.ProbeResult{Success: true, ObservedAt: time.Now()})
	up.URL = "http://changed"
	require.NoError(t, m.Save(ctx, &up))

	got, err := m.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://keep", got.URL)
	assert.Equal(t, service.StatusOnline, got.Status)
}

func TestServiceRepo_NotFound(t *testing.T) {
	m := NewServiceRepo()
	_, err := m.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, service.ErrNotFound)

	s := service.Service{ID: uuid.New()}
	assert.ErrorIs(t, m.Save(context.Background(), &s), service.ErrNotFound)
}

func TestServiceRepo_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	m := NewServiceRepo()
	var ids []uuid.UUID
	for i := 0; i < 10; i++ {
		s := &service.Service{URL: "http://s", IntervalMinutes: 1, IsActive: true}
		require.NoError(t, m.Create(ctx, s))
		ids = append(ids, s.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.GetByID(ctx, id)
			if err != nil {
				return
			}
			up := service.ApplyResult(*s, service.ProbeResult{Success: true, ObservedAt: time.Now()})
			_ = m.Save(ctx, &up)
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, id := range ids {
		s, err := m.GetByID(ctx, id)
		require.NoError(t, err)
		require.Len(t, s.History, 1)
		assert.False(t, seen[s.History[0].ID])
		seen[s.History[0].ID] = true
	}
}

func TestServiceRepo_ListOmitsHistory(t *testing.T) {
	ctx := context.Background()
	m := NewServiceRepo()
	s := &service.Service{Name: "h", URL: "http://h", IntervalMinutes: 1, IsActive: true}
	require.NoError(t, m.Create(ctx, s))

	up := service.ApplyResult(*s, service.ProbeResult{Success: true, ObservedAt: time.Now()})
	require.NoError(t, m.Save(ctx, &up))

	all, err := m.ListServices(ctx, service.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Empty(t, all[0].History)
	assert.EqualValues(t, 1, all[0].TotalProbes)
}

func TestServiceRepo_SaveAppendsToStoredHistory(t *testing.T) {
	ctx := context.Background()
	m := NewServiceRepo()
	s := &service.Service{Name: "a", URL: "http://a", IntervalMinutes: 1, IsActive: true}
	require.NoError(t, m.Create(ctx, s))

	first := service.ApplyResult(*s, service.ProbeResult{Success: true, ObservedAt: time.Now()})
	require.NoError(t, m.Save(ctx, &first))

	listed, err := m.ListServices(ctx, service.ListFilter{})
	require.NoError(t, err)
	second := service.ApplyResult(listed[0], service.ProbeResult{Success: false, ObservedAt: time.Now()})
	require.Len(t, second.History, 1)
	require.NoError(t, m.Save(ctx, &second))

	got, err := m.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, first.History[0].ID, got.History[0].ID)
	assert.Equal(t, second.History[0].ID, got.History[1].ID)
	assert.EqualValues(t, 2, got.TotalProbes)
	assert.EqualValues(t, 1, got.SuccessfulProbes)
}

func TestServiceRepo_SaveRejectsStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewServiceRepo()
	s := &service.Service{Name: "a", URL: "http://a", IntervalMinutes: 1, IsActive: true}
	require.NoError(t, m.Create(ctx, s))
	snapshot := *s

	first := service.ApplyResult(snapshot, service.ProbeResult{Success: true, ObservedAt: time.Now()})
	require.NoError(t, m.Save(ctx, &first))

	late := service.ApplyResult(snapshot, service.ProbeResult{Success: false, ObservedAt: time.Now()})
	assert.ErrorIs(t, m.Save(ctx, &late), service.ErrStale)
	assert.Zero(t, late.History[0].ID)

	got, err := m.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TotalProbes)
	assert.Equal(t, service.StatusOnline, got.Status)
	require.Len(t, got.History, 1)
	assert.Equal(t, first.History[0].ID, got.History[0].ID)
}
