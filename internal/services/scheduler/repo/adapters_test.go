package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/pingwatch/internal/domain/outbox"
	"github.com/NordCoder/pingwatch/internal/domain/service"
)

type txCall struct{ committed, rolledBack bool }

type fakeTx struct{ calls []txCall }

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	f.calls = append(f.calls, txCall{committed: err == nil, rolledBack: err != nil})
	return err
}

type fakeStore struct {
	status  map[uuid.UUID]service.Status
	saveErr error
	saved   []service.Service
}

func (f *fakeStore) ListServices(context.Context, service.ListFilter) ([]service.Service, error) {
	return nil, nil
}

func (f *fakeStore) Save(_ context.Context, s *service.Service) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, *s)
	return nil
}

func (f *fakeStore) LockStatus(_ context.Context, id uuid.UUID) (service.Status, error) {
	st, ok := f.status[id]
	if !ok {
		return "", service.ErrNotFound
	}
	return st, nil
}

type fakeOutbox struct {
	keys []string
	data [][]byte
}

func (f *fakeOutbox) Enqueue(_ context.Context, key string, kind outbox.Kind, data []byte) error {
	if kind != outbox.KindStatusChanged {
		return errors.New("unexpected kind")
	}
	f.keys = append(f.keys, key)
	f.data = append(f.data, data)
	return nil
}

func (f *fakeOutbox) PickBatch(context.Context, int, time.Duration) ([]outbox.Message, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkSuccess(context.Context, []string) error { return nil }

func probed(id uuid.UUID, ok bool, code int) service.Service {
	svc := service.Service{ID: id, Name: "api", URL: "https://api.example.com", IntervalMinutes: 1, IsActive: true, Status: service.StatusOnline}
	c := code
	return service.ApplyResult(svc, service.ProbeResult{Success: ok, HTTPStatus: &c, LatencyMs: 42, ObservedAt: time.Now().UTC()})
}

func TestEventingRepo_EnqueuesOnStatusChange(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{status: map[uuid.UUID]service.Status{id: service.StatusOnline}}
	ob := &fakeOutbox{}
	tx := &fakeTx{}
	r := EventingRepo{Store: store, Outbox: ob, Transactor: tx}

	s := probed(id, false, 503)
	require.NoError(t, r.Save(context.Background(), &s))

	require.Len(t, ob.data, 1)
	var ev outbox.StatusChanged
	require.NoError(t, json.Unmarshal(ob.data[0], &ev))
	assert.Equal(t, id.String(), ev.ServiceID)
	assert.Equal(t, "online", ev.Old)
	assert.Equal(t, "offline", ev.New)
	require.NotNil(t, ev.HTTPStatus)
	assert.Equal(t, 503, *ev.HTTPStatus)
	assert.Contains(t, ob.keys[0], id.String())
	assert.Len(t, store.saved, 1)
	assert.True(t, tx.calls[0].committed)
}

func TestEventingRepo_NoEventWhenUnchanged(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{status: map[uuid.UUID]service.Status{id: service.StatusOnline}}
	ob := &fakeOutbox{}
	r := EventingRepo{Store: store, Outbox: ob, Transactor: &fakeTx{}}

	s := probed(id, true, 200)
	require.NoError(t, r.Save(context.Background(), &s))

	assert.Empty(t, ob.data)
	assert.Len(t, store.saved, 1)
}

func TestEventingRepo_SaveErrorRollsBack(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{status: map[uuid.UUID]service.Status{id: service.StatusUnknown}, saveErr: errors.New("disk full")}
	ob := &fakeOutbox{}
	tx := &fakeTx{}
	r := EventingRepo{Store: store, Outbox: ob, Transactor: tx}

	s := probed(id, true, 200)
	err := r.Save(context.Background(), &s)

	assert.EqualError(t, err, "disk full")
	assert.Empty(t, ob.data)
	assert.True(t, tx.calls[0].rolledBack)
}

func TestEventingRepo_MissingService(t *testing.T) {
	r := EventingRepo{Store: &fakeStore{status: map[uuid.UUID]service.Status{}}, Outbox: &fakeOutbox{}, Transactor: &fakeTx{}}
	s := probed(uuid.New(), true, 200)
	assert.ErrorIs(t, r.Save(context.Background(), &s), service.ErrNotFound)
}
