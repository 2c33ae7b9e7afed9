package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/pingwatch/internal/domain/outbox"
	"github.com/NordCoder/pingwatch/internal/domain/service"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping postgres tests")
	}
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, dsn))

	db, err := NewDB(ctx, Config{DSN: dsn, QueryTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestServiceRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewServiceRepo(db, NewTransactor(db, zap.NewNop()))

	svc := &service.Service{Name: "it", URL: "https://example.com/" + uuid.NewString(), IntervalMinutes: 5, IsActive: true}
	require.NoError(t, repo.Create(ctx, svc))
	require.NotEqual(t, uuid.Nil, svc.ID)
	assert.Equal(t, service.StatusUnknown, svc.Status)

	now := time.Now().UTC().Truncate(time.Microsecond)
	due, err := repo.ListServices(ctx, service.ListFilter{ActiveOnly: true, DueBefore: &now})
	require.NoError(t, err)
	assert.True(t, containsID(due, svc.ID), "never-probed service must be due")

	code := 200
	updated := service.ApplyResult(*svc, service.ProbeResult{Success: true, HTTPStatus: &code, LatencyMs: 33, ObservedAt: now})
	require.NoError(t, repo.Save(ctx, &updated))
	require.Len(t, updated.History, 1)
	assert.NotZero(t, updated.History[0].ID)

	due, err = repo.ListServices(ctx, service.ListFilter{ActiveOnly: true, DueBefore: &now})
	require.NoError(t, err)
	assert.False(t, containsID(due, svc.ID), "service probed now is not due again")

	second := service.ApplyResult(updated, service.ProbeResult{Success: false, ErrorMessage: "timeout after 30000ms", ObservedAt: now.Add(time.Minute)})
	require.NoError(t, repo.Save(ctx, &second))

	got, err := repo.GetByID(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, service.StatusOffline, got.Status)
	assert.EqualValues(t, 2, got.TotalProbes)
	assert.EqualValues(t, 1, got.SuccessfulProbes)
	require.Len(t, got.History, 2)
	assert.Equal(t, updated.History[0].ID, got.History[0].ID)
	assert.Equal(t, "timeout after 30000ms", got.History[1].Error)
	assert.Nil(t, got.History[1].StatusCode)

	st, err := repo.LockStatus(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, service.StatusOffline, st)
}

func TestServiceRepo_SaveMissing(t *testing.T) {
	db := openTestDB(t)
	repo := NewServiceRepo(db, NewTransactor(db, zap.NewNop()))

	s := service.Service{ID: uuid.New(), Status: service.StatusOnline}
	assert.ErrorIs(t, repo.Save(context.Background(), &s), service.ErrNotFound)

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestServiceRepo_SaveRejectsStaleSnapshot(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewServiceRepo(db, NewTransactor(db, zap.NewNop()))

	svc := &service.Service{Name: "stale", URL: "https://example.com/" + uuid.NewString(), IntervalMinutes: 1, IsActive: true}
	require.NoError(t, repo.Create(ctx, svc))
	snapshot := *svc
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := service.ApplyResult(snapshot, service.ProbeResult{Success: true, ObservedAt: now})
	require.NoError(t, repo.Save(ctx, &first))

	late := service.ApplyResult(snapshot, service.ProbeResult{Success: false, ObservedAt: now.Add(time.Second)})
	assert.ErrorIs(t, repo.Save(ctx, &late), service.ErrStale)

	got, err := repo.GetByID(ctx, svc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TotalProbes)
	assert.Equal(t, service.StatusOnline, got.Status)
	require.Len(t, got.History, 1)
	assert.Equal(t, first.History[0].ID, got.History[0].ID)
}

func TestTransactor_RollbackDiscardsOutbox(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx := NewTransactor(db, zap.NewNop())
	ob := NewOutboxRepo(db)
	key := "it:" + uuid.NewString()

	err := tx.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, ob.Enqueue(ctx, key, outbox.KindStatusChanged, []byte(`{}`)))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var n int
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE idempotency_key = $1`, key).Scan(&n))
	assert.Zero(t, n)
}

func TestOutboxRepo_PickAndMark(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ob := NewOutboxRepo(db)
	key := "it:" + uuid.NewString()

	require.NoError(t, ob.Enqueue(ctx, key, outbox.KindStatusChanged, []byte(`{"new":"online"}`)))
	require.NoError(t, ob.Enqueue(ctx, key, outbox.KindStatusChanged, []byte(`{"dup":true}`)))

	msgs, err := ob.PickBatch(ctx, 1000, time.Minute)
	require.NoError(t, err)
	var found *outbox.Message
	for i := range msgs {
		if msgs[i].IdempotencyKey == key {
			found = &msgs[i]
		}
	}
	require.NotNil(t, found)
	assert.JSONEq(t, `{"new":"online"}`, string(found.Data))
	assert.Equal(t, outbox.KindStatusChanged, found.Kind)

	require.NoError(t, ob.MarkSuccess(ctx, []string{key}))
	var status string
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT status FROM outbox WHERE idempotency_key = $1`, key).Scan(&status))
	assert.Equal(t, "SUCCESS", status)
}

func containsID(list []service.Service, id uuid.UUID) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}
