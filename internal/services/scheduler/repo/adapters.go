package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/NordCoder/pingwatch/internal/domain/outbox"
	"github.com/NordCoder/pingwatch/internal/domain/service"
	"github.com/NordCoder/pingwatch/internal/repository/postgres"
)

type StatusLocker interface {
	LockStatus(ctx context.Context, id uuid.UUID) (service.Status, error)
}

type Store interface {
	service.Repo
	StatusLocker
}

var _ service.Repo = EventingRepo{}

// EventingRepo saves probe results and, in the same transaction, queues a status-change
// event whenever the stored status differs from the new one.
type EventingRepo struct {
	Store      Store
	Outbox     outbox.Repository
	Transactor postgres.Transactor
}

func (a EventingRepo) ListServices(ctx context.Context, f service.ListFilter) ([]service.Service, error) {
	return a.Store.ListServices(ctx, f)
}

func (a EventingRepo) Save(ctx context.Context, s *service.Service) error {
	return a.Transactor.WithTx(ctx, func(txCtx context.Context) error {
		old, err := a.Store.LockStatus(txCtx, s.ID)
		if err != nil {
			return fmt.Errorf("lock status: %w", err)
		}
		if err := a.Store.Save(txCtx, s); err != nil {
			return err
		}
		if old == s.Status {
			return nil
		}

		payload := statusChanged(*s, old)
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal status-changed: %w", err)
		}
		key := fmt.Sprintf("status:%s:%d", s.ID, payload.At.UnixNano())
		if err := a.Outbox.Enqueue(txCtx, key, outbox.KindStatusChanged, b); err != nil {
			return fmt.Errorf("outbox enqueue: %w", err)
		}
		return nil
	})
}

func statusChanged(s service.Service, old service.Status) outbox.StatusChanged {
	ev := outbox.StatusChanged{
		ServiceID: s.ID.String(),
		Name:      s.Name,
		URL:       s.URL,
		Old:       string(old),
		New:       string(s.Status),
		LatencyMs: s.LastResponseTimeMs,
	}
	if s.LastProbeAt != nil {
		ev.At = *s.LastProbeAt
	}
	if n := len(s.History); n > 0 {
		last := s.History[n-1]
		ev.HTTPStatus = last.StatusCode
		ev.Error = last.Error
	}
	return ev
}
