package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/pingwatch/internal/domain/service"
)

var (
	_ service.Repo     = (*ServiceRepo)(nil)
	_ service.Reader   = (*ServiceRepo)(nil)
	_ service.Registry = (*ServiceRepo)(nil)
)

const historyLimit = 100

type ServiceRepo struct {
	db *DB
	tx Transactor
}

func NewServiceRepo(db *DB, tx Transactor) *ServiceRepo { return &ServiceRepo{db: db, tx: tx} }

const (
	serviceCols = `id, name, url, interval_minutes, is_active, next_probe_at, last_probe_at, status,
       last_response_time_ms, total_probes, successful_probes, created_at, updated_at`

	qServiceInsert = `
INSERT INTO services (id, name, url, interval_minutes, is_active, next_probe_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + serviceCols

	qServiceGet = `SELECT ` + serviceCols + ` FROM services WHERE id = $1`

	qServiceList = `
SELECT ` + serviceCols + `
FROM services
WHERE ($1::boolean = FALSE OR is_active)
  AND ($2::timestamptz IS NULL OR next_probe_at IS NULL OR next_probe_at <= $2)
ORDER BY next_probe_at NULLS FIRST, created_at, id`

	qServiceLockStatus = `SELECT status FROM services WHERE id = $1 FOR UPDATE`

	qServiceUpdateStats = `
UPDATE services
SET status = $2,
    last_probe_at = $3,
    next_probe_at = $4,
    last_response_time_ms = $5,
    total_probes = $6,
    successful_probes = $7,
    updated_at = now()
WHERE id = $1 AND total_probes = $6 - 1
RETURNING updated_at`

	qServiceExists = `SELECT EXISTS (SELECT 1 FROM services WHERE id = $1)`

	qHistoryInsert = `
INSERT INTO probe_history (service_id, ts, status, response_time_ms, status_code, error)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	qHistoryRecent = `
SELECT id, ts, status, response_time_ms, status_code, error
FROM probe_history
WHERE service_id = $1
ORDER BY ts DESC, id DESC
LIMIT $2`
)

func scanService(row pgx.Row, s *service.Service) error {
	var status string
	if err := row.Scan(
		&s.ID,
		&s.Name,
		&s.URL,
		&s.IntervalMinutes,
		&s.IsActive,
		&s.NextProbeAt,
		&s.LastProbeAt,
		&status,
		&s.LastResponseTimeMs,
		&s.TotalProbes,
		&s.SuccessfulProbes,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrNotFound
		}
		return fmt.Errorf("scan service: %w", err)
	}
	s.Status = service.Status(status)
	return nil
}

func (r *ServiceRepo) Create(ctx context.Context, s *service.Service) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = service.StatusUnknown
	}
	row := r.db.execQueryer(ctx).QueryRow(ctx, qServiceInsert,
		s.ID, s.Name, s.URL, s.IntervalMinutes, s.IsActive, s.NextProbeAt, string(s.Status))
	if err := scanService(row, s); err != nil {
		return mapPgError(err)
	}
	return nil
}

// GetByID loads a service with its most recent history, oldest first.
func (r *ServiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*service.Service, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	var s service.Service
	if err := scanService(eq.QueryRow(ctx, qServiceGet, id), &s); err != nil {
		return nil, err
	}

	rows, err := eq.Query(ctx, qHistoryRecent, id, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var hist []service.ProbeRecord
	for rows.Next() {
		var (
			rec    service.ProbeRecord
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &status, &rec.ResponseTimeMs, &rec.StatusCode, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Status = service.Status(status)
		hist = append(hist, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	for i, j := 0, len(hist)-1; i < j; i, j = i+1, j-1 {
		hist[i], hist[j] = hist[j], hist[i]
	}
	s.History = hist
	return &s, nil
}

// ListServices returns services matching f without their history.
func (r *ServiceRepo) ListServices(ctx context.Context, f service.ListFilter) ([]service.Service, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qServiceList, f.ActiveOnly, f.DueBefore)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var out []service.Service
	for rows.Next() {
		var s service.Service
		if err := scanService(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// LockStatus returns the stored status and holds a row lock until the surrounding transaction ends.
func (r *ServiceRepo) LockStatus(ctx context.Context, id uuid.UUID) (service.Status, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var status string
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qServiceLockStatus, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", service.ErrNotFound
		}
		return "", fmt.Errorf("lock service: %w", err)
	}
	return service.Status(status), nil
}

// Save writes the probe stats of s and appends its unsaved history records.
// The update only lands when the stored count is one below s.TotalProbes; otherwise
// ErrStale. Stored records get their IDs assigned in s.History.
func (r *ServiceRepo) Save(ctx context.Context, s *service.Service) error {
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		ctx, cancel := r.db.withTimeout(ctx)
		defer cancel()
		eq := r.db.execQueryer(ctx)

		var updated time.Time
		err := eq.QueryRow(ctx, qServiceUpdateStats,
			s.ID, string(s.Status), s.LastProbeAt, s.NextProbeAt,
			s.LastResponseTimeMs, s.TotalProbes, s.SuccessfulProbes,
		).Scan(&updated)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := eq.QueryRow(ctx, qServiceExists, s.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check service: %w", err)
			}
			if exists {
				return fmt.Errorf("save %s: %w", s.ID, service.ErrStale)
			}
			return fmt.Errorf("save %s: %w", s.ID, service.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("update service: %w", mapPgError(err))
		}

		for i := range s.History {
			h := &s.History[i]
			if h.ID != 0 {
				continue
			}
			if err := eq.QueryRow(ctx, qHistoryInsert,
				s.ID, h.Timestamp, string(h.Status), h.ResponseTimeMs, h.StatusCode, h.Error,
			).Scan(&h.ID); err != nil {
				return fmt.Errorf("insert history: %w", mapPgError(err))
			}
		}
		s.UpdatedAt = updated
		return nil
	})
}
