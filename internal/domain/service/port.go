package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("service not found")
	ErrInvalidURL = errors.New("invalid service url")

	// ErrStale is returned by Save when the stored probe count moved past the one the
	// update was computed from.
	ErrStale = errors.New("service state changed since it was read")
)

type ListFilter struct {
	ActiveOnly bool
	DueBefore  *time.Time
}

type Repo interface {
	ListServices(ctx context.Context, f ListFilter) ([]Service, error)
	// Save persists one applied probe result: s.TotalProbes must be exactly one above
	// the stored count, otherwise ErrStale. Only history records with ID == 0 are written.
	Save(ctx context.Context, s *Service) error
}

type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Service, error)
}

type Registry interface {
	Create(ctx context.Context, s *Service) error
}
