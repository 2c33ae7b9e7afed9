package service

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusOnline, StatusOffline:
		return true
	}
	return false
}

// Service is a monitored HTTP endpoint together with its accumulated probe stats.
type Service struct {
	ID                 uuid.UUID     `json:"id"`
	Name               string        `json:"name"`
	URL                string        `json:"url"`
	IntervalMinutes    int           `json:"interval_minutes"`
	IsActive           bool          `json:"is_active"`
	NextProbeAt        *time.Time    `json:"next_probe_at,omitempty"`
	LastProbeAt        *time.Time    `json:"last_probe_at,omitempty"`
	Status             Status        `json:"status"`
	LastResponseTimeMs int64         `json:"last_response_time_ms"`
	TotalProbes        int64         `json:"total_probes"`
	SuccessfulProbes   int64         `json:"successful_probes"`
	History            []ProbeRecord `json:"history"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

func (s Service) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// UptimeRatio is SuccessfulProbes/TotalProbes, 0 before the first probe.
func (s Service) UptimeRatio() float64 {
	if s.TotalProbes == 0 {
		return 0
	}
	return float64(s.SuccessfulProbes) / float64(s.TotalProbes)
}

// ProbeRecord is one history entry. ID is assigned by the store; zero means not persisted yet.
type ProbeRecord struct {
	ID             int64     `json:"id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Status         Status    `json:"status"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	StatusCode     *int      `json:"status_code,omitempty"`
	Error          string    `json:"error,omitempty"`
}

type ProbeResult struct {
	Success      bool
	HTTPStatus   *int
	LatencyMs    int64
	ErrorMessage string
	ObservedAt   time.Time
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
