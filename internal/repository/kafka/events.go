package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/pingwatch/internal/domain/outbox"
)

// StatusEvents publishes service status changes as JSON keyed by service id,
// so all events of one service land on one partition in order.
type StatusEvents struct {
	p *Producer
}

func NewStatusEvents(p *Producer) *StatusEvents { return &StatusEvents{p: p} }

func (e *StatusEvents) PublishStatusChanged(ctx context.Context, ev outbox.StatusChanged) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal status-changed: %w", err)
	}
	return e.p.Publish(ctx, []byte(ev.ServiceID), b)
}
