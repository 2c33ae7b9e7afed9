package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/NordCoder/pingwatch/internal/domain/outbox"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestStatusEvents_PublishesJSONKeyedByService(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tp)
	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	defer span.End()

	w := &captureWriter{}
	ev := NewStatusEvents(newProducer(w, "status", nil))

	code := 500
	err := ev.PublishStatusChanged(ctx, outbox.StatusChanged{
		ServiceID:  "3f7c",
		Old:        "online",
		New:        "offline",
		At:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		HTTPStatus: &code,
		Error:      "request failed with status code 500",
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "3f7c", string(msg.Key))
	var got outbox.StatusChanged
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "offline", got.New)
	assert.Equal(t, 500, *got.HTTPStatus)

	var traceparent string
	for _, h := range msg.Headers {
		if h.Key == "traceparent" {
			traceparent = string(h.Value)
		}
	}
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}

func TestProducer_WrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&captureWriter{err: boom}, "status", nil)
	err := p.Publish(context.Background(), []byte("k"), []byte("v"))
	assert.ErrorIs(t, err, boom)
}

func TestEnsureTopic_NoBrokers(t *testing.T) {
	assert.Error(t, EnsureTopic(context.Background(), nil, TopicSpec{Name: "x"}, nil))
}
