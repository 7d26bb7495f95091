package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type sitePayload struct {
	SiteID string `json:"site_id"`
	Name   string `json:"name"`
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	return NewKafkaHeaderCarrier(&msg.Headers).Get(key)
}

func TestNewEvent(t *testing.T) {
	data := sitePayload{SiteID: "site-1", Name: "Bakery"}
	evt, err := NewEvent("site.created", "site-1", "site", "siterank", data)
	require.NoError(t, err)

	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, "site.created", evt.EventType)
	assert.Equal(t, "site-1", evt.AggregateID)
	assert.Equal(t, "site", evt.AggregateType)
	assert.Equal(t, 1, evt.Version)
	assert.WithinDuration(t, time.Now().UTC(), evt.OccurredAt, 2*time.Second)

	var got sitePayload
	require.NoError(t, evt.UnmarshalData(&got))
	assert.Equal(t, data, got)

	_, err = NewEvent("site.created", "site-1", "site", "siterank", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site.created")

	bad := &Event{Data: json.RawMessage(`nope`)}
	assert.Error(t, bad.UnmarshalData(&sitePayload{}))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "siterank.site.created", Topic("site", "created"))
	assert.Equal(t, "siterank.review.updated", Topic("review", "updated"))
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"broker1:9092", "broker2:9092"})
	assert.Len(t, cfg.Brokers, 2)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
}

func TestPublish_WritesKeyedMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(t.Context(), "publish")
	defer span.End()

	w := &fakeWriter{}
	p := &Producer{writer: w, logger: NewProducer(ProducerConfig{}, nil).logger}

	evt, err := NewEvent("review.created", "rev-1", "review", "siterank", map[string]int{"rating": 5})
	require.NoError(t, err)
	evt.WithCorrelationID("corr-1")

	topic := "siterank.test.publish_ok"
	require.NoError(t, p.Publish(ctx, topic, evt))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "rev-1", string(msg.Key))
	assert.Equal(t, "review.created", headerValue(msg, "event_type"))
	assert.Equal(t, "siterank", headerValue(msg, "source"))
	assert.Equal(t, "corr-1", headerValue(msg, "correlation_id"))
	assert.Contains(t, headerValue(msg, "traceparent"), span.SpanContext().TraceID().String())

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.EventID, decoded.EventID)
	assert.JSONEq(t, `{"rating":5}`, string(decoded.Data))

	assert.Equal(t, 1.0, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublish_OmitsEmptyCorrelationHeader(t *testing.T) {
	evt, err := NewEvent("site.deleted", "site-2", "site", "siterank", nil)
	require.NoError(t, err)

	msg, err := message(t.Context(), "siterank.site.deleted", evt)
	require.NoError(t, err)
	assert.Empty(t, headerValue(msg, "correlation_id"))
}

func TestPublish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &Producer{writer: w, logger: NewProducer(ProducerConfig{}, nil).logger}

	evt, err := NewEvent("site.updated", "site-3", "site", "siterank", nil)
	require.NoError(t, err)

	topic := "siterank.test.publish_err"
	err = p.Publish(t.Context(), topic, evt)
	require.Error(t, err)
	assert.ErrorIs(t, err, w.err)
	assert.Contains(t, err.Error(), topic)
	assert.Equal(t, 1.0, testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic)))
	assert.Zero(t, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))
}

func TestNewProducer_CloseWithoutBroker(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	assert.NoError(t, p.Close())
}

func TestPingBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()
	err = PingBrokers(ctx, []string{"127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no broker reachable")
}

func TestKafkaHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "event_type", Value: []byte("site.created")}}
	carrier := NewKafkaHeaderCarrier(&headers)

	assert.Equal(t, "site.created", carrier.Get("event_type"))
	assert.Empty(t, carrier.Get("missing"))

	carrier.Set("event_type", "site.updated")
	carrier.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	assert.Len(t, headers, 2)
	assert.Equal(t, "site.updated", carrier.Get("event_type"))
	assert.ElementsMatch(t, []string{"event_type", "traceparent"}, carrier.Keys())
}
