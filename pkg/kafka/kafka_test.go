package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/procurement-backend/pkg/config"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishCarriesKeyAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	err := p.Publish(context.Background(), Message{
		Topic:   "events",
		Key:     "42",
		Value:   []byte(`{}`),
		Headers: map[string]string{HeaderEventType: "new_order"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, "events", w.msgs[0].Topic)
	require.Equal(t, []byte("42"), w.msgs[0].Key)
	require.Equal(t, HeaderEventType, w.msgs[0].Headers[0].Key)
	require.Equal(t, "new_order", string(w.msgs[0].Headers[0].Value))
}

func TestPublishErrors(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("leader not available")}}
	require.Error(t, p.Publish(context.Background(), Message{Topic: "events"}))
	require.Error(t, p.Publish(context.Background(), Message{}))

	var nilProducer *Producer
	require.Error(t, nilProducer.Publish(context.Background(), Message{Topic: "events"}))
}

func TestPublishEventMarshalsJSON(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}
	require.NoError(t, p.PublishEvent(context.Background(), "events", "k", map[string]int{"a": 1}))
	require.JSONEq(t, `{"a":1}`, string(w.msgs[0].Value))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{})
	require.Error(t, err)
}

type fakeReader struct {
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumerRetriesThenCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		queue: []kafka.Message{
			{Offset: 1, Value: []byte("ok"), Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte("new_order")}}},
			{Offset: 2, Value: []byte("flaky")},
			{Offset: 3, Value: []byte("poison")},
		},
	}
	consumer := newConsumer(reader, nil)
	consumer.retryDelay = time.Millisecond

	calls := map[string]int{}
	var eventTypes []string
	err := consumer.Run(ctx, func(_ context.Context, d Delivery) error {
		calls[string(d.Value)]++
		eventTypes = append(eventTypes, d.Headers[HeaderEventType])
		switch string(d.Value) {
		case "flaky":
			if calls["flaky"] < 2 {
				return errors.New("transient")
			}
		case "poison":
			return errors.New("always")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, reader.committed)
	require.Equal(t, 1, calls["ok"])
	require.Equal(t, 2, calls["flaky"])
	require.Equal(t, defaultHandlerAttempts, calls["poison"])
	require.Equal(t, "new_order", eventTypes[0])
}
