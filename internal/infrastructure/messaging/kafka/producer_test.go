package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed++
	return nil
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(ProducerConfig{}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = NewProducer(ProducerConfig{Brokers: []string{"b:9092"}, MaxRetries: -1}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, ProducerConfig{Brokers: []string{"b:9092"}}, nil)

	err := p.Publish(context.Background(), &ProducerMessage{
		Topic:   TopicResults,
		Key:     []byte("job-1"),
		Value:   []byte(`{}`),
		Headers: map[string]string{"event_type": EventJobCompleted},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)
	assert.Equal(t, TopicResults, w.written[0].Topic)
	assert.Equal(t, []byte("job-1"), w.written[0].Key)
	assert.False(t, w.written[0].Time.IsZero())
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte(EventJobCompleted)}}, w.written[0].Headers)
}

func TestProducer_PublishRejects(t *testing.T) {
	p := newProducer(&fakeWriter{}, ProducerConfig{MaxMessageBytes: 4}, nil)
	ctx := context.Background()

	assert.True(t, errors.IsCode(p.Publish(ctx, &ProducerMessage{Value: []byte("x")}), errors.ErrCodeValidation))
	assert.True(t, errors.IsCode(p.Publish(ctx, &ProducerMessage{Topic: "t"}), errors.ErrCodeValidation))
	assert.True(t, errors.IsCode(p.Publish(ctx, &ProducerMessage{Topic: "t", Value: []byte("too long")}), errors.ErrCodeValidation))
}

func TestProducer_WriteError(t *testing.T) {
	p := newProducer(&fakeWriter{err: assert.AnError}, ProducerConfig{}, nil)
	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessagingError))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, ProducerConfig{}, nil)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")}), ErrProducerClosed)
}
