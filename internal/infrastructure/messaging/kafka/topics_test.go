package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	type payload struct {
		JobID string `json:"job_id"`
	}
	env, err := NewEventEnvelope(EventJobRequested, "test", payload{JobID: "j"})
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)

	pm, err := env.ToMessage(TopicJobs, "j")
	require.NoError(t, err)
	assert.Equal(t, []byte("j"), pm.Key)
	assert.Equal(t, EventJobRequested, pm.Headers["event_type"])

	got, err := EnvelopeFromMessage(&Message{Value: pm.Value})
	require.NoError(t, err)
	var p payload
	require.NoError(t, got.DecodePayload(&p))
	assert.Equal(t, "j", p.JobID)
}

func TestEnvelopeErrors(t *testing.T) {
	_, err := EnvelopeFromMessage(&Message{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = EnvelopeFromMessage(&Message{Value: []byte("{")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))

	var v struct{}
	assert.Error(t, (&EventEnvelope{}).DecodePayload(&v))
}

type fakeConn struct {
	existing map[string]bool
	created  []kafka.TopicConfig
}

func (c *fakeConn) CreateTopics(topics ...kafka.TopicConfig) error {
	c.created = append(c.created, topics...)
	return nil
}

func (c *fakeConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if c.existing[topics[0]] {
		return []kafka.Partition{{Topic: topics[0]}}, nil
	}
	return nil, assert.AnError
}

func (c *fakeConn) Close() error { return nil }

func TestTopicManager_EnsureTopics(t *testing.T) {
	conn := &fakeConn{existing: map[string]bool{TopicJobs: true}}
	m := newTopicManager(conn, nil)

	require.NoError(t, m.EnsureTopics(context.Background(), DefaultTopics()))
	require.Len(t, conn.created, 2)
	assert.Equal(t, TopicResults, conn.created[0].Topic)
	assert.Equal(t, "retention.ms", conn.created[0].ConfigEntries[0].ConfigName)
	assert.Equal(t, TopicDeadLetter, conn.created[1].Topic)

	err := m.EnsureTopics(context.Background(), []TopicConfig{{Name: "x"}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}
