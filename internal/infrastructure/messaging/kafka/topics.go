// Package kafka carries fragmentation jobs and their results over Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

const (
	TopicJobs       = "fragmenter.jobs"
	TopicResults    = "fragmenter.results"
	TopicDeadLetter = "fragmenter.jobs.dlq"

	EventJobRequested = "fragmentation.requested"
	EventJobCompleted = "fragmentation.completed"
	EventJobFailed    = "fragmentation.failed"

	SchemaVersion = "v1"
)

// Message is a consumed record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMessage is a record to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

type MessageHandler func(ctx context.Context, msg *Message) error

// EventEnvelope wraps every payload on the fragmenter topics.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload fails on an empty payload.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "event has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "decode event payload")
	}
	return nil
}

// ToMessage encodes the envelope for topic, keyed by key.
func (e *EventEnvelope) ToMessage(topic, key string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal event envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source":         e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func EnvelopeFromMessage(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode event envelope")
	}
	return &env, nil
}

// TopicConfig describes a topic to create.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

type topicConn interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates the fragmenter topics.
type TopicManager struct {
	conn   topicConn
	logger logging.Logger
}

func NewTopicManager(brokers []string, log logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessagingError, "dial kafka")
	}
	return newTopicManager(conn, log), nil
}

func newTopicManager(conn topicConn, log logging.Logger) *TopicManager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &TopicManager{conn: conn, logger: log.Named("topics")}
}

// EnsureTopics creates the topics that do not exist yet.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, t := range topics {
		if t.Name == "" || t.NumPartitions <= 0 || t.ReplicationFactor <= 0 {
			return errors.Newf(errors.ErrCodeValidation, "invalid topic config %+v", t)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if parts, err := m.conn.ReadPartitions(t.Name); err == nil && len(parts) > 0 {
			continue
		}
		kc := kafka.TopicConfig{
			Topic:             t.Name,
			NumPartitions:     t.NumPartitions,
			ReplicationFactor: t.ReplicationFactor,
		}
		if t.RetentionMs > 0 {
			kc.ConfigEntries = append(kc.ConfigEntries, kafka.ConfigEntry{
				ConfigName:  "retention.ms",
				ConfigValue: fmt.Sprintf("%d", t.RetentionMs),
			})
		}
		if err := m.conn.CreateTopics(kc); err != nil {
			return errors.Wrap(err, errors.ErrCodeMessagingError, "create topic").WithDetail(t.Name)
		}
		m.logger.Info("topic created", logging.String("topic", t.Name))
	}
	return nil
}

func (m *TopicManager) Close() error { return m.conn.Close() }

func DefaultTopics() []TopicConfig {
	const day = int64(24 * time.Hour / time.Millisecond)
	return []TopicConfig{
		{Name: TopicJobs, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * day},
		{Name: TopicResults, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * day},
		{Name: TopicDeadLetter, NumPartitions: 1, ReplicationFactor: 1, RetentionMs: 30 * day},
	}
}
