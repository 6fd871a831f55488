package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/internal/testutil"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// fakeReader serves queued messages, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*ProducerMessage
}

func (p *fakePublisher) Publish(_ context.Context, msg *ProducerMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

type recorded struct {
	topic string
	err   error
}

type fakeRecorder struct {
	mu  sync.Mutex
	obs []recorded
}

func (f *fakeRecorder) RecordMessage(topic string, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, recorded{topic, err})
}

func testConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "fragmenter",
		Topics:  []string{TopicJobs},
		Retry:   RetryConfig{MaxRetries: 2, RetryBackoff: time.Millisecond, DeadLetterTopic: TopicDeadLetter},
	}
}

func TestValidateConsumerConfig(t *testing.T) {
	assert.NoError(t, ValidateConsumerConfig(testConsumerConfig()))

	cases := map[string]func(*ConsumerConfig){
		"no brokers":   func(c *ConsumerConfig) { c.Brokers = nil },
		"no group":     func(c *ConsumerConfig) { c.GroupID = "" },
		"no topics":    func(c *ConsumerConfig) { c.Topics = nil },
		"bad offset":   func(c *ConsumerConfig) { c.AutoOffsetReset = "middle" },
		"neg retries":  func(c *ConsumerConfig) { c.Retry.MaxRetries = -1 },
		"bad sasl":     func(c *ConsumerConfig) { c.Security = SecurityConfig{SASLEnabled: true, SASLMechanism: "GSSAPI"} },
		"no sasl cred": func(c *ConsumerConfig) { c.Security = SecurityConfig{SASLEnabled: true, SASLMechanism: "PLAIN"} },
		"tls no cert":  func(c *ConsumerConfig) { c.Security = SecurityConfig{TLSEnabled: true} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConsumerConfig()
			mutate(&cfg)
			err := ValidateConsumerConfig(cfg)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), "%v", err)
		})
	}
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Topic: TopicJobs, Offset: 1, Value: []byte("a"), Headers: []kafka.Header{{Key: "k", Value: []byte("v")}}},
		{Topic: TopicJobs, Offset: 2, Value: []byte("b")},
	}}
	rec := &fakeRecorder{}
	c := newConsumer(r, testConsumerConfig(), nil, nil)
	c.SetRecorder(rec)

	var mu sync.Mutex
	var seen []string
	c.Subscribe(TopicJobs, func(_ context.Context, m *Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(m.Value))
		if m.Offset == 1 {
			assert.Equal(t, "v", m.Headers["k"])
		}
		return nil
	})

	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)
	require.Eventually(t, func() bool { return r.commits() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, []string{"a", "b"}, seen)
	assert.True(t, r.closed)
	assert.Len(t, rec.obs, 2)
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Topic: TopicJobs, Key: []byte("job"), Value: []byte("x")}}}
	dl := &fakePublisher{}
	log := testutil.NewMockLogger()
	c := newConsumer(r, testConsumerConfig(), dl, log)

	calls := 0
	c.Subscribe(TopicJobs, func(context.Context, *Message) error {
		calls++
		return assert.AnError
	})

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return r.commits() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, 3, calls)
	require.Len(t, dl.msgs, 1)
	assert.Equal(t, TopicDeadLetter, dl.msgs[0].Topic)
	assert.Equal(t, TopicJobs, dl.msgs[0].Headers["original_topic"])
	assert.Equal(t, []byte("job"), dl.msgs[0].Key)
	assert.True(t, log.HasMessage("error", "message dropped after retries"))
}

func TestConsumer_RecoversOnSecondAttempt(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Topic: TopicJobs, Value: []byte("x")}}}
	dl := &fakePublisher{}
	c := newConsumer(r, testConsumerConfig(), dl, nil)

	calls := 0
	c.Subscribe(TopicJobs, func(context.Context, *Message) error {
		calls++
		if calls == 1 {
			return assert.AnError
		}
		return nil
	})

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return r.commits() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	assert.Equal(t, 2, calls)
	assert.Empty(t, dl.msgs)
}

func TestConsumer_UnknownTopicIsCommitted(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Topic: "other", Value: []byte("x")}}}
	c := newConsumer(r, testConsumerConfig(), nil, nil)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return r.commits() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
