package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
}

type ConsumerConfig struct {
	Brokers         []string       `mapstructure:"brokers"`
	GroupID         string         `mapstructure:"group_id"`
	Topics          []string       `mapstructure:"topics"`
	AutoOffsetReset string         `mapstructure:"auto_offset_reset"` // earliest, latest
	SessionTimeout  time.Duration  `mapstructure:"session_timeout"`
	MaxWait         time.Duration  `mapstructure:"max_wait"`
	Retry           RetryConfig    `mapstructure:"retry"`
	Security        SecurityConfig `mapstructure:",squash"`
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// MessageRecorder receives one observation per handled message.
type MessageRecorder interface {
	RecordMessage(topic string, d time.Duration, err error)
}

// Consumer fetches messages one at a time and commits each after its handler
// returns, so a crash replays at most the message in flight.  Messages whose
// handler keeps failing go to the dead letter topic and are committed.
type Consumer struct {
	reader     reader
	config     ConsumerConfig
	logger     logging.Logger
	deadLetter publisher
	recorder   MessageRecorder

	handlers map[string]MessageHandler
	mu       sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.ErrCodeValidation, "group_id required")
	}
	if len(cfg.Topics) == 0 {
		return errors.New(errors.ErrCodeValidation, "topics required")
	}
	if cfg.AutoOffsetReset != "" && cfg.AutoOffsetReset != "earliest" && cfg.AutoOffsetReset != "latest" {
		return errors.Newf(errors.ErrCodeValidation, "invalid auto_offset_reset %q", cfg.AutoOffsetReset)
	}
	if cfg.Retry.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "max_retries must be >= 0")
	}
	return cfg.Security.validate()
}

// NewConsumer builds a group reader.  deadLetter may be nil.
func NewConsumer(cfg ConsumerConfig, deadLetter *Producer, log logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	applyConsumerDefaults(&cfg)

	tlsCfg, err := cfg.Security.tlsConfig()
	if err != nil {
		return nil, err
	}
	mech, err := cfg.Security.mechanism()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigError, "create sasl mechanism")
	}

	rc := kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		MaxWait:        cfg.MaxWait,
		SessionTimeout: cfg.SessionTimeout,
		StartOffset:    kafka.FirstOffset,
		Dialer:         &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true, TLS: tlsCfg, SASLMechanism: mech},
	}
	if cfg.AutoOffsetReset == "latest" {
		rc.StartOffset = kafka.LastOffset
	}

	var dl publisher
	if deadLetter != nil {
		dl = deadLetter
	}
	return newConsumer(kafka.NewReader(rc), cfg, dl, log), nil
}

func newConsumer(r reader, cfg ConsumerConfig, deadLetter publisher, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	applyConsumerDefaults(&cfg)
	return &Consumer{
		reader:     r,
		config:     cfg,
		logger:     log.Named("consumer"),
		deadLetter: deadLetter,
		handlers:   make(map[string]MessageHandler),
	}
}

func applyConsumerDefaults(cfg *ConsumerConfig) {
	if cfg.AutoOffsetReset == "" {
		cfg.AutoOffsetReset = "earliest"
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.RetryBackoff == 0 {
		cfg.Retry.RetryBackoff = time.Second
	}
	if cfg.Retry.MaxRetryBackoff == 0 {
		cfg.Retry.MaxRetryBackoff = 30 * time.Second
	}
}

// SetRecorder attaches a metrics sink.
func (c *Consumer) SetRecorder(r MessageRecorder) { c.recorder = r }

func (c *Consumer) Subscribe(topic string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("subscribed", logging.String("topic", topic))
}

// Start runs the fetch loop in the background until ctx ends or Close.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.loop(ctx)
	c.logger.Info("consumer started", logging.String("group", c.config.GroupID), logging.Strings("topics", c.config.Topics))
	return nil
}

func (c *Consumer) loop(ctx context.Context) {
	defer c.wg.Done()
	for ctx.Err() == nil {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		msg := fromKafkaMessage(m)
		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()
		if !ok {
			c.logger.Warn("no handler for topic", logging.String("topic", m.Topic))
		} else if err := c.handle(ctx, msg, handler); err != nil && ctx.Err() != nil {
			// shutting down mid-message, leave it uncommitted for redelivery
			return
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", logging.String("topic", m.Topic), logging.Int64("offset", m.Offset), logging.Err(err))
		}
	}
}

// handle retries with exponential backoff and dead-letters on exhaustion.
// It returns an error only when ctx ended first.
func (c *Consumer) handle(ctx context.Context, msg *Message, handler MessageHandler) error {
	start := time.Now()
	err := handler(ctx, msg)
	backoff := c.config.Retry.RetryBackoff
	for attempt := 0; err != nil && attempt < c.config.Retry.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("handler failed, retrying",
			logging.String("topic", msg.Topic),
			logging.Int("attempt", attempt+1),
			logging.Err(err))
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
			err = handler(ctx, msg)
		}
		backoff *= 2
		if backoff > c.config.Retry.MaxRetryBackoff {
			backoff = c.config.Retry.MaxRetryBackoff
		}
	}
	if c.recorder != nil {
		c.recorder.RecordMessage(msg.Topic, time.Since(start), err)
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.logger.Error("message dropped after retries",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Err(err))
	if c.deadLetter != nil && c.config.Retry.DeadLetterTopic != "" {
		headers := make(map[string]string, len(msg.Headers)+2)
		for k, v := range msg.Headers {
			headers[k] = v
		}
		headers["original_topic"] = msg.Topic
		headers["error_message"] = err.Error()
		dl := &ProducerMessage{Topic: c.config.Retry.DeadLetterTopic, Key: msg.Key, Value: msg.Value, Headers: headers}
		if dlErr := c.deadLetter.Publish(ctx, dl); dlErr != nil {
			c.logger.Error("dead letter publish failed", logging.Err(dlErr))
		}
	}
	return nil
}

// Close stops the loop and waits for the message in flight.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}
