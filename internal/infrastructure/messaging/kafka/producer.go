package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeMessagingError, "producer closed")

type ProducerConfig struct {
	Brokers          []string       `mapstructure:"brokers"`
	Acks             string         `mapstructure:"acks"` // none, one, all
	MaxRetries       int            `mapstructure:"max_retries"`
	BatchTimeout     time.Duration  `mapstructure:"batch_timeout"`
	MaxMessageBytes  int            `mapstructure:"max_message_bytes"`
	CompressionCodec string         `mapstructure:"compression"`
	WriteTimeout     time.Duration  `mapstructure:"write_timeout"`
	Security         SecurityConfig `mapstructure:",squash"`
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes synchronously so callers can commit after a successful
// write.
type Producer struct {
	writer writer
	config ProducerConfig
	logger logging.Logger
	closed atomic.Bool
}

func NewProducer(cfg ProducerConfig, log logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.MaxRetries < 0 {
		return nil, errors.New(errors.ErrCodeValidation, "max_retries must be >= 0")
	}
	if err := cfg.Security.validate(); err != nil {
		return nil, err
	}
	applyProducerDefaults(&cfg)

	tlsCfg, err := cfg.Security.tlsConfig()
	if err != nil {
		return nil, err
	}
	mech, err := cfg.Security.mechanism()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigError, "create sasl mechanism")
	}

	acks := kafka.RequireOne
	switch cfg.Acks {
	case "none":
		acks = kafka.RequireNone
	case "all":
		acks = kafka.RequireAll
	}
	var compression kafka.Compression
	switch cfg.CompressionCodec {
	case "gzip":
		compression = kafka.Gzip
	case "snappy":
		compression = kafka.Snappy
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries + 1,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: acks,
		Compression:  compression,
		Transport:    &kafka.Transport{DialTimeout: 10 * time.Second, TLS: tlsCfg, SASL: mech},
	}
	return newProducer(w, cfg, log), nil
}

func newProducer(w writer, cfg ProducerConfig, log logging.Logger) *Producer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	applyProducerDefaults(&cfg)
	return &Producer{writer: w, config: cfg, logger: log.Named("producer")}
}

func applyProducerDefaults(cfg *ProducerConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = 4 * 1024 * 1024
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
}

// Publish writes one message and waits for the broker acknowledgement.
func (p *Producer) Publish(ctx context.Context, msg *ProducerMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	switch {
	case msg.Topic == "":
		return errors.New(errors.ErrCodeValidation, "topic required")
	case len(msg.Value) == 0:
		return errors.New(errors.ErrCodeValidation, "message value required")
	case len(msg.Value) > p.config.MaxMessageBytes:
		return errors.Newf(errors.ErrCodeValidation, "message of %d bytes exceeds %d", len(msg.Value), p.config.MaxMessageBytes)
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessagingError, "publish").WithDetail(msg.Topic)
	}
	p.logger.Debug("message published",
		logging.String("topic", msg.Topic),
		logging.Int("bytes", len(msg.Value)),
		logging.Duration("latency", time.Since(start)))
	return nil
}

func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

func toKafkaMessage(msg *ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{Topic: msg.Topic, Key: msg.Key, Value: msg.Value, Headers: headers, Time: ts}
}
