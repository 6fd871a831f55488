package bootstrap

import (
	"context"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/internal/interfaces/worker"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// RunWorker consumes jobs until ctx ends.  The result producer also carries
// dead letters.
func RunWorker(ctx context.Context, c *Container) error {
	cfg := c.Config.Kafka
	if !cfg.Enabled {
		return errors.New(errors.ErrCodeConfigError, "kafka is disabled; set kafka.enabled to run the worker")
	}
	log := c.Logger

	if cfg.AutoCreateTopics {
		if err := ensureTopics(ctx, cfg.Brokers, cfg.NumPartitions, cfg.ReplicationFactor, log); err != nil {
			return err
		}
	}

	producer, err := kafka.NewProducer(cfg.ProducerConfig(), log)
	if err != nil {
		return err
	}
	defer producer.Close()

	consumer, err := kafka.NewConsumer(cfg.ConsumerConfig(), producer, log)
	if err != nil {
		return err
	}
	defer consumer.Close()
	if c.Metrics != nil {
		consumer.SetRecorder(c.Metrics)
	}

	var locker worker.Locker
	if c.Locker != nil {
		locker = c.Locker
	}
	handler := worker.NewJobHandler(c.Service, producer, locker, c.Options,
		worker.Config{JobTimeout: cfg.JobTimeout, LockTTL: cfg.LockTTL}, log)
	handler.Register(consumer)

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	log.Info("worker running", logging.Strings("brokers", cfg.Brokers))
	<-ctx.Done()
	log.Info("worker stopping")
	return nil
}

func ensureTopics(ctx context.Context, brokers []string, partitions, replication int, log logging.Logger) error {
	tm, err := kafka.NewTopicManager(brokers, log)
	if err != nil {
		return err
	}
	defer tm.Close()
	topics := kafka.DefaultTopics()
	for i := range topics {
		if partitions > 0 && topics[i].Name != kafka.TopicDeadLetter {
			topics[i].NumPartitions = partitions
		}
		if replication > 0 {
			topics[i].ReplicationFactor = replication
		}
	}
	return tm.EnsureTopics(ctx, topics)
}
