// Package worker turns fragmentation.requested events into runs and publishes
// the outcome on the results topic.
package worker

import (
	"context"
	"time"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/database/redis"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/internal/interfaces/dto"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
	types "github.com/turtacn/torsion-fragmenter/pkg/types/fragment"
)

// Source tags the events this worker publishes.
const Source = "fragmenter-worker"

type Publisher interface {
	Publish(ctx context.Context, msg *kafka.ProducerMessage) error
}

// Locker claims a request so that redelivered or duplicated events are
// processed once.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (*redis.Lock, bool, error)
}

type Config struct {
	JobTimeout time.Duration
	LockTTL    time.Duration
}

// JobHandler handles one job message.
type JobHandler struct {
	service   fragmentation.Service
	publisher Publisher
	locker    Locker
	defaults  func() fragmentation.Options
	cfg       Config
	logger    logging.Logger
}

// NewJobHandler builds a handler.  locker may be nil, in which case
// duplicates are not suppressed.  defaults supplies the options a request
// does not override.
func NewJobHandler(svc fragmentation.Service, pub Publisher, locker Locker, defaults func() fragmentation.Options, cfg Config, log logging.Logger) *JobHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if defaults == nil {
		defaults = fragmentation.DefaultOptions
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.JobTimeout
	}
	return &JobHandler{
		service:   svc,
		publisher: pub,
		locker:    locker,
		defaults:  defaults,
		cfg:       cfg,
		logger:    log.Named("worker"),
	}
}

// Register subscribes the handler to the jobs topic.
func (h *JobHandler) Register(c *kafka.Consumer) {
	c.Subscribe(kafka.TopicJobs, h.Handle)
}

// Handle processes a job message.  Requests that can never succeed are
// answered with a failed event and acknowledged; infrastructure failures
// are returned so the consumer retries and eventually dead-letters them.
func (h *JobHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.EnvelopeFromMessage(msg)
	if err != nil {
		return err
	}
	if env.EventType != kafka.EventJobRequested {
		h.logger.Debug("ignoring event", logging.String("event_type", env.EventType))
		return nil
	}

	requestID := string(msg.Key)
	if requestID == "" {
		requestID = env.EventID
	}
	log := h.logger.With(logging.String("request_id", requestID))

	var req types.FragmentRequest
	if err := env.DecodePayload(&req); err != nil {
		log.Warn("undecodable job", logging.Err(err))
		return h.publishFailure(ctx, requestID, err)
	}
	if req.RequestID != "" {
		requestID = req.RequestID
		log = h.logger.With(logging.String("request_id", requestID))
	}
	if err := dto.ValidateFragmentRequest(&req); err != nil {
		log.Warn("invalid job", logging.Err(err))
		return h.publishFailure(ctx, requestID, err)
	}

	lock, err := h.claim(ctx, requestID)
	if err != nil {
		return err
	}
	if h.locker != nil && lock == nil {
		log.Info("job already claimed, skipping")
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, h.cfg.JobTimeout)
	defer cancel()
	report, err := h.service.Generate(jobCtx, dto.ToInputs(req.Molecules), dto.MergeOptions(h.defaults(), req.Options))
	if err == nil {
		err = h.publish(ctx, kafka.EventJobCompleted, requestID, &types.JobResult{
			RequestID: requestID,
			JobID:     report.Provenance.JobID,
			Report:    dto.FromReport(report),
		})
		if err == nil {
			// The lock stays until it expires so that a redelivery of this
			// message is skipped.
			log.Info("job completed", logging.String("job_id", report.Provenance.JobID))
			return nil
		}
	}

	h.release(lock, log)
	if permanent(err) {
		log.Warn("job rejected", logging.Err(err))
		return h.publishFailure(ctx, requestID, err)
	}
	log.Error("job failed", logging.Err(err))
	return err
}

func (h *JobHandler) claim(ctx context.Context, requestID string) (*redis.Lock, error) {
	if h.locker == nil {
		return nil, nil
	}
	lock, ok, err := h.locker.TryLock(ctx, "job:"+requestID, h.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return lock, nil
}

func (h *JobHandler) release(lock *redis.Lock, log logging.Logger) {
	if lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Unlock(ctx); err != nil && !errors.Is(err, redis.ErrLockNotHeld) {
		log.Warn("job lock release failed", logging.Err(err))
	}
}

func (h *JobHandler) publishFailure(ctx context.Context, requestID string, cause error) error {
	body := dto.ErrorBody(cause, requestID)
	return h.publish(ctx, kafka.EventJobFailed, requestID, &types.JobResult{RequestID: requestID, Error: &body})
}

func (h *JobHandler) publish(ctx context.Context, eventType, requestID string, result *types.JobResult) error {
	env, err := kafka.NewEventEnvelope(eventType, Source, result)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(kafka.TopicResults, requestID)
	if err != nil {
		return err
	}
	return h.publisher.Publish(ctx, msg)
}

// permanent reports whether err is the caller's fault and would fail again.
// A cancelled or timed-out job is not permanent.
func permanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := errors.GetCode(err)
	if code == errors.ErrCodeCanceled {
		return false
	}
	return errors.IsClientError(code)
}
