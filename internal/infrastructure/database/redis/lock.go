package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

var ErrLockNotHeld = errors.New(errors.ErrCodeConflict, "lock not held by this owner")

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// Locker hands out single-owner locks, used by workers to claim a request
// so that a redelivered message is not fragmented twice.
type Locker struct {
	client *Client
	logger logging.Logger
	prefix string
}

func NewLocker(client *Client, log logging.Logger) *Locker {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Locker{client: client, logger: log.Named("lock"), prefix: "fragmenter:lock:"}
}

// Lock is a held lock.
type Lock struct {
	client *Client
	key    string
	token  string
}

// TryLock acquires name for ttl without waiting.  ok is false when another
// owner holds it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lock, bool, error) {
	if l.client.isClosed() {
		return nil, false, ErrClientClosed
	}
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeCacheError, "acquire lock").WithDetail(key)
	}
	if !ok {
		l.logger.Debug("lock busy", logging.String("key", key))
		return nil, false, nil
	}
	return &Lock{client: l.client, key: key, token: token}, true, nil
}

// Unlock releases the lock if it is still held by this owner.
func (k *Lock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, k.client.rdb, []string{k.key}, k.token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "release lock").WithDetail(k.key)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend pushes the expiry to ttl from now.
func (k *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, k.client.rdb, []string{k.key}, k.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "extend lock").WithDetail(k.key)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
