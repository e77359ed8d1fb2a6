package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const REDIS_KEY_INSTANCE_LOCK = "minority:lock:instance"

// renewScript extends the lease only if we still own it.
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lock is a leased ownership lock. The engine keeps round ledgers in
// process memory, so only one process may serve a given Redis wallet; it
// holds this lock for its whole lifetime. Each holder has a random token
// and a lease that is not renewed within ttl passes to whoever asks next.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	if key == "" {
		key = REDIS_KEY_INSTANCE_LOCK
	}
	return &Lock{client: client, key: key, token: uuid.New().String(), ttl: ttl}
}

// Acquire takes the lock if free and renews it if already ours.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return renewed == 1, nil
}

// Release drops the lock if we hold it.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Hold renews the lease every ttl/3 until ctx ends. Renewal errors are
// retried; onLost runs once the lease belongs to someone else.
func (l *Lock) Hold(ctx context.Context, onLost func()) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := l.Acquire(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.WithError(err).Warn("[LOCK] renewal failed")
				continue
			}
			if !held {
				log.WithField("key", l.key).Error("[LOCK] lease lost")
				onLost()
				return
			}
		}
	}
}
