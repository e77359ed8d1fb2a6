package oracle

import (
	"context"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	REDIS_KEY_LATEST       = "beacon:latest"
	REDIS_KEY_ROUND_PREFIX = "beacon:round:"

	DEFAULT_READ_TIMEOUT = 2 * time.Second
)

// raiseLatest only ever moves the head forward.
var raiseLatest = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local next = tonumber(ARGV[1])
if next > cur then
	redis.call('SET', KEYS[1], ARGV[1])
	return next
end
return cur
`)

// Redis reads randomness that an external relayer mirrors into Redis. Any
// failure, missing key or malformed value reads as "not available".
type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedis(client *redis.Client, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = DEFAULT_READ_TIMEOUT
	}
	return &Redis{client: client, timeout: timeout}
}

func (r *Redis) LatestRound(ctx context.Context) (uint64, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	latest, err := r.client.Get(ctx, REDIS_KEY_LATEST).Uint64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).Warn("[ORACLE] latest round unreadable")
		}
		return 0, false
	}
	return latest, latest > 0
}

func (r *Redis) ValueAt(ctx context.Context, round uint64) ([32]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.client.Get(ctx, roundKey(round)).Result()
	if err != nil {
		return [32]byte{}, false
	}
	return decodeValue(raw)
}

// Publish stores a round value and advances the head. Used by relayers
// and tests.
func (r *Redis) Publish(ctx context.Context, round uint64, value [32]byte) error {
	if err := r.client.Set(ctx, roundKey(round), hex.EncodeToString(value[:]), 0).Err(); err != nil {
		return err
	}
	return raiseLatest.Run(ctx, r.client, []string{REDIS_KEY_LATEST}, round).Err()
}

func roundKey(round uint64) string {
	return REDIS_KEY_ROUND_PREFIX + strconv.FormatUint(round, 10)
}

func decodeValue(raw string) ([32]byte, bool) {
	var out [32]byte
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != len(out) {
		return out, false
	}
	copy(out[:], b)
	return out, true
}
