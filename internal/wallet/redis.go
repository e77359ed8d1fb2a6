package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	REDIS_KEY_USER_BALANCE = "minority:balance:"
	OP_TIMEOUT             = 3 * time.Second
	// COLLECT_RETRIES bounds optimistic retries when a balance changes
	// between WATCH and EXEC.
	COLLECT_RETRIES = 5
)

// ErrAmountOutOfRange is returned for amounts a Redis integer cannot hold.
var ErrAmountOutOfRange = errors.New("amount exceeds wallet range")

// Redis keeps participant balances as integer counters in Redis.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func balanceKey(who string) string {
	return REDIS_KEY_USER_BALANCE + who
}

// Collect debits from with WATCH/MULTI so the balance check and the
// decrement see the same exact int64 value.
func (r *Redis) Collect(ctx context.Context, from string, amount uint64) error {
	if amount > math.MaxInt64 {
		return fmt.Errorf("wallet.Collect: %w", ErrAmountOutOfRange)
	}
	ctx, cancel := context.WithTimeout(ctx, OP_TIMEOUT)
	defer cancel()

	key := balanceKey(from)
	debit := func(tx *redis.Tx) error {
		balance, err := tx.Get(ctx, key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if balance < int64(amount) {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, amount)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.DecrBy(ctx, key, int64(amount))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < COLLECT_RETRIES; attempt++ {
		err := r.client.Watch(ctx, debit, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrInsufficientBalance):
			return err
		default:
			return fmt.Errorf("wallet.Collect: %w", err)
		}
	}
	return fmt.Errorf("wallet.Collect: %w", redis.TxFailedErr)
}

// Pay credits to. Redis rejects an increment that would overflow int64.
func (r *Redis) Pay(ctx context.Context, to string, amount uint64) error {
	if amount > math.MaxInt64 {
		return fmt.Errorf("wallet.Pay: %w", ErrAmountOutOfRange)
	}
	ctx, cancel := context.WithTimeout(ctx, OP_TIMEOUT)
	defer cancel()

	if err := r.client.IncrBy(ctx, balanceKey(to), int64(amount)).Err(); err != nil {
		return fmt.Errorf("wallet.Pay: %w", err)
	}
	return nil
}

func (r *Redis) Balance(ctx context.Context, who string) (uint64, error) {
	balance, err := r.client.Get(ctx, balanceKey(who)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return balance, err
}

// SetBalance overwrites a balance. Development faucet only.
func (r *Redis) SetBalance(ctx context.Context, who string, amount uint64) error {
	if amount > math.MaxInt64 {
		return fmt.Errorf("wallet.SetBalance: %w", ErrAmountOutOfRange)
	}
	return r.client.Set(ctx, balanceKey(who), amount, 0).Err()
}
