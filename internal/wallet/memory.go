package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Memory is an in-process wallet for tests and local simulation.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]uint64

	// failPay errors are returned by Pay for the matching recipient.
	failPay map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]uint64),
		failPay:  make(map[string]error),
	}
}

func (m *Memory) SetBalance(_ context.Context, who string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[who] = amount
	return nil
}

func (m *Memory) Balance(_ context.Context, who string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[who], nil
}

// FailPayments makes every Pay to who fail with err until cleared with a
// nil err.
func (m *Memory) FailPayments(who string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failPay, who)
		return
	}
	m.failPay[who] = err
}

func (m *Memory) Collect(_ context.Context, from string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance := m.balances[from]
	if balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, amount)
	}
	m.balances[from] = balance - amount
	return nil
}

func (m *Memory) Pay(_ context.Context, to string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failPay[to]; ok {
		return err
	}
	if m.balances[to] > math.MaxUint64-amount {
		return fmt.Errorf("wallet.Pay: %w", ErrAmountOutOfRange)
	}
	m.balances[to] += amount
	return nil
}
