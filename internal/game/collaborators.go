package game

import (
	"context"
	"sync"
	"time"
)

// RandomnessSource is the randomness oracle contract. Rounds are published
// in increasing order; a value once published never changes.
//
// LatestRound returns false when the oracle cannot be reached or has
// published nothing. ValueAt returns false until the round is published;
// malformed data is reported the same way.
type RandomnessSource interface {
	LatestRound(ctx context.Context) (uint64, bool)
	ValueAt(ctx context.Context, round uint64) ([32]byte, bool)
}

// Wallet moves value between participants and the engine. Collect takes a
// stake from a participant; Pay sends value out. Either may fail, in which
// case nothing was moved.
type Wallet interface {
	Collect(ctx context.Context, from string, amount uint64) error
	Pay(ctx context.Context, to string, amount uint64) error
}

// HeightSource is the engine's notion of "now". Heights never decrease.
type HeightSource interface {
	Height() uint64
}

// Notifier receives events after each committed mutation, in commit order.
// Notify must not block and must not call back into the Engine.
type Notifier interface {
	Notify(event Event)
}

// WallClock derives heights from elapsed wall time since Genesis.
type WallClock struct {
	Genesis  time.Time
	Interval time.Duration
	now      func() time.Time
}

func NewWallClock(genesis time.Time, interval time.Duration) *WallClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &WallClock{Genesis: genesis, Interval: interval, now: time.Now}
}

func (c *WallClock) Height() uint64 {
	elapsed := c.now().Sub(c.Genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.Interval)
}

// ManualHeight is a HeightSource advanced explicitly. Used by simulations
// and tests.
type ManualHeight struct {
	mu     sync.RWMutex
	height uint64
}

func NewManualHeight(start uint64) *ManualHeight {
	return &ManualHeight{height: start}
}

func (m *ManualHeight) Height() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.height
}

func (m *ManualHeight) Set(h uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h > m.height {
		m.height = h
	}
}

func (m *ManualHeight) Advance(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height += n
	return m.height
}
