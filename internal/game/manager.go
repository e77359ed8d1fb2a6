package game

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	TICK_INTERVAL  = 500 * time.Millisecond
	RETRY_INTERVAL = 2 * time.Second
)

// Manager drives rounds automatically: it opens a round whenever none is
// running and keeps calling CloseRound once the nominal close passes. The
// engine stays fully usable by hand; the Manager is only another caller.
type Manager struct {
	engine    *Engine
	interval  time.Duration
	autoStart bool
	retry     *rate.Limiter

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewManager builds a Manager. retryEvery paces CloseRound calls while
// waiting for randomness.
func NewManager(engine *Engine, interval, retryEvery time.Duration, autoStart bool) *Manager {
	if interval <= 0 {
		interval = TICK_INTERVAL
	}
	if retryEvery <= 0 {
		retryEvery = RETRY_INTERVAL
	}
	return &Manager{
		engine:    engine,
		interval:  interval,
		autoStart: autoStart,
		retry:     rate.NewLimiter(rate.Every(retryEvery), 1),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

func (m *Manager) Start(ctx context.Context) {
	go m.gameLoop(ctx)
}

// Stop ends the loop and waits for the current tick to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	<-m.doneChan
}

func (m *Manager) gameLoop(ctx context.Context) {
	defer close(m.doneChan)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.WithField("interval", m.interval).Info("[MANAGER] round loop started")
	for {
		select {
		case <-m.stopChan:
			log.Info("[MANAGER] round loop stopped")
			return
		case <-ctx.Done():
			log.Info("[MANAGER] round loop cancelled")
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				log.WithError(err).Warn("[MANAGER] tick failed")
			}
		}
	}
}

// Tick advances the current round by at most one transition.
func (m *Manager) Tick(ctx context.Context) error {
	g, ok := m.engine.CurrentRound()
	if !ok || g.Phase.Terminal() {
		if !m.autoStart || m.engine.Paused() {
			return nil
		}
		_, err := m.engine.StartRound(ctx)
		if errors.Is(err, ErrRoundAlreadyActive) || errors.Is(err, ErrPaused) {
			return nil
		}
		return err
	}

	switch g.Phase {
	case PhaseBetting:
		if m.engine.heights.Height() < g.CloseHeight {
			return nil
		}
	case PhaseCalculating:
		if !m.retry.Allow() {
			return nil
		}
	}

	_, err := m.engine.CloseRound(ctx, g.ID)
	switch {
	case errors.Is(err, ErrWaitingForRandomness):
		log.WithField("round", g.ID).Debug("[MANAGER] waiting for randomness")
		return nil
	case errors.Is(err, ErrBettingStillOpen), errors.Is(err, ErrAlreadyResolved):
		return nil
	}
	return err
}
