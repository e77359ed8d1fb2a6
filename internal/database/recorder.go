package database

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"minority/internal/game"
)

const (
	RECORDER_BUFFER = 1024
	WRITE_TIMEOUT   = 5 * time.Second
)

// Recorder persists engine events to the Store from a single worker. The
// engine delivers events in commit order and the worker drains the queue
// in FIFO order, so writes land in commit order too. Notify never blocks;
// when the queue is full the event is dropped and logged.
type Recorder struct {
	store    *Store
	operator string
	queue    chan game.Event
	done     chan struct{}

	// mu guards stopped and the close of queue against concurrent sends.
	mu      sync.RWMutex
	stopped bool
}

func NewRecorder(store *Store, operator string) *Recorder {
	return &Recorder{
		store:    store,
		operator: operator,
		queue:    make(chan game.Event, RECORDER_BUFFER),
		done:     make(chan struct{}),
	}
}

// Start launches the worker. It runs until Stop drains the queue.
func (r *Recorder) Start() {
	go r.run()
}

// Stop closes the queue and waits for pending events to be written.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) Notify(ev game.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		log.WithField("type", ev.Type).Debug("[RECORDER] stopped, event dropped")
		return
	}
	select {
	case r.queue <- ev:
	default:
		log.WithFields(log.Fields{"type": ev.Type, "round": ev.Round}).Warn("[RECORDER] queue full, event dropped")
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), WRITE_TIMEOUT)
		if err := r.persist(ctx, ev); err != nil {
			log.WithFields(log.Fields{"type": ev.Type, "round": ev.Round}).WithError(err).Error("[RECORDER] write failed")
		}
		cancel()
	}
}

func (r *Recorder) persist(ctx context.Context, ev game.Event) error {
	switch ev.Type {
	case game.EventRoundStarted, game.EventRoundCalculating:
		return r.store.SaveRound(ctx, *ev.Game)
	case game.EventBetPlaced:
		if err := r.store.SaveRound(ctx, *ev.Game); err != nil {
			return err
		}
		return r.store.SaveBets(ctx, ev.Round, []game.BetRecord{{
			Participant: ev.Participant, Side: ev.Side, Bet: *ev.Bet,
		}})
	case game.EventRoundResolved, game.EventRoundCancelled:
		if err := r.store.SaveRound(ctx, *ev.Game); err != nil {
			return err
		}
		return r.store.SaveBets(ctx, ev.Round, ev.Bets)
	case game.EventClaimSettled:
		return r.store.SaveClaim(ctx, *ev.Claim)
	case game.EventFeesWithdrawn:
		recipient := ev.Recipient
		if recipient == "" {
			recipient = r.operator
		}
		return r.store.SaveWithdrawal(ctx, ev.ReceiptID, recipient, ev.Amount, ev.Height)
	}
	return nil
}
