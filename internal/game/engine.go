package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Engine is the round lifecycle state machine. Every mutating operation runs
// under one mutex, so bets, closes and claims never interleave; readers take
// the read lock and always see whole snapshots.
type Engine struct {
	mu sync.RWMutex

	params   Params
	heights  HeightSource
	oracle   RandomnessSource
	wallet   Wallet
	operator string

	rounds    map[uint64]*roundLedger
	currentID uint64
	escrow    *feeEscrow
	stats     map[string]*UserStats
	board     *Leaderboard
	global    GlobalStats
	paused    bool

	// deliverMu is taken before mu is released, so events reach notifiers
	// in the order their mutations committed.
	deliverMu sync.Mutex
	seq       uint64
	notifyMu  sync.RWMutex
	notifiers []Notifier
}

// NewEngine wires the state machine to its collaborators. operator is the
// fixed recipient of fee withdrawals.
func NewEngine(params Params, heights HeightSource, oracle RandomnessSource, wallet Wallet, operator string) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("game.NewEngine: %w", err)
	}
	if heights == nil || oracle == nil || wallet == nil {
		return nil, errors.New("game.NewEngine: heights, oracle and wallet are required")
	}
	if operator == "" {
		return nil, errors.New("game.NewEngine: operator address is required")
	}
	return &Engine{
		params:   params,
		heights:  heights,
		oracle:   oracle,
		wallet:   wallet,
		operator: operator,
		rounds:   make(map[uint64]*roundLedger),
		escrow:   newFeeEscrow(),
		stats:    make(map[string]*UserStats),
		board:    NewLeaderboard(params.LeaderboardSize),
	}, nil
}

func (e *Engine) Params() Params {
	return e.params
}

// AddNotifier subscribes n to all future events.
func (e *Engine) AddNotifier(n Notifier) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	e.notifiers = append(e.notifiers, n)
}

// unlockAndDispatch stamps events with sequence numbers, releases mu and
// delivers them. Callers hold mu.
func (e *Engine) unlockAndDispatch(events []Event) {
	if len(events) == 0 {
		e.mu.Unlock()
		return
	}
	for i := range events {
		e.seq++
		events[i].Seq = e.seq
	}
	e.deliverMu.Lock()
	e.mu.Unlock()
	defer e.deliverMu.Unlock()

	e.notifyMu.RLock()
	defer e.notifyMu.RUnlock()
	for _, ev := range events {
		for _, n := range e.notifiers {
			n.Notify(ev)
		}
	}
}

// StartRound opens a new betting round.
func (e *Engine) StartRound(ctx context.Context) (Game, error) {
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return Game{}, ErrPaused
	}
	if cur, ok := e.rounds[e.currentID]; ok && cur.game.Phase.Open() {
		e.mu.Unlock()
		return Game{}, fmt.Errorf("%w: round %d is %s", ErrRoundAlreadyActive, cur.game.ID, cur.game.Phase)
	}

	now := e.heights.Height()
	id := e.currentID + 1
	l := newRoundLedger(id, now, now+e.params.BettingWindow)
	e.rounds[id] = l
	e.currentID = id
	e.global.RoundsStarted++
	g := l.game
	log.WithFields(log.Fields{"round": id, "close_height": g.CloseHeight}).Info("[ROUND] betting open")
	e.unlockAndDispatch([]Event{gameEvent(EventRoundStarted, g, now)})
	return g, nil
}

// PlaceBet stakes amount on side for participant. The stake is collected
// from the wallet only after every check passes; a failed collection
// leaves the round untouched.
func (e *Engine) PlaceBet(ctx context.Context, round uint64, participant string, side Side, amount uint64) (BetResponse, error) {
	if participant == "" {
		return BetResponse{}, ErrInvalidParticipant
	}
	if !side.Valid() {
		return BetResponse{}, ErrInvalidSide
	}

	e.mu.Lock()
	l, ok := e.rounds[round]
	if !ok {
		e.mu.Unlock()
		return BetResponse{}, ErrUnknownRound
	}
	now := e.heights.Height()
	if l.game.Phase != PhaseBetting || now >= l.game.CloseHeight {
		e.mu.Unlock()
		return BetResponse{}, ErrBettingClosed
	}
	if amount < e.params.MinBet {
		e.mu.Unlock()
		return BetResponse{}, fmt.Errorf("%w: %d < %d", ErrBetTooSmall, amount, e.params.MinBet)
	}
	if !l.fits(amount) {
		e.mu.Unlock()
		return BetResponse{}, fmt.Errorf("%w: round %d holds %d", ErrStakeOverflow, round, l.game.RedPool+l.game.BluePool)
	}
	if err := l.admit(participant, e.params.MaxBettors); err != nil {
		e.mu.Unlock()
		return BetResponse{}, err
	}
	if err := e.wallet.Collect(ctx, participant, amount); err != nil {
		e.mu.Unlock()
		return BetResponse{}, fmt.Errorf("%w: %v", ErrCollectFailed, err)
	}

	fee, net := e.params.fee(amount)
	bet, pool := l.record(participant, side, amount, fee, net, now)
	e.escrow.deposit(round, fee)
	e.userStats(participant).TotalBets++
	e.global.TotalVolume += amount

	ev := gameEvent(EventBetPlaced, l.game, now)
	ev.Participant, ev.Side, ev.Bet, ev.SidePool, ev.Amount = participant, side, &bet, pool, amount
	e.unlockAndDispatch([]Event{ev})

	log.WithFields(log.Fields{
		"round":       round,
		"participant": participant,
		"side":        side,
		"amount":      amount,
		"side_pool":   pool,
	}).Debug("[BET] placed")

	return BetResponse{Round: round, Side: side, Bet: bet, SidePool: pool}, nil
}

// CloseRound is the single entry point for both close phases. Call it once
// the nominal close height is reached to commit to future randomness, then
// again until it stops returning ErrWaitingForRandomness.
func (e *Engine) CloseRound(ctx context.Context, round uint64) (Game, error) {
	e.mu.Lock()
	l, ok := e.rounds[round]
	if !ok {
		e.mu.Unlock()
		return Game{}, ErrUnknownRound
	}
	if !l.game.Phase.Open() {
		e.mu.Unlock()
		return Game{}, ErrAlreadyResolved
	}

	now := e.heights.Height()
	var (
		events []Event
		err    error
	)
	switch l.game.Phase {
	case PhaseBetting:
		if now < l.game.CloseHeight {
			e.mu.Unlock()
			return Game{}, fmt.Errorf("%w: %d heights left", ErrBettingStillOpen, l.game.CloseHeight-now)
		}
		events = e.commit(ctx, l, now)
	case PhaseCalculating:
		events, err = e.reveal(ctx, l, now)
	}
	g := l.game
	if err != nil {
		e.mu.Unlock()
		return g, err
	}
	e.unlockAndDispatch(events)
	return g, nil
}

// decide applies the minority rule to the partitioned pools.
func (e *Engine) decide(l *roundLedger, now uint64) []Event {
	g := &l.game
	if g.ValidRedPool == 0 || g.ValidBluePool == 0 || g.ValidRedPool+g.ValidBluePool < e.params.MinPool {
		return e.cancel(l, ReasonInsufficientParticipants, now)
	}
	winner, ok := minorityWinner(g.ValidRedPool, g.ValidBluePool)
	if !ok {
		return e.cancel(l, ReasonTie, now)
	}

	g.WinningSide = winner
	g.HasWinner = true
	g.Phase = PhaseResolved
	g.ResolvedHeight = now
	released := e.escrow.release(g.ID)
	e.syncFeeStats()
	e.global.RoundsResolved++

	log.WithFields(log.Fields{
		"round":  g.ID,
		"winner": winner,
		"fees":   released,
	}).Info("[ROUND] resolved")

	ev := gameEvent(EventRoundResolved, *g, now)
	ev.Bets = l.records()
	ev.Amount = released
	return []Event{ev}
}

// cancel finalizes a round without a winner. Escrowed fees go back to the
// round balance, never to the withdrawable pool, and every bet becomes
// refundable at gross.
func (e *Engine) cancel(l *roundLedger, reason string, now uint64) []Event {
	g := &l.game
	l.credit(e.escrow.restore(g.ID))
	g.Phase = PhaseFinalized
	g.HasWinner = false
	g.WinningSide = SideNone
	g.TotalLiquidity = g.RedPool + g.BluePool
	g.ResolvedHeight = now
	g.CancelReason = reason
	e.global.RoundsCancelled++

	log.WithFields(log.Fields{"round": g.ID, "reason": reason}).Warn("[ROUND] cancelled")

	ev := gameEvent(EventRoundCancelled, *g, now)
	ev.Reason = reason
	ev.Bets = l.records()
	return []Event{ev}
}

// Claim settles one SideBet of a terminal round. The bet is marked claimed
// and the round debited before the transfer runs outside the lock, so a
// re-entrant or concurrent claim on the same bet fails with
// ErrAlreadyClaimed. A failed transfer restores both.
func (e *Engine) Claim(ctx context.Context, round uint64, participant string, side Side) (ClaimResult, error) {
	if !side.Valid() {
		return ClaimResult{}, ErrInvalidSide
	}

	e.mu.Lock()
	l, ok := e.rounds[round]
	if !ok {
		e.mu.Unlock()
		return ClaimResult{}, ErrUnknownRound
	}
	if !l.game.Phase.Terminal() {
		e.mu.Unlock()
		return ClaimResult{}, ErrRoundNotSettled
	}
	bet := l.sideBet(participant, side)
	if bet == nil || !bet.Exists() {
		e.mu.Unlock()
		return ClaimResult{}, ErrNoBet
	}
	if bet.Claimed {
		e.mu.Unlock()
		return ClaimResult{}, ErrAlreadyClaimed
	}
	amount, kind := settlement(l.game, side, *bet)
	if err := l.debit(amount); err != nil {
		e.mu.Unlock()
		log.WithFields(log.Fields{"round": round, "owed": amount, "balance": l.balance}).Error("[CLAIM] conservation check failed")
		return ClaimResult{}, err
	}
	bet.Claimed = true
	e.mu.Unlock()

	if amount > 0 {
		if err := e.wallet.Pay(ctx, participant, amount); err != nil {
			e.mu.Lock()
			bet.Claimed = false
			l.credit(amount)
			e.mu.Unlock()
			log.WithFields(log.Fields{"round": round, "participant": participant, "amount": amount}).
				WithError(err).Warn("[CLAIM] transfer failed, claim rolled back")
			return ClaimResult{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	e.mu.Lock()
	now := e.heights.Height()
	stats := e.userStats(participant)
	switch kind {
	case ClaimPayout:
		stats.TotalWins++
		stats.TotalWinnings += amount
		e.board.Update(participant, stats.TotalWinnings, stats.TotalWins)
	case ClaimLoss:
		stats.TotalLosses++
	}

	res := ClaimResult{
		ReceiptID:   uuid.New().String(),
		Round:       round,
		Participant: participant,
		Side:        side,
		Kind:        kind,
		Amount:      amount,
		Height:      now,
	}
	e.unlockAndDispatch([]Event{{
		Type: EventClaimSettled, Round: round, Height: now,
		Participant: participant, Side: side, Amount: amount, Claim: &res,
	}})

	log.WithFields(log.Fields{
		"round":       round,
		"participant": participant,
		"side":        side,
		"kind":        kind,
		"amount":      amount,
	}).Info("[CLAIM] settled")

	return res, nil
}

// WithdrawFees pays the whole released fee pool to the operator.
func (e *Engine) WithdrawFees(ctx context.Context) (uint64, error) {
	e.mu.Lock()
	amount := e.escrow.drain()
	if amount == 0 {
		e.mu.Unlock()
		return 0, ErrNoFees
	}
	e.syncFeeStats()
	e.mu.Unlock()

	if err := e.wallet.Pay(ctx, e.operator, amount); err != nil {
		e.mu.Lock()
		e.escrow.undrain(amount)
		e.syncFeeStats()
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	receipt := uuid.New().String()
	log.WithFields(log.Fields{"amount": amount, "operator": e.operator, "receipt": receipt}).Info("[FEES] withdrawn")
	e.mu.Lock()
	e.unlockAndDispatch([]Event{{
		Type: EventFeesWithdrawn, Height: e.heights.Height(),
		Amount: amount, Recipient: e.operator, ReceiptID: receipt,
	}})
	return amount, nil
}

// Pause suspends new-round creation. Running rounds are unaffected.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	log.Warn("[ADMIN] new rounds paused")
}

func (e *Engine) Unpause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	log.Info("[ADMIN] new rounds resumed")
}

func (e *Engine) syncFeeStats() {
	e.global.AccumulatedFees = e.escrow.accumulated
	e.global.WithdrawnFees = e.escrow.withdrawn
}

func (e *Engine) userStats(participant string) *UserStats {
	return statsFor(e.stats, participant)
}
