package game

import "context"

// Round returns a snapshot of one round.
func (e *Engine) Round(id uint64) (Game, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.rounds[id]
	if !ok {
		return Game{}, ErrUnknownRound
	}
	return l.game, nil
}

// CurrentRound returns the most recently created round, if any.
func (e *Engine) CurrentRound() (Game, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.rounds[e.currentID]
	if !ok {
		return Game{}, false
	}
	return l.game, true
}

// Bets returns a participant's red and blue records for a round. Missing
// records come back as zero values.
func (e *Engine) Bets(id uint64, participant string) (red, blue SideBet, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.rounds[id]
	if !ok {
		return SideBet{}, SideBet{}, ErrUnknownRound
	}
	if pair, ok := l.bets[participant]; ok {
		red, blue = pair[SideRed-1], pair[SideBlue-1]
	}
	return red, blue, nil
}

// Balance returns what is still payable out of a round.
func (e *Engine) Balance(id uint64) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.rounds[id]
	if !ok {
		return 0, ErrUnknownRound
	}
	return l.balance, nil
}

// EscrowedFees returns the fees still held for a round.
func (e *Engine) EscrowedFees(id uint64) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.escrow.held(id)
}

// AccumulatedFees is the released, withdrawable fee pool.
func (e *Engine) AccumulatedFees() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.escrow.accumulated
}

func (e *Engine) Stats(participant string) UserStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if s, ok := e.stats[participant]; ok {
		return *s
	}
	return UserStats{}
}

func (e *Engine) GlobalStats() GlobalStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g := e.global
	g.Paused = e.paused
	return g
}

func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// Leaderboard returns up to top entries; top <= 0 returns the whole table.
func (e *Engine) Leaderboard(top int) []Standing {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.board.Top(top)
}

// Timing reports the remaining betting heights and whether the round is
// in its final-call window.
func (e *Engine) Timing(id uint64) (Timing, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.rounds[id]
	if !ok {
		return Timing{}, ErrUnknownRound
	}
	now := e.heights.Height()
	g := l.game
	t := Timing{
		Height:         now,
		CloseHeight:    g.CloseHeight,
		FinalCallStart: g.CloseHeight - e.params.FinalWindow,
	}
	if g.Phase == PhaseBetting && now < g.CloseHeight {
		t.Remaining = g.CloseHeight - now
		t.FinalCall = now >= t.FinalCallStart
	}
	return t, nil
}

// ResolutionStatus reports the close protocol progress. CanProceed is true
// when the next CloseRound call would change state.
func (e *Engine) ResolutionStatus(ctx context.Context, id uint64) (Resolution, error) {
	e.mu.RLock()
	l, ok := e.rounds[id]
	if !ok {
		e.mu.RUnlock()
		return Resolution{}, ErrUnknownRound
	}
	g := l.game
	now := e.heights.Height()
	timeout := e.params.Timeout
	e.mu.RUnlock()

	r := Resolution{
		Round:             g.ID,
		Phase:             g.Phase,
		CommittedRound:    g.CommittedRound,
		CommitHeight:      g.CommitHeight,
		ActualCloseHeight: g.ActualCloseHeight,
	}
	switch g.Phase {
	case PhaseBetting:
		r.CanProceed = now >= g.CloseHeight
	case PhaseCalculating:
		r.TimeoutHeight = g.CommitHeight + timeout
		if _, state := committedValue(ctx, e.oracle, g.CommittedRound); state == randomnessReady {
			r.CanProceed = true
		} else {
			r.CanProceed = now > r.TimeoutHeight
		}
	}
	return r, nil
}

// Odds returns indicative multipliers from the current pools.
func (e *Engine) Odds(id uint64) (Odds, error) {
	g, err := e.Round(id)
	if err != nil {
		return Odds{}, err
	}
	return oddsFor(g), nil
}
