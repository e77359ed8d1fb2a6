package game

import (
	"context"

	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"
)

type randomnessState int

const (
	randomnessUnavailable randomnessState = iota
	randomnessPending
	randomnessReady
)

// latestRound reads the oracle head. Absence and round zero both mean the
// oracle is unavailable.
func latestRound(ctx context.Context, src RandomnessSource) (uint64, randomnessState) {
	round, ok := src.LatestRound(ctx)
	if !ok || round == 0 {
		return 0, randomnessUnavailable
	}
	return round, randomnessReady
}

// committedValue reads the pinned oracle round. A missing value is pending,
// never an error.
func committedValue(ctx context.Context, src RandomnessSource, round uint64) ([32]byte, randomnessState) {
	value, ok := src.ValueAt(ctx, round)
	if !ok {
		return value, randomnessPending
	}
	return value, randomnessReady
}

// actualCloseHeight places the effective close uniformly inside the last
// finalWindow heights of the nominal betting period.
func actualCloseHeight(closeHeight, finalWindow uint64, value [32]byte) uint64 {
	v := new(uint256.Int).SetBytes32(value[:])
	offset := v.Mod(v, uint256.NewInt(finalWindow)).Uint64()
	return closeHeight - finalWindow + offset
}

// commit runs phase one: pin a future oracle round and stop betting. With
// no oracle head available the round is cancelled on the spot.
func (e *Engine) commit(ctx context.Context, l *roundLedger, now uint64) []Event {
	head, state := latestRound(ctx, e.oracle)
	if state == randomnessUnavailable {
		return e.cancel(l, ReasonOracleUnavailable, now)
	}

	g := &l.game
	g.CommittedRound = head + e.params.Buffer
	g.CommitHeight = now
	g.Phase = PhaseCalculating

	log.WithFields(log.Fields{
		"round":     g.ID,
		"committed": g.CommittedRound,
		"head":      head,
	}).Info("[RESOLVE] committed to future randomness")

	return []Event{gameEvent(EventRoundCalculating, *g, now)}
}

// reveal runs phase two. It returns ErrWaitingForRandomness, with nothing
// changed, while the committed value is unpublished and the timeout has
// not passed.
func (e *Engine) reveal(ctx context.Context, l *roundLedger, now uint64) ([]Event, error) {
	g := &l.game
	value, state := committedValue(ctx, e.oracle, g.CommittedRound)
	if state != randomnessReady {
		if now-g.CommitHeight > e.params.Timeout {
			return e.cancel(l, ReasonOracleTimeout, now), nil
		}
		return nil, ErrWaitingForRandomness
	}

	g.ActualCloseHeight = actualCloseHeight(g.CloseHeight, e.params.FinalWindow, value)
	late := e.partition(l)

	log.WithFields(log.Fields{
		"round":        g.ID,
		"actual_close": g.ActualCloseHeight,
		"valid_red":    g.ValidRedPool,
		"valid_blue":   g.ValidBluePool,
		"late_bets":    late,
	}).Info("[RESOLVE] partitioned bets")

	return e.decide(l, now), nil
}

// partition classifies every SideBet as valid or late against the actual
// close height. Late bets get their fee moved from escrow back into the
// round balance so they refund at gross.
func (e *Engine) partition(l *roundLedger) int {
	g := &l.game
	g.ValidRedPool, g.ValidBluePool, g.ValidLiquidity = 0, 0, 0

	late := 0
	for _, participant := range l.registry {
		pair := l.bets[participant]
		for i := range pair {
			bet := &pair[i]
			if !bet.Exists() {
				continue
			}
			if bet.PlacedAtHeight < g.ActualCloseHeight {
				if Side(i+1) == SideRed {
					g.ValidRedPool += bet.Amount
				} else {
					g.ValidBluePool += bet.Amount
				}
				g.ValidLiquidity += bet.Net()
				continue
			}
			bet.IsLateBet = true
			l.credit(e.escrow.reclaim(g.ID, bet.Fee))
			late++
		}
	}
	return late
}
