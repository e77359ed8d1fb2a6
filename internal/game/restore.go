package game

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// RoundState is a persisted round with every SideBet it holds.
type RoundState struct {
	Game Game
	Bets []BetRecord
}

// Snapshot is the durable history an Engine is rebuilt from after a
// restart.
type Snapshot struct {
	Rounds        []RoundState
	WithdrawnFees uint64
}

// Restore rebuilds round ledgers, fee escrow, the withdrawable fee pool and
// statistics from s. Pools, bettor counts and balances are recomputed from
// the bets; phase and resolution fields are taken from the stored rounds.
// Restore only runs on an engine that has not opened a round yet.
func (e *Engine) Restore(s Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.rounds) > 0 {
		return errors.New("game.Restore: engine already holds rounds")
	}

	rounds := make(map[uint64]*roundLedger, len(s.Rounds))
	escrow := newFeeEscrow()
	stats := make(map[string]*UserStats)
	var global GlobalStats
	var current uint64

	for _, rs := range s.Rounds {
		g := rs.Game
		if _, dup := rounds[g.ID]; dup || g.ID == 0 {
			return fmt.Errorf("game.Restore: bad round id %d", g.ID)
		}
		l := newRoundLedger(g.ID, g.StartHeight, g.CloseHeight)
		l.game = g
		l.game.RedPool, l.game.BluePool = 0, 0
		l.game.RedBettors, l.game.BlueBettors = 0, 0
		l.game.TotalLiquidity = 0

		var fees, lateFees uint64
		for _, r := range rs.Bets {
			if r.Participant == "" || !r.Side.Valid() || !r.Bet.Exists() || r.Bet.Fee > r.Bet.Amount {
				return fmt.Errorf("game.Restore: round %d: malformed bet %s/%s", g.ID, r.Participant, r.Side)
			}
			if b := l.sideBet(r.Participant, r.Side); b != nil && b.Exists() {
				return fmt.Errorf("game.Restore: round %d: duplicate bet %s/%s", g.ID, r.Participant, r.Side)
			}
			if !l.fits(r.Bet.Amount) {
				return fmt.Errorf("game.Restore: round %d: %w", g.ID, ErrStakeOverflow)
			}
			l.record(r.Participant, r.Side, r.Bet.Amount, r.Bet.Fee, r.Bet.Net(), r.Bet.PlacedAtHeight)
			bet := l.sideBet(r.Participant, r.Side)
			bet.IsLateBet = r.Bet.IsLateBet

			fees += r.Bet.Fee
			if r.Bet.IsLateBet {
				lateFees += r.Bet.Fee
			}
			statsFor(stats, r.Participant).TotalBets++
			global.TotalVolume += r.Bet.Amount
		}

		switch {
		case g.Phase.Open():
			escrow.deposit(g.ID, fees)
		case g.Phase == PhaseResolved:
			l.credit(lateFees)
			escrow.accumulated += fees - lateFees
			global.RoundsResolved++
		case g.Cancelled():
			l.credit(fees)
			l.game.TotalLiquidity = l.game.RedPool + l.game.BluePool
			global.RoundsCancelled++
		default:
			return fmt.Errorf("game.Restore: round %d: unexpected phase %s", g.ID, g.Phase)
		}

		// settle what was already paid out
		for _, r := range rs.Bets {
			if !r.Bet.Claimed {
				continue
			}
			if !l.game.Phase.Terminal() {
				return fmt.Errorf("game.Restore: round %d: claim on an open round", g.ID)
			}
			bet := l.sideBet(r.Participant, r.Side)
			amount, kind := settlement(l.game, r.Side, *bet)
			if err := l.debit(amount); err != nil {
				return fmt.Errorf("game.Restore: round %d: %w", g.ID, err)
			}
			bet.Claimed = true

			us := statsFor(stats, r.Participant)
			switch kind {
			case ClaimPayout:
				us.TotalWins++
				us.TotalWinnings += amount
			case ClaimLoss:
				us.TotalLosses++
			}
		}

		rounds[g.ID] = l
		global.RoundsStarted++
		if g.ID > current {
			current = g.ID
		}
	}

	if s.WithdrawnFees > escrow.accumulated {
		return fmt.Errorf("game.Restore: withdrawn fees %d exceed released fees %d", s.WithdrawnFees, escrow.accumulated)
	}
	escrow.accumulated -= s.WithdrawnFees
	escrow.withdrawn = s.WithdrawnFees

	e.rounds = rounds
	e.escrow = escrow
	e.stats = stats
	e.currentID = current
	e.global = global
	e.syncFeeStats()
	e.board = NewLeaderboard(e.params.LeaderboardSize)
	for participant, us := range stats {
		if us.TotalWins > 0 {
			e.board.Update(participant, us.TotalWinnings, us.TotalWins)
		}
	}

	log.WithFields(log.Fields{
		"rounds":  len(rounds),
		"current": current,
		"fees":    escrow.accumulated,
	}).Info("[ENGINE] state restored")
	return nil
}

func statsFor(stats map[string]*UserStats, participant string) *UserStats {
	s, ok := stats[participant]
	if !ok {
		s = &UserStats{}
		stats[participant] = s
	}
	return s
}
