package game

// roundLedger owns all mutable per-round state: the Game record, every
// SideBet, the bounded bettor registry and the round's payable balance.
type roundLedger struct {
	game Game

	// bets[participant][side-1]
	bets map[string]*[2]SideBet

	// registry keeps distinct participants in first-bet order. It is only
	// walked once, when bets are partitioned into valid and late.
	registry []string

	// balance is the currency payable out for this round. Every payout
	// debits it and it never goes below zero.
	balance uint64
}

func newRoundLedger(id, start, close uint64) *roundLedger {
	return &roundLedger{
		game: Game{
			ID:          id,
			Phase:       PhaseBetting,
			StartHeight: start,
			CloseHeight: close,
		},
		bets: make(map[string]*[2]SideBet),
	}
}

func (l *roundLedger) hasAnyBet(participant string) bool {
	_, ok := l.bets[participant]
	return ok
}

// sideBet returns the mutable record for (participant, side), or nil.
func (l *roundLedger) sideBet(participant string, side Side) *SideBet {
	pair, ok := l.bets[participant]
	if !ok || !side.Valid() {
		return nil
	}
	return &pair[side-1]
}

// admit checks the registry cap without mutating anything.
func (l *roundLedger) admit(participant string, maxBettors int) error {
	if l.hasAnyBet(participant) {
		return nil
	}
	if len(l.registry) >= maxBettors {
		return ErrTooManyBettors
	}
	return nil
}

// fits reports whether amount can be added to the round. The gross total
// bounds every other sum the ledger keeps.
func (l *roundLedger) fits(amount uint64) bool {
	return amount <= MAX_ROUND_VOLUME-(l.game.RedPool+l.game.BluePool)
}

// record merges a stake into the ledger and returns the updated side pool.
// Callers must have run admit and fits first.
func (l *roundLedger) record(participant string, side Side, amount, fee, net, height uint64) (SideBet, uint64) {
	pair, ok := l.bets[participant]
	if !ok {
		pair = new([2]SideBet)
		l.bets[participant] = pair
		l.registry = append(l.registry, participant)
	}
	bet := &pair[side-1]
	first := !bet.Exists()

	bet.Amount += amount
	bet.Fee += fee
	bet.PlacedAtHeight = height

	l.balance += net
	l.game.TotalLiquidity += net

	var pool uint64
	switch side {
	case SideRed:
		l.game.RedPool += amount
		if first {
			l.game.RedBettors++
		}
		pool = l.game.RedPool
	case SideBlue:
		l.game.BluePool += amount
		if first {
			l.game.BlueBettors++
		}
		pool = l.game.BluePool
	}
	return *bet, pool
}

// records lists every SideBet in registry order.
func (l *roundLedger) records() []BetRecord {
	out := make([]BetRecord, 0, len(l.registry))
	for _, p := range l.registry {
		pair := l.bets[p]
		for i, bet := range pair {
			if bet.Exists() {
				out = append(out, BetRecord{Participant: p, Side: Side(i + 1), Bet: bet})
			}
		}
	}
	return out
}

func (l *roundLedger) credit(amount uint64) {
	l.balance += amount
}

func (l *roundLedger) debit(amount uint64) error {
	if amount > l.balance {
		return ErrInsolventRound
	}
	l.balance -= amount
	return nil
}
