package game

// feeEscrow holds fees per round until the round resolves with a winner.
// Only release moves a round's fees into the withdrawable pool; everything
// else hands fees back to the round ledger for refund.
type feeEscrow struct {
	perRound    map[uint64]uint64
	accumulated uint64
	withdrawn   uint64
}

func newFeeEscrow() *feeEscrow {
	return &feeEscrow{perRound: make(map[uint64]uint64)}
}

func (e *feeEscrow) deposit(round, fee uint64) {
	e.perRound[round] += fee
}

func (e *feeEscrow) held(round uint64) uint64 {
	return e.perRound[round]
}

// reclaim takes back up to amount from a round's bucket, returning what
// was actually taken.
func (e *feeEscrow) reclaim(round, amount uint64) uint64 {
	held := e.perRound[round]
	if amount > held {
		amount = held
	}
	e.perRound[round] = held - amount
	return amount
}

// restore empties a round's bucket and returns its contents to the caller.
func (e *feeEscrow) restore(round uint64) uint64 {
	held := e.perRound[round]
	delete(e.perRound, round)
	return held
}

// release moves a round's bucket into the withdrawable pool.
func (e *feeEscrow) release(round uint64) uint64 {
	held := e.perRound[round]
	delete(e.perRound, round)
	e.accumulated += held
	return held
}

// drain zeroes the withdrawable pool and returns its previous value.
func (e *feeEscrow) drain() uint64 {
	amount := e.accumulated
	e.accumulated = 0
	e.withdrawn += amount
	return amount
}

// undrain reverses a drain whose transfer failed.
func (e *feeEscrow) undrain(amount uint64) {
	e.accumulated += amount
	e.withdrawn -= amount
}
