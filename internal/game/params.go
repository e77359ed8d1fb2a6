package game

import (
	"errors"
	"fmt"
	"math"
)

const (
	// BPS_DENOMINATOR is the basis-point base for FeeBps.
	BPS_DENOMINATOR = 10000
	// LEADERBOARD_SIZE is the default leaderboard capacity.
	LEADERBOARD_SIZE = 100
	// MAX_ROUND_VOLUME caps the gross stake of one round so every pool,
	// balance and payout fits a signed 64-bit column or wallet counter.
	MAX_ROUND_VOLUME uint64 = math.MaxInt64
)

// Params are the round policy knobs. They are fixed for the lifetime of an
// Engine; there is no runtime tuning.
type Params struct {
	BettingWindow   uint64 `yaml:"betting_window"`
	FinalWindow     uint64 `yaml:"final_window"`
	Buffer          uint64 `yaml:"buffer"`
	Timeout         uint64 `yaml:"timeout"`
	FeeBps          uint64 `yaml:"fee_bps"`
	MinBet          uint64 `yaml:"min_bet"`
	MinPool         uint64 `yaml:"min_pool"`
	MaxBettors      int    `yaml:"max_bettors"`
	LeaderboardSize int    `yaml:"leaderboard_size"`
}

func DefaultParams() Params {
	return Params{
		BettingWindow:   300,
		FinalWindow:     30,
		Buffer:          2,
		Timeout:         120,
		FeeBps:          250,
		MinBet:          1_000,
		MinPool:         10_000,
		MaxBettors:      500,
		LeaderboardSize: LEADERBOARD_SIZE,
	}
}

func (p Params) Validate() error {
	var errs []error
	if p.BettingWindow == 0 {
		errs = append(errs, errors.New("betting_window must be positive"))
	}
	if p.FinalWindow == 0 || p.FinalWindow > p.BettingWindow {
		errs = append(errs, fmt.Errorf("final_window must be in [1, %d]", p.BettingWindow))
	}
	if p.Buffer < 1 {
		errs = append(errs, errors.New("buffer must be at least 1"))
	}
	if p.Timeout == 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if p.FeeBps >= BPS_DENOMINATOR {
		errs = append(errs, fmt.Errorf("fee_bps must be below %d", BPS_DENOMINATOR))
	}
	if p.MinBet == 0 {
		errs = append(errs, errors.New("min_bet must be positive"))
	}
	if p.MaxBettors <= 0 {
		errs = append(errs, errors.New("max_bettors must be positive"))
	}
	if p.LeaderboardSize <= 0 {
		errs = append(errs, errors.New("leaderboard_size must be positive"))
	}
	return errors.Join(errs...)
}

// fee splits a stake into platform fee and net amount.
func (p Params) fee(amount uint64) (fee, net uint64) {
	fee = mulDiv(amount, p.FeeBps, BPS_DENOMINATOR)
	return fee, amount - fee
}
