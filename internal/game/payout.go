package game

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// SCALE is the fixed-point base for pro-rata shares. Rounding loses at most
// one smallest unit per claim and always rounds against the claimant.
const SCALE = 1_000_000_000_000_000_000

var scale = uint256.NewInt(SCALE)

// mulDiv computes floor(a*b/d) without intermediate overflow.
func mulDiv(a, b, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	x := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	return x.Div(x, uint256.NewInt(d)).Uint64()
}

// minorityWinner picks the strictly smaller valid pool. ok is false when the
// pools are equal.
func minorityWinner(validRed, validBlue uint64) (side Side, ok bool) {
	switch {
	case validRed < validBlue:
		return SideRed, true
	case validBlue < validRed:
		return SideBlue, true
	}
	return SideNone, false
}

// winnerPayout is a valid winning bet's slice of the valid liquidity:
// share = bet*SCALE/pool, payout = liquidity*share/SCALE.
func winnerPayout(bet, winningPool, validLiquidity uint64) uint64 {
	if winningPool == 0 {
		return 0
	}
	share := new(uint256.Int).Mul(uint256.NewInt(bet), scale)
	share.Div(share, uint256.NewInt(winningPool))

	out := new(uint256.Int).Mul(uint256.NewInt(validLiquidity), share)
	out.Div(out, scale)
	return out.Uint64()
}

// settlement decides what a SideBet is owed once its round is terminal.
func settlement(g Game, side Side, bet SideBet) (uint64, ClaimKind) {
	if g.Cancelled() || bet.IsLateBet {
		return bet.Amount, ClaimRefund
	}
	if side != g.WinningSide {
		return 0, ClaimLoss
	}
	return winnerPayout(bet.Amount, g.ValidPool(side), g.ValidLiquidity), ClaimPayout
}

// Odds are indicative payout multipliers per unit staked, computed from the
// current gross pools. They ignore the late-bet partition.
type Odds struct {
	Round uint64          `json:"round"`
	Red   decimal.Decimal `json:"red"`
	Blue  decimal.Decimal `json:"blue"`
}

func oddsFor(g Game) Odds {
	return Odds{
		Round: g.ID,
		Red:   multiplier(g.TotalLiquidity, g.RedPool),
		Blue:  multiplier(g.TotalLiquidity, g.BluePool),
	}
}

func multiplier(liquidity, pool uint64) decimal.Decimal {
	if pool == 0 {
		return decimal.Zero
	}
	l := decimal.NewFromBigInt(new(big.Int).SetUint64(liquidity), 0)
	p := decimal.NewFromBigInt(new(big.Int).SetUint64(pool), 0)
	return l.DivRound(p, 4)
}
