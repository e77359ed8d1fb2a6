package game

import (
	"fmt"
	"strings"
)

// Side is one of the two mutually exclusive wager targets.
type Side uint8

const (
	SideNone Side = iota
	SideRed
	SideBlue
)

func (s Side) Valid() bool {
	return s == SideRed || s == SideBlue
}

// Other returns the opposite side.
func (s Side) Other() Side {
	switch s {
	case SideRed:
		return SideBlue
	case SideBlue:
		return SideRed
	}
	return SideNone
}

func (s Side) String() string {
	switch s {
	case SideRed:
		return "red"
	case SideBlue:
		return "blue"
	}
	return "none"
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	parsed, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSide accepts "red" or "blue" in any case. "none" and the empty
// string decode to SideNone so zero values round-trip through JSON.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "red":
		return SideRed, nil
	case "blue":
		return SideBlue, nil
	case "", "none":
		return SideNone, nil
	}
	return SideNone, fmt.Errorf("%w: %q", ErrInvalidSide, v)
}

// Phase is the lifecycle state of a round.
type Phase uint8

const (
	PhaseNotStarted Phase = iota
	PhaseBetting
	PhaseCalculating
	PhaseResolved
	PhaseFinalized
)

var phaseNames = map[Phase]string{
	PhaseNotStarted:  "NOT_STARTED",
	PhaseBetting:     "BETTING",
	PhaseCalculating: "CALCULATING",
	PhaseResolved:    "RESOLVED",
	PhaseFinalized:   "FINALIZED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE(%d)", uint8(p))
}

// Open reports whether the round still accepts a close trigger.
func (p Phase) Open() bool {
	return p == PhaseBetting || p == PhaseCalculating
}

// Terminal reports whether the round is settled and frozen.
func (p Phase) Terminal() bool {
	return p == PhaseResolved || p == PhaseFinalized
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for phase, name := range phaseNames {
		if name == string(b) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(b))
}

// Game is a snapshot of one round. All amounts are in the smallest currency
// unit; heights are in the units of the engine's HeightSource.
type Game struct {
	ID             uint64 `json:"id"`
	Phase          Phase  `json:"phase"`
	RedPool        uint64 `json:"red_pool"`
	BluePool       uint64 `json:"blue_pool"`
	RedBettors     uint32 `json:"red_bettors"`
	BlueBettors    uint32 `json:"blue_bettors"`
	StartHeight    uint64 `json:"start_height"`
	CloseHeight    uint64 `json:"close_height"`
	ResolvedHeight uint64 `json:"resolved_height,omitempty"`
	HasWinner      bool   `json:"has_winner"`
	WinningSide    Side   `json:"winning_side"`
	TotalLiquidity uint64 `json:"total_liquidity"`

	CommittedRound    uint64 `json:"committed_round,omitempty"`
	CommitHeight      uint64 `json:"commit_height,omitempty"`
	ActualCloseHeight uint64 `json:"actual_close_height,omitempty"`
	ValidRedPool      uint64 `json:"valid_red_pool"`
	ValidBluePool     uint64 `json:"valid_blue_pool"`
	ValidLiquidity    uint64 `json:"valid_liquidity"`

	CancelReason string `json:"cancel_reason,omitempty"`
}

// Pool returns the gross staked total on a side.
func (g Game) Pool(side Side) uint64 {
	if side == SideRed {
		return g.RedPool
	}
	return g.BluePool
}

// ValidPool returns the staked total on a side restricted to valid bets.
func (g Game) ValidPool(side Side) uint64 {
	if side == SideRed {
		return g.ValidRedPool
	}
	return g.ValidBluePool
}

// Cancelled reports a round finalized without a winner.
func (g Game) Cancelled() bool {
	return g.Phase == PhaseFinalized && !g.HasWinner
}

// SideBet is one participant's cumulative stake on one side of a round.
type SideBet struct {
	Amount         uint64 `json:"amount"`
	Fee            uint64 `json:"fee"`
	PlacedAtHeight uint64 `json:"placed_at_height"`
	Claimed        bool   `json:"claimed"`
	IsLateBet      bool   `json:"is_late_bet"`
}

// Net is the stake after the platform fee.
func (b SideBet) Net() uint64 {
	return b.Amount - b.Fee
}

func (b SideBet) Exists() bool {
	return b.Amount > 0
}

// UserStats are append-only counters kept per participant.
type UserStats struct {
	TotalBets     uint64 `json:"total_bets"`
	TotalWins     uint64 `json:"total_wins"`
	TotalLosses   uint64 `json:"total_losses"`
	TotalWinnings uint64 `json:"total_winnings"`
}

// GlobalStats aggregate engine activity across all rounds.
type GlobalStats struct {
	RoundsStarted   uint64 `json:"rounds_started"`
	RoundsResolved  uint64 `json:"rounds_resolved"`
	RoundsCancelled uint64 `json:"rounds_cancelled"`
	TotalVolume     uint64 `json:"total_volume"`
	AccumulatedFees uint64 `json:"accumulated_fees"`
	WithdrawnFees   uint64 `json:"withdrawn_fees"`
	Paused          bool   `json:"paused"`
}

// ClaimKind tells how a settled SideBet was paid out.
type ClaimKind string

const (
	ClaimPayout ClaimKind = "payout"
	ClaimRefund ClaimKind = "refund"
	ClaimLoss   ClaimKind = "loss"
)

// ClaimResult is the receipt of one successful claim.
type ClaimResult struct {
	ReceiptID   string    `json:"receipt_id"`
	Round       uint64    `json:"round"`
	Participant string    `json:"participant"`
	Side        Side      `json:"side"`
	Kind        ClaimKind `json:"kind"`
	Amount      uint64    `json:"amount"`
	Height      uint64    `json:"height"`
}

// Timing describes where the current height sits relative to a round's
// betting window.
type Timing struct {
	Height         uint64 `json:"height"`
	CloseHeight    uint64 `json:"close_height"`
	Remaining      uint64 `json:"remaining"`
	FinalCallStart uint64 `json:"final_call_start"`
	FinalCall      bool   `json:"final_call"`
}

// Resolution reports how far a round is through the close protocol.
type Resolution struct {
	Round             uint64 `json:"round"`
	Phase             Phase  `json:"phase"`
	CommittedRound    uint64 `json:"committed_round,omitempty"`
	CommitHeight      uint64 `json:"commit_height,omitempty"`
	TimeoutHeight     uint64 `json:"timeout_height,omitempty"`
	ActualCloseHeight uint64 `json:"actual_close_height,omitempty"`
	CanProceed        bool   `json:"can_proceed"`
}

// BetRequest is the body of a bet submission.
type BetRequest struct {
	Participant string `json:"participant"`
	Side        Side   `json:"side"`
	Amount      uint64 `json:"amount"`
}

// BetResponse acknowledges an accepted bet.
type BetResponse struct {
	Round    uint64  `json:"round"`
	Side     Side    `json:"side"`
	Bet      SideBet `json:"bet"`
	SidePool uint64  `json:"side_pool"`
}

// ClaimRequest is the body of a claim submission.
type ClaimRequest struct {
	Participant string `json:"participant"`
	Side        Side   `json:"side"`
}
