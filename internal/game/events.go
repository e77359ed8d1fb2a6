package game

// EventType names an engine event on the wire.
type EventType string

const (
	EventRoundStarted     EventType = "round_started"
	EventBetPlaced        EventType = "bet_placed"
	EventRoundCalculating EventType = "round_calculating"
	EventRoundResolved    EventType = "round_resolved"
	EventRoundCancelled   EventType = "round_cancelled"
	EventClaimSettled     EventType = "claim_settled"
	EventFeesWithdrawn    EventType = "fees_withdrawn"
)

// Event is emitted once per committed mutation. Game always carries the
// round snapshot taken at commit time; the remaining fields depend on Type.
type Event struct {
	// Seq increases by one per event in commit order.
	Seq         uint64       `json:"seq"`
	Type        EventType    `json:"type"`
	Round       uint64       `json:"round,omitempty"`
	Height      uint64       `json:"height"`
	Game        *Game        `json:"game,omitempty"`
	Participant string       `json:"participant,omitempty"`
	Side        Side         `json:"side,omitempty"`
	Bet         *SideBet     `json:"bet,omitempty"`
	SidePool    uint64       `json:"side_pool,omitempty"`
	Claim       *ClaimResult `json:"claim,omitempty"`
	Amount      uint64       `json:"amount,omitempty"`
	Recipient   string       `json:"recipient,omitempty"`
	ReceiptID   string       `json:"receipt_id,omitempty"`
	Reason      string       `json:"reason,omitempty"`

	// Bets lists every SideBet of the round at resolution or cancellation
	// so subscribers can persist late-bet flags.
	Bets []BetRecord `json:"bets,omitempty"`
}

// BetRecord is a SideBet together with its owner and side.
type BetRecord struct {
	Participant string  `json:"participant"`
	Side        Side    `json:"side"`
	Bet         SideBet `json:"bet"`
}

func gameEvent(t EventType, g Game, height uint64) Event {
	snapshot := g
	return Event{Type: t, Round: g.ID, Height: height, Game: &snapshot}
}
