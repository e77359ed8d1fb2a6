package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"red", SideRed, false},
		{" BLUE ", SideBlue, false},
		{"", SideNone, false},
		{"none", SideNone, false},
		{"green", SideNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSide(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSide)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSide_Other(t *testing.T) {
	assert.Equal(t, SideBlue, SideRed.Other())
	assert.Equal(t, SideRed, SideBlue.Other())
	assert.Equal(t, SideNone, SideNone.Other())
}

func TestBetRequest_DecodesSideNames(t *testing.T) {
	var req BetRequest
	require.NoError(t, json.Unmarshal([]byte(`{"participant":"x","side":"Blue","amount":1500}`), &req))
	assert.Equal(t, BetRequest{Participant: "x", Side: SideBlue, Amount: 1500}, req)

	err := json.Unmarshal([]byte(`{"participant":"x","side":"up","amount":1}`), &req)
	assert.Error(t, err)
}

func TestPhase_Predicates(t *testing.T) {
	tests := []struct {
		phase    Phase
		open     bool
		terminal bool
	}{
		{PhaseNotStarted, false, false},
		{PhaseBetting, true, false},
		{PhaseCalculating, true, false},
		{PhaseResolved, false, true},
		{PhaseFinalized, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.phase.String(), func(t *testing.T) {
			assert.Equal(t, tt.open, tt.phase.Open())
			assert.Equal(t, tt.terminal, tt.phase.Terminal())

			var back Phase
			require.NoError(t, back.UnmarshalText([]byte(tt.phase.String())))
			assert.Equal(t, tt.phase, back)
		})
	}

	var p Phase
	assert.Error(t, p.UnmarshalText([]byte("OPEN")))
}

func TestGame_Cancelled(t *testing.T) {
	assert.True(t, Game{Phase: PhaseFinalized}.Cancelled())
	assert.False(t, Game{Phase: PhaseResolved, HasWinner: true}.Cancelled())
	assert.False(t, Game{Phase: PhaseBetting}.Cancelled())
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero betting window", func(p *Params) { p.BettingWindow = 0 }},
		{"final window too wide", func(p *Params) { p.FinalWindow = p.BettingWindow + 1 }},
		{"zero final window", func(p *Params) { p.FinalWindow = 0 }},
		{"zero buffer", func(p *Params) { p.Buffer = 0 }},
		{"zero timeout", func(p *Params) { p.Timeout = 0 }},
		{"fee at 100%", func(p *Params) { p.FeeBps = BPS_DENOMINATOR }},
		{"zero min bet", func(p *Params) { p.MinBet = 0 }},
		{"no bettors", func(p *Params) { p.MaxBettors = 0 }},
		{"no leaderboard", func(p *Params) { p.LeaderboardSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestParams_Fee(t *testing.T) {
	p := DefaultParams()
	fee, net := p.fee(1_000)
	assert.Equal(t, uint64(25), fee)
	assert.Equal(t, uint64(975), net)

	p.FeeBps = 0
	fee, net = p.fee(1_000)
	assert.Zero(t, fee)
	assert.Equal(t, uint64(1_000), net)
}

func TestActualCloseHeight(t *testing.T) {
	var v [32]byte
	for i := range v {
		v[i] = 0xff
	}
	got := actualCloseHeight(300, 30, v)
	assert.GreaterOrEqual(t, got, uint64(270))
	assert.Less(t, got, uint64(300))

	v = [32]byte{}
	v[31] = 29
	assert.Equal(t, uint64(299), actualCloseHeight(300, 30, v))
	v[31] = 30
	assert.Equal(t, uint64(270), actualCloseHeight(300, 30, v))
}
