package database

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minority/internal/game"
	"minority/internal/wallet"
)

func TestRecorder_PersistsEvents(t *testing.T) {
	store := newTestStore(t, sqliteConfig())
	rec := NewRecorder(store, "house")
	rec.Start()

	g := game.Game{ID: 1, Phase: game.PhaseBetting, StartHeight: 0, CloseHeight: 100}
	bet := game.SideBet{Amount: 975, Fee: 25, PlacedAtHeight: 3}

	rec.Notify(game.Event{Type: game.EventRoundStarted, Round: 1, Game: &g})

	withBet := g
	withBet.RedPool, withBet.RedBettors = 975, 1
	rec.Notify(game.Event{
		Type: game.EventBetPlaced, Round: 1, Game: &withBet,
		Participant: "alice", Side: game.SideRed, Bet: &bet,
	})

	resolved := withBet
	resolved.Phase = game.PhaseResolved
	resolved.HasWinner, resolved.WinningSide = true, game.SideRed
	lateBet := game.SideBet{Amount: 500, Fee: 12, PlacedAtHeight: 99, IsLateBet: true}
	rec.Notify(game.Event{
		Type: game.EventRoundResolved, Round: 1, Game: &resolved,
		Bets: []game.BetRecord{
			{Participant: "alice", Side: game.SideRed, Bet: bet},
			{Participant: "bob", Side: game.SideBlue, Bet: lateBet},
		},
	})

	claim := game.ClaimResult{ReceiptID: "c-1", Round: 1, Participant: "alice", Side: game.SideRed, Kind: game.ClaimPayout, Amount: 975, Height: 120}
	rec.Notify(game.Event{Type: game.EventClaimSettled, Round: 1, Claim: &claim})
	rec.Notify(game.Event{Type: game.EventFeesWithdrawn, Amount: 25, Height: 121, ReceiptID: "w-1"})

	rec.Stop()
	rec.Stop()
	// after Stop events are dropped quietly
	rec.Notify(game.Event{Type: game.EventRoundStarted, Round: 2, Game: &g})

	ctx := context.Background()
	rounds, err := store.RecentRounds(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, resolved, rounds[0])

	var bets int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM bets WHERE round_id = 1`).Scan(&bets))
	assert.Equal(t, 2, bets)

	claims, err := store.ClaimsFor(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, []game.ClaimResult{claim}, claims)

	var operator string
	require.NoError(t, store.db.QueryRow(`SELECT operator FROM fee_withdrawals WHERE receipt_id = 'w-1'`).Scan(&operator))
	assert.Equal(t, "house", operator)
}

func TestRecorder_StopWhileNotifying(t *testing.T) {
	rec := NewRecorder(newTestStore(t, sqliteConfig()), "house")
	rec.Start()

	g := game.Game{ID: 1, Phase: game.PhaseBetting}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				rec.Notify(game.Event{Type: game.EventRoundStarted, Round: 1, Game: &g})
			}
		}()
	}
	rec.Stop()
	wg.Wait()
	rec.Stop()
}

// fixedOracle always reveals the zero value, so rounds close at
// CloseHeight - FinalWindow.
type fixedOracle struct{}

func (fixedOracle) LatestRound(context.Context) (uint64, bool) { return 1, true }

func (fixedOracle) ValueAt(context.Context, uint64) ([32]byte, bool) { return [32]byte{}, true }

func TestRecorder_HistoryRestoresEngine(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, sqliteConfig())
	params := game.Params{
		BettingWindow: 100, FinalWindow: 10, Buffer: 2, Timeout: 20,
		FeeBps: 250, MinBet: 10, MinPool: 10, MaxBettors: 5, LeaderboardSize: 5,
	}
	heights := game.NewManualHeight(0)
	w := wallet.NewMemory()
	require.NoError(t, w.SetBalance(ctx, "alice", 10_000))
	require.NoError(t, w.SetBalance(ctx, "bob", 10_000))

	engine, err := game.NewEngine(params, heights, fixedOracle{}, w, "house")
	require.NoError(t, err)
	rec := NewRecorder(store, "house")
	rec.Start()
	engine.AddNotifier(rec)

	g, err := engine.StartRound(ctx)
	require.NoError(t, err)
	heights.Set(10)
	_, err = engine.PlaceBet(ctx, g.ID, "alice", game.SideRed, 100)
	require.NoError(t, err)
	_, err = engine.PlaceBet(ctx, g.ID, "bob", game.SideBlue, 900)
	require.NoError(t, err)
	heights.Set(g.CloseHeight)
	_, err = engine.CloseRound(ctx, g.ID)
	require.NoError(t, err)
	final, err := engine.CloseRound(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, game.PhaseResolved, final.Phase)
	_, err = engine.Claim(ctx, g.ID, "alice", game.SideRed)
	require.NoError(t, err)
	_, err = engine.WithdrawFees(ctx)
	require.NoError(t, err)

	g, err = engine.StartRound(ctx)
	require.NoError(t, err)
	heights.Set(g.StartHeight + 10)
	_, err = engine.PlaceBet(ctx, g.ID, "alice", game.SideRed, 300)
	require.NoError(t, err)
	_, err = engine.PlaceBet(ctx, g.ID, "bob", game.SideBlue, 200)
	require.NoError(t, err)
	rec.Stop()

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	restarted, err := game.NewEngine(params, heights, fixedOracle{}, w, "house")
	require.NoError(t, err)
	require.NoError(t, restarted.Restore(snap))

	for id := uint64(1); id <= 2; id++ {
		want, _ := engine.Round(id)
		got, err := restarted.Round(id)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		wantBal, _ := engine.Balance(id)
		gotBal, _ := restarted.Balance(id)
		assert.Equal(t, wantBal, gotBal)
		assert.Equal(t, engine.EscrowedFees(id), restarted.EscrowedFees(id))
	}
	assert.Equal(t, engine.GlobalStats(), restarted.GlobalStats())
	assert.Equal(t, engine.Stats("alice"), restarted.Stats("alice"))

	res, err := restarted.Claim(ctx, 1, "bob", game.SideBlue)
	require.NoError(t, err)
	assert.Equal(t, game.ClaimLoss, res.Kind)
	_, err = restarted.Claim(ctx, 1, "alice", game.SideRed)
	assert.ErrorIs(t, err, game.ErrAlreadyClaimed)
}
