package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minority/internal/config"
	"minority/internal/game"
)

func newTestStore(t *testing.T, cfg config.DatabaseConfig) *Store {
	t.Helper()
	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv.Store()
}

func eachDialect(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newTestStore(t, sqliteConfig()))
	})
	t.Run("postgres", func(t *testing.T) {
		s := newTestStore(t, postgresConfig(t))
		_, err := s.db.Exec(`TRUNCATE rounds, bets, claims, fee_withdrawals`)
		require.NoError(t, err)
		fn(t, s)
	})
}

func TestStore_Rebind(t *testing.T) {
	pg := &Store{dialect: DialectPostgres}
	lite := &Store{dialect: DialectSQLite}
	q := `SELECT * FROM bets WHERE round_id = ? AND side = ?`

	assert.Equal(t, `SELECT * FROM bets WHERE round_id = $1 AND side = $2`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestStore_Rounds(t *testing.T) {
	eachDialect(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		betting := game.Game{ID: 1, Phase: game.PhaseBetting, StartHeight: 10, CloseHeight: 310, RedPool: 975, RedBettors: 1}
		require.NoError(t, s.SaveRound(ctx, betting))

		resolved := betting
		resolved.Phase = game.PhaseResolved
		resolved.BluePool, resolved.BlueBettors = 1950, 2
		resolved.HasWinner, resolved.WinningSide = true, game.SideRed
		resolved.CommittedRound, resolved.CommitHeight, resolved.ActualCloseHeight = 40, 310, 295
		resolved.ValidRedPool, resolved.ValidBluePool, resolved.ValidLiquidity = 975, 1950, 2925
		resolved.TotalLiquidity, resolved.ResolvedHeight = 2925, 330
		require.NoError(t, s.SaveRound(ctx, resolved))

		cancelled := game.Game{ID: 2, Phase: game.PhaseFinalized, StartHeight: 330, CloseHeight: 630, CancelReason: "tie"}
		require.NoError(t, s.SaveRound(ctx, cancelled))

		rounds, err := s.RecentRounds(ctx, 0)
		require.NoError(t, err)
		require.Len(t, rounds, 2)
		assert.Equal(t, cancelled, rounds[0], "newest first")
		assert.Equal(t, resolved, rounds[1], "upsert keeps the latest snapshot")

		rounds, err = s.RecentRounds(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, rounds, 1)
	})
}

func TestStore_BetsAndClaims(t *testing.T) {
	eachDialect(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.SaveRound(ctx, game.Game{ID: 7, Phase: game.PhaseBetting}))

		bets := []game.BetRecord{
			{Participant: "alice", Side: game.SideRed, Bet: game.SideBet{Amount: 975, Fee: 25, PlacedAtHeight: 12}},
			{Participant: "alice", Side: game.SideBlue, Bet: game.SideBet{Amount: 100, Fee: 2, PlacedAtHeight: 13}},
			{Participant: "bob", Side: game.SideBlue, Bet: game.SideBet{Amount: 500, Fee: 12, PlacedAtHeight: 14}},
		}
		require.NoError(t, s.SaveBets(ctx, 7, bets))
		require.NoError(t, s.SaveBets(ctx, 7, nil))

		// resolution rewrites the late flag
		bets[2].Bet.IsLateBet = true
		require.NoError(t, s.SaveBets(ctx, 7, bets[2:]))

		var late bool
		require.NoError(t, s.db.QueryRow(s.rebind(
			`SELECT is_late FROM bets WHERE round_id = ? AND participant = ? AND side = ?`), 7, "bob", "blue").Scan(&late))
		assert.True(t, late)

		first := game.ClaimResult{ReceiptID: "r-1", Round: 7, Participant: "alice", Side: game.SideRed, Kind: game.ClaimPayout, Amount: 1400, Height: 40}
		require.NoError(t, s.SaveClaim(ctx, first))
		time.Sleep(5 * time.Millisecond)
		second := game.ClaimResult{ReceiptID: "r-2", Round: 7, Participant: "alice", Side: game.SideBlue, Kind: game.ClaimLoss, Height: 41}
		require.NoError(t, s.SaveClaim(ctx, second))

		assert.Error(t, s.SaveClaim(ctx, first), "receipts are unique")

		claims, err := s.ClaimsFor(ctx, "alice", 0)
		require.NoError(t, err)
		assert.Equal(t, []game.ClaimResult{second, first}, claims)

		claims, err = s.ClaimsFor(ctx, "bob", 10)
		require.NoError(t, err)
		assert.Empty(t, claims)

		var claimed bool
		require.NoError(t, s.db.QueryRow(s.rebind(
			`SELECT claimed FROM bets WHERE round_id = ? AND participant = ? AND side = ?`), 7, "alice", "red").Scan(&claimed))
		assert.True(t, claimed)
	})
}

func TestStore_Withdrawal(t *testing.T) {
	eachDialect(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.SaveWithdrawal(ctx, "w-1", "operator", 75, 400))

		var amount int64
		var operator string
		require.NoError(t, s.db.QueryRow(s.rebind(
			`SELECT operator, amount FROM fee_withdrawals WHERE receipt_id = ?`), "w-1").Scan(&operator, &amount))
		assert.Equal(t, "operator", operator)
		assert.Equal(t, int64(75), amount)
	})
}

func TestStore_LoadSnapshot(t *testing.T) {
	eachDialect(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		empty, err := s.LoadSnapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty.Rounds)
		assert.Zero(t, empty.WithdrawnFees)

		resolved := game.Game{
			ID: 1, Phase: game.PhaseResolved, CloseHeight: 100, RedPool: 100, BluePool: 900,
			RedBettors: 1, BlueBettors: 1, HasWinner: true, WinningSide: game.SideRed,
			ValidRedPool: 100, ValidBluePool: 900, ValidLiquidity: 976, TotalLiquidity: 976,
		}
		open := game.Game{ID: 2, Phase: game.PhaseBetting, StartHeight: 100, CloseHeight: 200, RedPool: 50, RedBettors: 1}
		require.NoError(t, s.SaveRound(ctx, open))
		require.NoError(t, s.SaveRound(ctx, resolved))

		red := game.BetRecord{Participant: "alice", Side: game.SideRed, Bet: game.SideBet{Amount: 100, Fee: 2, PlacedAtHeight: 10}}
		blue := game.BetRecord{Participant: "bob", Side: game.SideBlue, Bet: game.SideBet{Amount: 900, Fee: 22, PlacedAtHeight: 12}}
		later := game.BetRecord{Participant: "carol", Side: game.SideRed, Bet: game.SideBet{Amount: 50, Fee: 1, PlacedAtHeight: 120}}
		require.NoError(t, s.SaveBets(ctx, 1, []game.BetRecord{blue, red}))
		require.NoError(t, s.SaveBets(ctx, 2, []game.BetRecord{later}))
		require.NoError(t, s.SaveClaim(ctx, game.ClaimResult{ReceiptID: "r-1", Round: 1, Participant: "alice", Side: game.SideRed, Kind: game.ClaimPayout, Amount: 976}))
		require.NoError(t, s.SaveWithdrawal(ctx, "w-1", "operator", 20, 130))
		require.NoError(t, s.SaveWithdrawal(ctx, "w-2", "operator", 4, 131))

		snap, err := s.LoadSnapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snap.Rounds, 2)
		assert.Equal(t, resolved, snap.Rounds[0].Game, "oldest first")
		assert.Equal(t, open, snap.Rounds[1].Game)

		red.Bet.Claimed = true
		assert.Equal(t, []game.BetRecord{red, blue}, snap.Rounds[0].Bets, "placement order")
		assert.Equal(t, []game.BetRecord{later}, snap.Rounds[1].Bets)
		assert.Equal(t, uint64(24), snap.WithdrawnFees)
	})
}
