package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"minority/internal/game"
)

// Store persists round history. It is written behind the engine by the
// Recorder and read back once at startup to rebuild engine state.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// rebind turns ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const upsertRound = `
INSERT INTO rounds (
    id, phase, red_pool, blue_pool, red_bettors, blue_bettors,
    start_height, close_height, resolved_height, has_winner, winning_side,
    total_liquidity, committed_round, commit_height, actual_close_height,
    valid_red_pool, valid_blue_pool, valid_liquidity, cancel_reason, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    phase               = excluded.phase,
    red_pool            = excluded.red_pool,
    blue_pool           = excluded.blue_pool,
    red_bettors         = excluded.red_bettors,
    blue_bettors        = excluded.blue_bettors,
    resolved_height     = excluded.resolved_height,
    has_winner          = excluded.has_winner,
    winning_side        = excluded.winning_side,
    total_liquidity     = excluded.total_liquidity,
    committed_round     = excluded.committed_round,
    commit_height       = excluded.commit_height,
    actual_close_height = excluded.actual_close_height,
    valid_red_pool      = excluded.valid_red_pool,
    valid_blue_pool     = excluded.valid_blue_pool,
    valid_liquidity     = excluded.valid_liquidity,
    cancel_reason       = excluded.cancel_reason,
    updated_at          = excluded.updated_at`

// SaveRound upserts a round snapshot.
func (s *Store) SaveRound(ctx context.Context, g game.Game) error {
	_, err := s.db.ExecContext(ctx, s.rebind(upsertRound),
		int64(g.ID), g.Phase.String(), int64(g.RedPool), int64(g.BluePool),
		int64(g.RedBettors), int64(g.BlueBettors),
		int64(g.StartHeight), int64(g.CloseHeight), int64(g.ResolvedHeight),
		g.HasWinner, g.WinningSide.String(), int64(g.TotalLiquidity),
		int64(g.CommittedRound), int64(g.CommitHeight), int64(g.ActualCloseHeight),
		int64(g.ValidRedPool), int64(g.ValidBluePool), int64(g.ValidLiquidity),
		g.CancelReason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store.SaveRound %d: %w", g.ID, err)
	}
	return nil
}

const upsertBet = `
INSERT INTO bets (round_id, participant, side, amount, fee, placed_at_height, is_late, claimed, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (round_id, participant, side) DO UPDATE SET
    amount           = excluded.amount,
    fee              = excluded.fee,
    placed_at_height = excluded.placed_at_height,
    is_late          = excluded.is_late,
    claimed          = excluded.claimed,
    updated_at       = excluded.updated_at`

// SaveBets upserts SideBet records of one round in a single transaction.
func (s *Store) SaveBets(ctx context.Context, round uint64, records []game.BetRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.SaveBets: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(upsertBet))
	if err != nil {
		return fmt.Errorf("store.SaveBets: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			int64(round), r.Participant, r.Side.String(),
			int64(r.Bet.Amount), int64(r.Bet.Fee), int64(r.Bet.PlacedAtHeight),
			r.Bet.IsLateBet, r.Bet.Claimed, now,
		); err != nil {
			return fmt.Errorf("store.SaveBets: round %d %s/%s: %w", round, r.Participant, r.Side, err)
		}
	}
	return tx.Commit()
}

// SaveClaim records a settled claim and flags the bet as claimed.
func (s *Store) SaveClaim(ctx context.Context, c game.ClaimResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.SaveClaim: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`
INSERT INTO claims (receipt_id, round_id, participant, side, kind, amount, height, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ReceiptID, int64(c.Round), c.Participant, c.Side.String(), string(c.Kind),
		int64(c.Amount), int64(c.Height), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("store.SaveClaim: insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE bets SET claimed = ? WHERE round_id = ? AND participant = ? AND side = ?`),
		true, int64(c.Round), c.Participant, c.Side.String(),
	); err != nil {
		return fmt.Errorf("store.SaveClaim: mark bet: %w", err)
	}
	return tx.Commit()
}

// SaveWithdrawal records a fee withdrawal to the operator.
func (s *Store) SaveWithdrawal(ctx context.Context, receipt, operator string, amount, height uint64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO fee_withdrawals (receipt_id, operator, amount, height, created_at)
VALUES (?, ?, ?, ?, ?)`),
		receipt, operator, int64(amount), int64(height), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store.SaveWithdrawal: %w", err)
	}
	return nil
}

const selectRounds = `
SELECT id, phase, red_pool, blue_pool, red_bettors, blue_bettors,
       start_height, close_height, resolved_height, has_winner, winning_side,
       total_liquidity, committed_round, commit_height, actual_close_height,
       valid_red_pool, valid_blue_pool, valid_liquidity, cancel_reason
FROM rounds`

// RecentRounds returns up to limit rounds, newest first.
func (s *Store) RecentRounds(ctx context.Context, limit int) ([]game.Game, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(selectRounds+` ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("store.RecentRounds: %w", err)
	}
	defer rows.Close()

	out, err := scanRounds(rows)
	if err != nil {
		return nil, fmt.Errorf("store.RecentRounds: %w", err)
	}
	return out, nil
}

func scanRounds(rows *sql.Rows) ([]game.Game, error) {
	var out []game.Game
	for rows.Next() {
		var (
			g                                            game.Game
			id, red, blue, redN, blueN                   int64
			start, closeH, resolved, liquidity           int64
			committed, commitH, actual, vRed, vBlue, vLq int64
			phase, side                                  string
		)
		if err := rows.Scan(&id, &phase, &red, &blue, &redN, &blueN,
			&start, &closeH, &resolved, &g.HasWinner, &side,
			&liquidity, &committed, &commitH, &actual,
			&vRed, &vBlue, &vLq, &g.CancelReason,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := g.Phase.UnmarshalText([]byte(phase)); err != nil {
			return nil, fmt.Errorf("round %d: %w", id, err)
		}
		var err error
		if g.WinningSide, err = game.ParseSide(side); err != nil {
			return nil, fmt.Errorf("round %d: %w", id, err)
		}
		g.ID = uint64(id)
		g.RedPool, g.BluePool = uint64(red), uint64(blue)
		g.RedBettors, g.BlueBettors = uint32(redN), uint32(blueN)
		g.StartHeight, g.CloseHeight, g.ResolvedHeight = uint64(start), uint64(closeH), uint64(resolved)
		g.TotalLiquidity = uint64(liquidity)
		g.CommittedRound, g.CommitHeight, g.ActualCloseHeight = uint64(committed), uint64(commitH), uint64(actual)
		g.ValidRedPool, g.ValidBluePool, g.ValidLiquidity = uint64(vRed), uint64(vBlue), uint64(vLq)
		out = append(out, g)
	}
	return out, rows.Err()
}

// LoadSnapshot reads every round with its bets, plus the total of fee
// withdrawals, for game.Engine.Restore.
func (s *Store) LoadSnapshot(ctx context.Context) (game.Snapshot, error) {
	var snap game.Snapshot

	rows, err := s.db.QueryContext(ctx, selectRounds+` ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("store.LoadSnapshot: rounds: %w", err)
	}
	rounds, err := scanRounds(rows)
	rows.Close()
	if err != nil {
		return snap, fmt.Errorf("store.LoadSnapshot: rounds: %w", err)
	}
	index := make(map[uint64]int, len(rounds))
	for i, g := range rounds {
		index[g.ID] = i
		snap.Rounds = append(snap.Rounds, game.RoundState{Game: g})
	}

	rows, err = s.db.QueryContext(ctx, `
SELECT round_id, participant, side, amount, fee, placed_at_height, is_late, claimed
FROM bets ORDER BY round_id, placed_at_height, participant, side`)
	if err != nil {
		return snap, fmt.Errorf("store.LoadSnapshot: bets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r                          game.BetRecord
			round, amount, fee, placed int64
			side                       string
		)
		if err := rows.Scan(&round, &r.Participant, &side, &amount, &fee, &placed, &r.Bet.IsLateBet, &r.Bet.Claimed); err != nil {
			return snap, fmt.Errorf("store.LoadSnapshot: scan bet: %w", err)
		}
		if r.Side, err = game.ParseSide(side); err != nil {
			return snap, fmt.Errorf("store.LoadSnapshot: round %d: %w", round, err)
		}
		r.Bet.Amount, r.Bet.Fee, r.Bet.PlacedAtHeight = uint64(amount), uint64(fee), uint64(placed)
		i, ok := index[uint64(round)]
		if !ok {
			return snap, fmt.Errorf("store.LoadSnapshot: bet for unknown round %d", round)
		}
		snap.Rounds[i].Bets = append(snap.Rounds[i].Bets, r)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("store.LoadSnapshot: bets: %w", err)
	}

	var withdrawn int64
	if err := s.db.QueryRowContext(ctx, `SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM fee_withdrawals`).Scan(&withdrawn); err != nil {
		return snap, fmt.Errorf("store.LoadSnapshot: withdrawals: %w", err)
	}
	snap.WithdrawnFees = uint64(withdrawn)
	return snap, nil
}

// ClaimsFor returns a participant's claims, newest first.
func (s *Store) ClaimsFor(ctx context.Context, participant string, limit int) ([]game.ClaimResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT receipt_id, round_id, participant, side, kind, amount, height
FROM claims WHERE participant = ? ORDER BY created_at DESC, round_id DESC LIMIT ?`), participant, limit)
	if err != nil {
		return nil, fmt.Errorf("store.ClaimsFor: %w", err)
	}
	defer rows.Close()

	var out []game.ClaimResult
	for rows.Next() {
		var (
			c                     game.ClaimResult
			round, amount, height int64
			side, kind            string
		)
		if err := rows.Scan(&c.ReceiptID, &round, &c.Participant, &side, &kind, &amount, &height); err != nil {
			return nil, fmt.Errorf("store.ClaimsFor: scan: %w", err)
		}
		if c.Side, err = game.ParseSide(side); err != nil {
			return nil, fmt.Errorf("store.ClaimsFor: %w", err)
		}
		c.Round, c.Amount, c.Height = uint64(round), uint64(amount), uint64(height)
		c.Kind = game.ClaimKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}
