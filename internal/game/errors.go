package game

import "errors"

var (
	// input validation
	ErrUnknownRound       = errors.New("unknown round")
	ErrInvalidSide        = errors.New("invalid side")
	ErrInvalidParticipant = errors.New("participant is required")
	ErrBetTooSmall        = errors.New("bet below minimum")
	ErrStakeOverflow      = errors.New("stake exceeds round capacity")

	// phase violations
	ErrBettingClosed      = errors.New("betting is closed")
	ErrRoundAlreadyActive = errors.New("round already active")
	ErrBettingStillOpen   = errors.New("betting still open")
	ErrAlreadyResolved    = errors.New("round already resolved")
	ErrRoundNotSettled    = errors.New("round not settled")
	ErrPaused             = errors.New("new rounds are paused")

	// resource limits
	ErrTooManyBettors = errors.New("too many bettors")

	// claims and fees
	ErrNoBet          = errors.New("no bet on this side")
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrNoFees         = errors.New("no fees to withdraw")
	ErrInsolventRound = errors.New("round balance cannot cover payout")

	// external dependencies
	ErrTransferFailed = errors.New("transfer failed")
	ErrCollectFailed  = errors.New("stake collection failed")

	// ErrWaitingForRandomness is retryable: the committed oracle round is
	// not yet published. Nothing changed; call CloseRound again later.
	ErrWaitingForRandomness = errors.New("waiting for randomness")
)

// Cancellation reasons recorded on Game.CancelReason.
const (
	ReasonOracleUnavailable        = "oracle unavailable"
	ReasonOracleTimeout            = "oracle timeout"
	ReasonInsufficientParticipants = "insufficient valid participation"
	ReasonTie                      = "exact tie"
)
