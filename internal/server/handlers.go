package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"minority/internal/game"
)

// errorHandler maps engine sentinels onto HTTP statuses. Anything unknown
// is a 500.
func errorHandler(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		log.WithFields(log.Fields{"path": c.Path(), "status": code}).WithError(err).Error("[HTTP] request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, game.ErrUnknownRound), errors.Is(err, game.ErrNoBet):
		return fiber.StatusNotFound
	case errors.Is(err, game.ErrInvalidSide),
		errors.Is(err, game.ErrInvalidParticipant),
		errors.Is(err, game.ErrBetTooSmall),
		errors.Is(err, game.ErrStakeOverflow):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrBettingClosed),
		errors.Is(err, game.ErrRoundAlreadyActive),
		errors.Is(err, game.ErrBettingStillOpen),
		errors.Is(err, game.ErrAlreadyResolved),
		errors.Is(err, game.ErrRoundNotSettled),
		errors.Is(err, game.ErrPaused),
		errors.Is(err, game.ErrAlreadyClaimed),
		errors.Is(err, game.ErrNoFees),
		errors.Is(err, game.ErrTooManyBettors):
		return fiber.StatusConflict
	case errors.Is(err, game.ErrWaitingForRandomness):
		return fiber.StatusTooEarly
	case errors.Is(err, game.ErrCollectFailed):
		return fiber.StatusPaymentRequired
	case errors.Is(err, game.ErrTransferFailed):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func roundParam(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "round id must be a positive integer")
	}
	return id, nil
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"game": fiber.Map{
			"status":            "running",
			"paused":            s.engine.Paused(),
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}

// Rounds

func (s *FiberServer) startRoundHandler(c *fiber.Ctx) error {
	g, err := s.engine.StartRound(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(g)
}

func (s *FiberServer) currentRoundHandler(c *fiber.Ctx) error {
	g, ok := s.engine.CurrentRound()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no round has been started")
	}
	return c.JSON(g)
}

func (s *FiberServer) roundHandler(c *fiber.Ctx) error {
	id, err := roundParam(c)
	if err != nil {
		return err
	}
	g, err := s.engine.Round(id)
	if err != nil {
		return err
	}
	return c.JSON(g)
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	id, err := roundParam(c)
	if err != nil {
		return err
	}
	var req game.BetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	resp, err := s.engine.PlaceBet(c.UserContext(), id, req.Participant, req.Side, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (s *FiberServer) betsHandler(c *fiber.Ctx) error {
	id, err := roundParam(c)
	if err != nil {
		return err
	}
	red, blue, err := s.engine.Bets(id, c.Params("participant"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"red": red, "blue": blue})
}

func (s *FiberServer) closeRoundHandler(c *fiber.Ctx) error {
	id, err := roundParam(c)
	if err != nil {
		return err
	}
	g, err := s.engine.CloseRound(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(g)
}

func (s *FiberServer) claimHandler(c *fiber.Ctx) error {
	id, err := roundParam(c)
	if err != nil {
		return err
	}
	var req game.ClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Participant == "" {
		return game.ErrInvalidParticipant
	}
	res, err := s.engine.Claim(c.UserContext(), id, req.Participant, req.Side)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *FiberServer) oddsHandler(c *fiber.Ctx) error {
	id, err := roundParam(c)
	if err != nil {
		return err
	}
	odds, err := s.engine.Odds(id)
	if err != nil {
		return err
	}
	return c.JSON(odds)
}

func (s *FiberServer) resolutionHandler(c *fiber.Ctx) error {
	id, err := roundParam(c)
	if err != nil {
		return err
	}
	r, err := s.engine.ResolutionStatus(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *FiberServer) timingHandler(c *fiber.Ctx) error {
	id, err := roundParam(c)
	if err != nil {
		return err
	}
	t, err := s.engine.Timing(id)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// Standings

func (s *FiberServer) globalStatsHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.GlobalStats())
}

func (s *FiberServer) userStatsHandler(c *fiber.Ctx) error {
	participant := c.Params("participant")
	return c.JSON(fiber.Map{
		"participant": participant,
		"stats":       s.engine.Stats(participant),
	})
}

func (s *FiberServer) leaderboardHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.Leaderboard(c.QueryInt("top", 0)))
}

func (s *FiberServer) historyHandler(c *fiber.Ctx) error {
	if s.db == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "history store is disabled")
	}
	rounds, err := s.db.Store().RecentRounds(c.UserContext(), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	if rounds == nil {
		rounds = []game.Game{}
	}
	return c.JSON(rounds)
}

func (s *FiberServer) claimHistoryHandler(c *fiber.Ctx) error {
	if s.db == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "history store is disabled")
	}
	claims, err := s.db.Store().ClaimsFor(c.UserContext(), c.Params("participant"), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	if claims == nil {
		claims = []game.ClaimResult{}
	}
	return c.JSON(claims)
}

// Wallet

func (s *FiberServer) getBalanceHandler(c *fiber.Ctx) error {
	if s.wallet == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "wallet unavailable")
	}
	participant := c.Params("participant")
	balance, err := s.wallet.Balance(c.UserContext(), participant)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"participant": participant,
		"balance":     balance,
	})
}

// setBalanceHandler sets a balance directly (development faucet).
func (s *FiberServer) setBalanceHandler(c *fiber.Ctx) error {
	faucet, ok := s.wallet.(Faucet)
	if !s.cfg.EnableFaucet || !ok {
		return fiber.NewError(fiber.StatusForbidden, "faucet disabled")
	}
	participant := c.Params("participant")

	var body struct {
		Balance uint64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := faucet.SetBalance(c.UserContext(), participant, body.Balance); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"participant": participant,
		"balance":     body.Balance,
		"message":     "Balance updated successfully",
	})
}

// Admin

func (s *FiberServer) requireAdmin(c *fiber.Ctx) error {
	if s.cfg.AdminToken == "" {
		return fiber.NewError(fiber.StatusForbidden, "admin surface disabled")
	}
	got := c.Get(ADMIN_TOKEN_HEADER)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminToken)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid admin token")
	}
	return c.Next()
}

func (s *FiberServer) pauseHandler(c *fiber.Ctx) error {
	s.engine.Pause()
	return c.JSON(fiber.Map{"paused": true})
}

func (s *FiberServer) unpauseHandler(c *fiber.Ctx) error {
	s.engine.Unpause()
	return c.JSON(fiber.Map{"paused": false})
}

func (s *FiberServer) withdrawHandler(c *fiber.Ctx) error {
	amount, err := s.engine.WithdrawFees(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"withdrawn": amount})
}

// WebSocket

type wsRequest struct {
	Type   string    `json:"type"`
	Round  uint64    `json:"round"`
	Side   game.Side `json:"side"`
	Amount uint64    `json:"amount"`
}

// gameWebSocketHandler streams engine events and accepts bets from the
// connected participant.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")
	log.WithField("user", userID).Debug("[WS] new connection")

	client := s.hub.RegisterClient(conn, userID)
	if g, ok := s.engine.CurrentRound(); ok {
		client.SendInitialState(&g)
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.WithField("user", userID).WithError(err).Debug("[WS] read error")
			s.hub.UnregisterClient(conn)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		switch req.Type {
		case "place_bet":
			round := req.Round
			if round == 0 {
				if g, ok := s.engine.CurrentRound(); ok {
					round = g.ID
				}
			}
			resp, err := s.engine.PlaceBet(context.Background(), round, userID, req.Side, req.Amount)
			if err != nil {
				client.Reply(game.WSMessage{Type: "error", Data: err.Error()})
				continue
			}
			client.Reply(game.WSMessage{Type: "bet_accepted", Data: resp})

		case "ping":
			client.Reply(game.WSMessage{Type: "pong"})
		}
	}
}
