package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const ADMIN_TOKEN_HEADER = "X-Admin-Token"

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type," + ADMIN_TOKEN_HEADER,
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	rounds := api.Group("/rounds")
	rounds.Post("/", s.startRoundHandler)
	rounds.Get("/current", s.currentRoundHandler)
	rounds.Get("/:id", s.roundHandler)
	rounds.Post("/:id/bets", s.placeBetHandler)
	rounds.Get("/:id/bets/:participant", s.betsHandler)
	rounds.Post("/:id/close", s.closeRoundHandler)
	rounds.Post("/:id/claims", s.claimHandler)
	rounds.Get("/:id/odds", s.oddsHandler)
	rounds.Get("/:id/resolution", s.resolutionHandler)
	rounds.Get("/:id/timing", s.timingHandler)

	api.Get("/stats", s.globalStatsHandler)
	api.Get("/stats/:participant", s.userStatsHandler)
	api.Get("/leaderboard", s.leaderboardHandler)
	api.Get("/history", s.historyHandler)
	api.Get("/history/:participant/claims", s.claimHistoryHandler)

	api.Get("/wallet/:participant", s.getBalanceHandler)
	api.Post("/wallet/:participant", s.setBalanceHandler)

	admin := api.Group("/admin", s.requireAdmin)
	admin.Post("/pause", s.pauseHandler)
	admin.Post("/unpause", s.unpauseHandler)
	admin.Post("/withdraw", s.withdrawHandler)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}
