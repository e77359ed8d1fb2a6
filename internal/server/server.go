package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"minority/internal/cache"
	"minority/internal/config"
	"minority/internal/database"
	"minority/internal/game"
)

// BalanceBook is the wallet surface the HTTP API exposes. Both wallet
// adapters satisfy it.
type BalanceBook interface {
	Balance(ctx context.Context, who string) (uint64, error)
}

// Faucet credits a participant directly. Only dev wallets implement it.
type Faucet interface {
	SetBalance(ctx context.Context, who string, amount uint64) error
}

// Deps are the collaborators the server routes to. DB, Cache and Wallet
// may be nil; the routes that need them then answer 503.
type Deps struct {
	Engine *game.Engine
	Hub    *game.Hub
	DB     database.Service
	Cache  cache.Service
	Wallet BalanceBook
	Config config.ServerConfig
}

type FiberServer struct {
	*fiber.App

	engine *game.Engine
	hub    *game.Hub
	db     database.Service
	cache  cache.Service
	wallet BalanceBook
	cfg    config.ServerConfig
}

func New(deps Deps) *FiberServer {
	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "minority",
			AppName:       "minority",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
			ErrorHandler:  errorHandler,
		}),

		engine: deps.Engine,
		hub:    deps.Hub,
		db:     deps.DB,
		cache:  deps.Cache,
		wallet: deps.Wallet,
		cfg:    deps.Config,
	}

	perMin := deps.Config.RequestsPerMin
	if perMin <= 0 {
		perMin = 100
	}
	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        perMin,
		Expiration: 1 * time.Minute,
	}))

	return server
}

// Shutdown stops accepting requests and closes the hub's connections.
// Storage handles belong to the caller.
func (s *FiberServer) Shutdown() error {
	log.Info("[SERVER] shutting down")
	if s.hub != nil {
		s.hub.Stop()
	}
	return s.App.ShutdownWithTimeout(10 * time.Second)
}
