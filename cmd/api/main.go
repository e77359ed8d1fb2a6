package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"minority/internal/cache"
	"minority/internal/config"
	"minority/internal/database"
	"minority/internal/game"
	"minority/internal/oracle"
	"minority/internal/server"
	"minority/internal/wallet"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("[MAIN] %v", err)
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	heights := game.NewWallClock(time.Now(), cfg.Height.Interval())

	// Redis is optional: without it the oracle must be the in-process
	// beacon and balances live in memory.
	var redisService cache.Service
	if cfg.Oracle.Kind == "redis" || os.Getenv("REDIS_URL") != "" {
		redisService = cache.New(cfg.Redis)
	}

	var source game.RandomnessSource
	switch {
	case cfg.Oracle.Kind == "redis" && redisService != nil:
		source = oracle.NewRedis(redisService.GetClient(), 0)
		log.Info("[MAIN] randomness from Redis relay")
	case cfg.Oracle.Kind == "redis":
		log.Fatal("[MAIN] oracle.kind=redis but Redis is unreachable")
	default:
		beacon := oracle.NewBeacon(cfg.Oracle.BeaconSeed, heights, cfg.Oracle.BeaconPeriod)
		source = beacon
		log.WithField("commitment", beacon.Commitment()).Info("[MAIN] in-process beacon started")
	}

	var purse interface {
		game.Wallet
		server.BalanceBook
	}
	var instanceLock *cache.Lock
	if redisService != nil {
		// round ledgers live in this process, so one process per wallet
		instanceLock = cache.NewLock(redisService.GetClient(), "", cfg.Redis.LockTTL())
		held, err := instanceLock.Acquire(ctx)
		if err != nil {
			log.Fatalf("[MAIN] instance lock: %v", err)
		}
		if !held {
			log.Fatal("[MAIN] another instance is serving this Redis wallet")
		}
		go instanceLock.Hold(ctx, stop)
		purse = wallet.NewRedis(redisService.GetClient())
	} else {
		log.Warn("[MAIN] Redis unavailable, using in-memory wallet")
		purse = wallet.NewMemory()
	}

	engine, err := game.NewEngine(cfg.Game, heights, source, purse, cfg.Server.OperatorAddress)
	if err != nil {
		log.Fatalf("[MAIN] %v", err)
	}

	hub := game.NewHub()
	go hub.Run()
	engine.AddNotifier(hub)

	var db database.Service
	var recorder *database.Recorder
	if cfg.Database.Driver != "none" {
		db, err = database.New(cfg.Database)
		if err != nil {
			log.Fatalf("[MAIN] %v", err)
		}
		snap, err := db.Store().LoadSnapshot(ctx)
		if err != nil {
			log.Fatalf("[MAIN] %v", err)
		}
		if err := engine.Restore(snap); err != nil {
			log.Fatalf("[MAIN] %v", err)
		}
		recorder = database.NewRecorder(db.Store(), cfg.Server.OperatorAddress)
		recorder.Start()
		engine.AddNotifier(recorder)
	}

	var manager *game.Manager
	if cfg.Manager.Enabled {
		manager = game.NewManager(engine, cfg.Manager.Tick(), cfg.Manager.Retry(), cfg.Manager.AutoStart)
		manager.Start(ctx)
	}

	srv := server.New(server.Deps{
		Engine: engine,
		Hub:    hub,
		DB:     db,
		Cache:  redisService,
		Wallet: purse,
		Config: cfg.Server,
	})
	srv.RegisterFiberRoutes()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.WithField("addr", addr).Info("[MAIN] listening")
		if err := srv.Listen(addr); err != nil {
			log.WithError(err).Error("[MAIN] server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("[MAIN] shutting down")

	if manager != nil {
		manager.Stop()
	}
	if err := srv.Shutdown(); err != nil {
		log.WithError(err).Warn("[MAIN] server shutdown")
	}
	if recorder != nil {
		recorder.Stop()
	}
	if db != nil {
		db.Close()
	}
	if instanceLock != nil {
		if err := instanceLock.Release(context.Background()); err != nil {
			log.WithError(err).Warn("[MAIN] instance lock release")
		}
	}
	if redisService != nil {
		redisService.Close()
	}
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Warn("[MAIN] unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
