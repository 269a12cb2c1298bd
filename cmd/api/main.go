package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"fairplay/internal/cache"
	"fairplay/internal/config"
	"fairplay/internal/database"
	"fairplay/internal/events"
	"fairplay/internal/fairness"
	"fairplay/internal/fault"
	"fairplay/internal/game"
	"fairplay/internal/ledger"
	"fairplay/internal/server"
	"fairplay/internal/store"
)

// closer collects shutdown hooks in start order.
type closer []func()

func (c *closer) add(fn func()) { *c = append(*c, fn) }

func (c closer) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[SERVER] Config: %v", err)
	}

	var cleanup closer
	srv, err := build(cfg, &cleanup)
	if err != nil {
		cleanup.run()
		log.Fatalf("[SERVER] Startup: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			log.Printf("[SERVER] Listen: %v", err)
			stop()
		}
	}()
	log.Printf("[SERVER] Listening on :%d (store=%s lock=%s rounds=%s)", cfg.Port, cfg.StoreDriver, cfg.LockDriver, cfg.RoundDriver)

	<-ctx.Done()
	if err := srv.Shutdown(); err != nil {
		log.Printf("[SERVER] Shutdown: %v", err)
	}
	cleanup.run()
	log.Println("[SERVER] Graceful shutdown complete")
}

func build(cfg config.Config, cleanup *closer) (*server.FiberServer, error) {
	health := map[string]server.HealthChecker{}

	var st store.Store
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.New(cfg.DB)
		if err != nil {
			return nil, err
		}
		cleanup.add(func() { db.Close() })
		health["database"] = db

		if cfg.MigrateOnStart {
			if err := database.RunMigrations(cfg.DB.DSN(), cfg.MigrationsPath); err != nil {
				return nil, err
			}
			log.Println("[DB] Migrations applied")
		}
		st = database.NewStore(db.DB())
	default:
		log.Println("[SERVER] Using in-memory store, balances are lost on restart")
		st = store.NewMemory()
	}

	var (
		locker game.Locker     = game.NewMutexLocker()
		rounds game.RoundStore = game.NewMemoryRounds()
	)
	if cfg.UsesRedis() {
		redisService, err := cache.New(cfg.Redis)
		if err != nil {
			return nil, err
		}
		cleanup.add(func() { redisService.Close() })
		health["cache"] = redisService

		if cfg.LockDriver == config.DriverRedis {
			locker = cache.NewRedisLocker(redisService.GetClient())
		}
		if cfg.RoundDriver == config.DriverRedis {
			rounds = cache.NewRounds(redisService.GetClient())
		}
	}

	hub := game.NewHub()
	go hub.Run()
	cleanup.add(hub.Stop)

	publishers := events.Multi{hub}
	if cfg.NATS.URL != "" {
		nats, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, err
		}
		cleanup.add(nats.Close)
		publishers = append(publishers, nats)
	}

	commitment := fairness.NewCommitment(st)
	l := ledger.New(st, commitment, ledger.WithStartingBalance(cfg.StartingBalance))
	svc := game.NewService(l, commitment, rounds, locker, game.WithPublisher(publishers))

	manager := game.NewManager(svc, publishers, cfg.CrashTick)
	manager.Start()
	cleanup.add(manager.Stop)

	if cfg.AdminUsername != "" {
		if err := ensureAdmin(l, cfg.AdminUsername); err != nil {
			return nil, err
		}
	}

	srv := server.New(server.Deps{
		Ledger:    l,
		Games:     svc,
		Manager:   manager,
		Hub:       hub,
		JWTSecret: cfg.JWTSecret,
		Health:    health,
	})
	srv.RegisterFiberRoutes()
	return srv, nil
}

func ensureAdmin(l *ledger.Ledger, username string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u, err := l.OnboardAdmin(ctx, username)
	if errors.Is(err, fault.ErrUsernameTaken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin %q: %w", username, err)
	}
	log.Printf("[SERVER] Created admin user %d (%s)", u.ID, u.Username)
	return nil
}
