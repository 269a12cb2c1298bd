package server

import (
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"fairplay/internal/game"
	"fairplay/internal/ledger"
)

// HealthChecker is any backing service that can report its status.
type HealthChecker interface {
	Health() map[string]string
}

type Deps struct {
	Ledger    *ledger.Ledger
	Games     *game.Service
	Manager   *game.Manager
	Hub       *game.Hub
	JWTSecret string
	// RateLimit is requests per minute per client IP. Zero means 100.
	RateLimit int
	// Health lists backing services by name, e.g. "database", "cache".
	Health map[string]HealthChecker
}

type FiberServer struct {
	*fiber.App

	ledger    *ledger.Ledger
	games     *game.Service
	manager   *game.Manager
	hub       *game.Hub
	validate  *validator.Validate
	jwtSecret []byte
	health    map[string]HealthChecker
}

func New(d Deps) *FiberServer {
	limit := d.RateLimit
	if limit == 0 {
		limit = 100
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "fairplay",
			AppName:       "fairplay",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
			ErrorHandler:  errorHandler,
		}),

		ledger:    d.Ledger,
		games:     d.Games,
		manager:   d.Manager,
		hub:       d.Hub,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		jwtSecret: []byte(d.JWTSecret),
		health:    d.Health,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        limit,
		Expiration: 1 * time.Minute,
	}))

	if len(server.jwtSecret) == 0 {
		log.Println("[SERVER] JWT_SECRET not set, trusting X-User-ID header")
	}

	return server
}

// Shutdown stops the HTTP listener. Game components and connections are
// owned by the caller.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")
	return s.App.ShutdownWithTimeout(10 * time.Second)
}
