package server

import (
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type,X-User-ID",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")
	api.Post("/users", s.createUserHandler)
	api.Post("/fair/verify", s.verifyHandler)

	player := api.Group("", s.requireUser)
	player.Get("/wallet", s.walletHandler)
	player.Get("/history", s.historyHandler)
	player.Get("/transactions", s.transactionsHandler)

	player.Get("/fair/seed", s.seedHandler)
	player.Post("/fair/rotate", s.rotateSeedHandler)

	player.Post("/dice/roll", s.diceRollHandler)

	crash := player.Group("/crash")
	crash.Post("/bet", s.crashBetHandler)
	crash.Post("/cashout", s.crashCashoutHandler)
	crash.Get("/:roundId", s.crashRoundHandler)

	mines := player.Group("/mines")
	mines.Post("/bet", s.minesBetHandler)
	mines.Post("/reveal", s.minesRevealHandler)
	mines.Post("/cashout", s.minesCashoutHandler)
	mines.Get("/:roundId", s.minesRoundHandler)

	admin := player.Group("/admin", s.requireAdmin)
	admin.Get("/users", s.adminUsersHandler)
	admin.Get("/history", s.adminHistoryHandler)
	admin.Get("/transactions", s.adminTransactionsHandler)
	admin.Post("/balance", s.adminBalanceHandler)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.spectatorHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{"status": "ok"}
	for name, svc := range s.health {
		stats := svc.Health()
		if stats["status"] != "up" {
			health["status"] = "degraded"
		}
		health[name] = stats
	}

	gameStats := fiber.Map{"status": "running"}
	if s.hub != nil {
		gameStats["connected_clients"] = s.hub.GetClientCount()
	}
	if s.manager != nil {
		gameStats["live_crash_rounds"] = s.manager.LiveRounds()
	}
	health["game"] = gameStats
	return c.JSON(health)
}

// spectatorHandler streams live game events. Clients may only ping.
func (s *FiberServer) spectatorHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")
	log.Printf("[WS] New connection from user: %s", userID)

	s.hub.RegisterClient(conn, userID)
	defer s.hub.UnregisterClient(conn)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for user %s: %v", userID, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err == nil && msg.Type == "ping" {
			s.hub.Pong(conn)
		}
	}
}
