package server

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"fairplay/internal/game"
)

const tokenTTL = 24 * time.Hour

func (s *FiberServer) createUserHandler(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	user, err := s.ledger.Onboard(c.UserContext(), req.Username)
	if err != nil {
		return err
	}

	resp := fiber.Map{"user": user}
	if len(s.jwtSecret) > 0 {
		token, err := IssueToken(s.jwtSecret, user.ID, tokenTTL)
		if err != nil {
			return err
		}
		resp["token"] = token
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (s *FiberServer) walletHandler(c *fiber.Ctx) error {
	user := currentUser(c)
	return c.JSON(fiber.Map{
		"user_id":  user.ID,
		"username": user.Username,
		"balance":  user.Balance,
	})
}

func (s *FiberServer) historyHandler(c *fiber.Ctx) error {
	recs, err := s.ledger.History(c.UserContext(), currentUser(c).ID, c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(recs)
}

func (s *FiberServer) transactionsHandler(c *fiber.Ctx) error {
	recs, err := s.ledger.Transactions(c.UserContext(), currentUser(c).ID, c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(recs)
}

// Provably fair

func (s *FiberServer) seedHandler(c *fiber.Ctx) error {
	view, err := s.games.SeedInfo(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *FiberServer) rotateSeedHandler(c *fiber.Ctx) error {
	rot, err := s.games.RotateSeed(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(rot)
}

func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	var req game.VerifyRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	v, err := game.Verify(req)
	if err != nil {
		return err
	}
	return c.JSON(v)
}

// Dice

func (s *FiberServer) diceRollHandler(c *fiber.Ctx) error {
	var req DiceRollRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	rcpt, err := s.games.PlayDice(c.UserContext(), game.DiceBet{
		PlayerID:   currentUser(c).ID,
		Amount:     req.Amount,
		ClientSeed: req.ClientSeed,
		Target:     req.Target,
		Direction:  game.Direction(req.Direction),
	})
	if err != nil {
		return err
	}
	return c.JSON(rcpt)
}

// Crash

func (s *FiberServer) crashBetHandler(c *fiber.Ctx) error {
	var req CrashBetRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	view, err := s.games.StartCrash(c.UserContext(), game.CrashBet{
		PlayerID:    currentUser(c).ID,
		Amount:      req.Amount,
		ClientSeed:  req.ClientSeed,
		AutoCashout: req.AutoCashout,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (s *FiberServer) crashCashoutHandler(c *fiber.Ctx) error {
	var req CrashCashoutRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	view, err := s.games.CashoutCrash(c.UserContext(), currentUser(c).ID, req.RoundID, req.Multiplier)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *FiberServer) crashRoundHandler(c *fiber.Ctx) error {
	view, err := s.games.CrashRound(c.UserContext(), currentUser(c).ID, c.Params("roundId"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// Mines

func (s *FiberServer) minesBetHandler(c *fiber.Ctx) error {
	var req MinesBetRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	round, err := s.games.StartMines(c.UserContext(), game.MinesBet{
		PlayerID:   currentUser(c).ID,
		Amount:     req.Amount,
		ClientSeed: req.ClientSeed,
		MineCount:  req.MineCount,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(round)
}

func (s *FiberServer) minesRevealHandler(c *fiber.Ctx) error {
	var req MinesRevealRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	round, err := s.games.RevealMine(c.UserContext(), currentUser(c).ID, req.RoundID, *req.Position)
	if err != nil {
		return err
	}
	return c.JSON(round)
}

func (s *FiberServer) minesCashoutHandler(c *fiber.Ctx) error {
	var req MinesCashoutRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	round, err := s.games.CashoutMines(c.UserContext(), currentUser(c).ID, req.RoundID)
	if err != nil {
		return err
	}
	return c.JSON(round)
}

func (s *FiberServer) minesRoundHandler(c *fiber.Ctx) error {
	round, err := s.games.MinesRound(c.UserContext(), currentUser(c).ID, c.Params("roundId"))
	if err != nil {
		return err
	}
	return c.JSON(round)
}

// Admin

func (s *FiberServer) adminUsersHandler(c *fiber.Ctx) error {
	users, err := s.ledger.Users(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(users)
}

func (s *FiberServer) adminHistoryHandler(c *fiber.Ctx) error {
	recs, err := s.ledger.History(c.UserContext(), int64(c.QueryInt("user_id")), c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(recs)
}

func (s *FiberServer) adminTransactionsHandler(c *fiber.Ctx) error {
	recs, err := s.ledger.Transactions(c.UserContext(), int64(c.QueryInt("user_id")), c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(recs)
}

// adminBalanceHandler resets a balance; the difference is booked as an
// admin_adjustment transaction.
func (s *FiberServer) adminBalanceHandler(c *fiber.Ctx) error {
	var req AdjustBalanceRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	user, err := s.ledger.Adjust(c.UserContext(), req.UserID, req.Balance)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"user_id": user.ID,
		"balance": user.Balance,
		"message": "Balance updated successfully",
	})
}
