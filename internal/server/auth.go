package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"fairplay/internal/fault"
	"fairplay/internal/store"
)

const localUser = "user"

// IssueToken signs an HS256 bearer token for playerID.
func IssueToken(secret []byte, playerID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(playerID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *FiberServer) playerID(c *fiber.Ctx) (int64, error) {
	if len(s.jwtSecret) == 0 {
		id, err := strconv.ParseInt(c.Get("X-User-ID"), 10, 64)
		if err != nil || id <= 0 {
			return 0, fiber.NewError(fiber.StatusUnauthorized, "X-User-ID header is required")
		}
		return id, nil
	}

	raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || raw == "" {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "bearer token required")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "invalid token subject")
	}
	return id, nil
}

// requireUser resolves the caller and stores the store.User in Locals.
func (s *FiberServer) requireUser(c *fiber.Ctx) error {
	id, err := s.playerID(c)
	if err != nil {
		return err
	}
	user, err := s.ledger.Balance(c.UserContext(), id)
	if errors.Is(err, fault.ErrUserNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, "unknown user")
	}
	if err != nil {
		return err
	}
	c.Locals(localUser, user)
	return c.Next()
}

func (s *FiberServer) requireAdmin(c *fiber.Ctx) error {
	if !currentUser(c).IsAdmin {
		return fiber.NewError(fiber.StatusForbidden, "admin only")
	}
	return c.Next()
}

func currentUser(c *fiber.Ctx) store.User {
	u, _ := c.Locals(localUser).(store.User)
	return u
}
