package server

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"fairplay/internal/fault"
)

type DiceRollRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	ClientSeed string          `json:"client_seed" validate:"required,max=128"`
	Target     int             `json:"target" validate:"min=2,max=98"`
	Direction  string          `json:"direction" validate:"oneof=under over"`
}

type CrashBetRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ClientSeed  string          `json:"client_seed" validate:"required,max=128"`
	AutoCashout float64         `json:"auto_cashout" validate:"omitempty,gt=1"`
}

type CrashCashoutRequest struct {
	RoundID    string  `json:"round_id" validate:"required"`
	Multiplier float64 `json:"multiplier" validate:"omitempty,gt=1"`
}

type MinesBetRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	ClientSeed string          `json:"client_seed" validate:"required,max=128"`
	MineCount  int             `json:"mine_count" validate:"min=1,max=24"`
}

type MinesRevealRequest struct {
	RoundID  string `json:"round_id" validate:"required"`
	Position *int   `json:"position" validate:"required,min=0,max=24"`
}

type MinesCashoutRequest struct {
	RoundID string `json:"round_id" validate:"required"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,max=32"`
}

type AdjustBalanceRequest struct {
	UserID  int64           `json:"user_id" validate:"gt=0"`
	Balance decimal.Decimal `json:"balance"`
}

// fieldErrors maps a failed field onto the domain error a client would
// get from the game layer for the same mistake.
var fieldErrors = map[string]*fault.Error{
	"ClientSeed":  fault.ErrMissingClientSeed,
	"ServerSeed":  fault.ErrMissingServerSeed,
	"Target":      fault.ErrInvalidTarget,
	"Direction":   fault.ErrInvalidDirection,
	"AutoCashout": fault.ErrInvalidCashout,
	"Multiplier":  fault.ErrInvalidCashout,
	"MineCount":   fault.ErrInvalidMineCount,
	"Position":    fault.ErrPositionOutOfRange,
	"Username":    fault.ErrInvalidUsername,
	"Nonce":       fault.New(fault.KindValidation, "INVALID_NONCE", "nonce must not be negative"),
	"Game":        fault.ErrInvalidGameType,
}

var errBadBody = fault.New(fault.KindValidation, "INVALID_REQUEST", "invalid request body")

// bind parses the JSON body into req and validates it.
func (s *FiberServer) bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return errBadBody
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if fe, ok := fieldErrors[verrs[0].StructField()]; ok {
				return fe
			}
			return fault.New(fault.KindValidation, "INVALID_REQUEST", verrs[0].Error())
		}
		return errBadBody
	}
	return nil
}
