package fault

import (
	"errors"
	"fmt"
)

// Kind groups errors by how the caller is expected to react.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindState               Kind = "state"
	KindIntegrity           Kind = "integrity"
	KindPersistence         Kind = "persistence"
	KindNotFound            Kind = "not_found"
)

// Error is a typed failure with a stable code the routing layer can map
// without string matching.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on code so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidBet         = New(KindValidation, "INVALID_BET", "bet amount must be positive")
	ErrInvalidTarget      = New(KindValidation, "INVALID_TARGET", "target must be between 2 and 98")
	ErrInvalidDirection   = New(KindValidation, "INVALID_DIRECTION", "direction must be under or over")
	ErrInvalidMineCount   = New(KindValidation, "INVALID_MINE_COUNT", "mine count must be between 1 and 24")
	ErrInvalidCashout     = New(KindValidation, "INVALID_CASHOUT", "cashout multiplier must be greater than 1.00")
	ErrPositionOutOfRange = New(KindValidation, "POSITION_OUT_OF_RANGE", "position must be between 0 and 24")
	ErrMissingClientSeed  = New(KindValidation, "MISSING_CLIENT_SEED", "client seed is required")
	ErrMissingServerSeed  = New(KindValidation, "MISSING_SERVER_SEED", "server seed is required")
	ErrInvalidGameType    = New(KindValidation, "INVALID_GAME_TYPE", "unknown game type")
	ErrUsernameTaken      = New(KindValidation, "USERNAME_TAKEN", "username already exists")
	ErrInvalidUsername    = New(KindValidation, "INVALID_USERNAME", "username is required")
	ErrInvalidAmount      = New(KindValidation, "INVALID_AMOUNT", "amount must not be negative")

	ErrInsufficientBalance = New(KindInsufficientBalance, "INSUFFICIENT_BALANCE", "insufficient balance")

	ErrAlreadyRevealed = New(KindState, "ALREADY_REVEALED", "tile already revealed")
	ErrGameAlreadyOver = New(KindState, "GAME_ALREADY_OVER", "game is already over")
	ErrCashoutTooLate  = New(KindState, "CASHOUT_TOO_LATE", "round crashed before the requested multiplier")
	ErrNothingRevealed = New(KindState, "NOTHING_REVEALED", "reveal at least one tile before cashing out")
	ErrRoundInProgress = New(KindState, "ROUND_IN_PROGRESS", "finish the open round before placing another bet")

	ErrNoActiveSeed  = New(KindIntegrity, "NO_ACTIVE_SEED", "no active server seed")
	ErrSeedReused    = New(KindIntegrity, "SEED_REUSED", "server seed already retired")
	ErrNonceMismatch = New(KindIntegrity, "NONCE_MISMATCH", "server seed nonce moved during the bet")
	ErrSeedCorrupt   = New(KindIntegrity, "SEED_CORRUPT", "server seed does not match its published hash")

	ErrPersistence = New(KindPersistence, "PERSISTENCE", "store write failed")

	ErrUserNotFound  = New(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrRoundNotFound = New(KindNotFound, "ROUND_NOT_FOUND", "round not found")
)

// KindOf returns the kind of the first *Error in the chain, or
// KindPersistence for untyped errors since those come from the store.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindPersistence
}

// Persistence wraps a store failure so it classifies as KindPersistence
// while keeping the underlying cause for logs.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
