package store

import (
	"context"

	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryLimit = 50
	DefaultAdminLimit   = 100
)

// Store is the persistence collaborator. Each method is atomic for the
// single record it touches; callers needing several writes to land together
// use WithTx. Per-player serialization is the caller's job.
type Store interface {
	CreateUser(ctx context.Context, username string, isAdmin bool) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	// UpdateUserBalance applies delta and fails with fault.ErrInsufficientBalance
	// rather than let the balance go negative.
	UpdateUserBalance(ctx context.Context, id int64, delta decimal.Decimal) (User, error)

	CreateTransaction(ctx context.Context, rec TransactionRecord) (TransactionRecord, error)
	// ListTransactions returns newest first. userID 0 lists every user.
	ListTransactions(ctx context.Context, userID int64, limit int) ([]TransactionRecord, error)

	CreateGameHistory(ctx context.Context, rec GameHistoryRecord) (GameHistoryRecord, error)
	ListGameHistory(ctx context.Context, userID int64, limit int) ([]GameHistoryRecord, error)

	CreateServerSeed(ctx context.Context, pair SeedPair) (SeedPair, error)
	// GetServerSeedPair returns the user's active pair or fault.ErrNoActiveSeed.
	GetServerSeedPair(ctx context.Context, userID int64) (SeedPair, error)
	// AdvanceNonce increments the nonce only if it still equals expected.
	AdvanceNonce(ctx context.Context, seedID, expected int64) (SeedPair, error)
	MarkSeedUsed(ctx context.Context, seedID int64) (SeedPair, error)

	// WithTx runs fn against a store whose writes commit together or not at all.
	WithTx(ctx context.Context, fn func(Store) error) error
}
