package store

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type GameType string

const (
	GameDice  GameType = "dice"
	GameCrash GameType = "crash"
	GameMines GameType = "mines"
)

func (g GameType) Valid() bool {
	switch g {
	case GameDice, GameCrash, GameMines:
		return true
	}
	return false
}

type User struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Balance   decimal.Decimal `json:"balance"`
	IsAdmin   bool            `json:"is_admin"`
	CreatedAt time.Time       `json:"created_at"`
}

// SeedPair is a player's server seed commitment. ServerSeed stays hidden
// until the pair is retired by rotation.
type SeedPair struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	ServerSeed     string    `json:"-"`
	ServerSeedHash string    `json:"server_seed_hash"`
	Nonce          int64     `json:"nonce"`
	Used           bool      `json:"used"`
	CreatedAt      time.Time `json:"created_at"`
}

type TransactionType string

const (
	TxDeposit         TransactionType = "deposit"
	TxWithdraw        TransactionType = "withdraw"
	TxBet             TransactionType = "bet"
	TxWin             TransactionType = "win"
	TxLoss            TransactionType = "loss"
	TxRefund          TransactionType = "refund"
	TxAdminAdjustment TransactionType = "admin_adjustment"
)

// TransactionRecord is an append-only ledger line. A user's balance is the
// sum of Amount over all of their records.
type TransactionRecord struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"timestamp"`
}

// GameHistoryRecord is written exactly once per settled bet and carries
// everything a third party needs to recompute the outcome.
type GameHistoryRecord struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	GameType       GameType        `json:"game_type"`
	RoundID        string          `json:"round_id"`
	BetAmount      decimal.Decimal `json:"bet_amount"`
	Multiplier     float64         `json:"multiplier"`
	Outcome        decimal.Decimal `json:"outcome"`
	Result         json.RawMessage `json:"game_data"`
	ClientSeed     string          `json:"client_seed"`
	ServerSeedHash string          `json:"server_seed_hash"`
	Nonce          int64           `json:"nonce"`
	CreatedAt      time.Time       `json:"timestamp"`
}
