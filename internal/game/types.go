package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fairplay/internal/store"
)

// HouseEdge is shared by every game. The RTP constants below are exact
// untyped expressions so the float64 they produce is the nearest value to
// the decimal the verification formulas publish.
const (
	HouseEdge = 0.01

	diceRTP  = 100 * (1 - HouseEdge) // 99
	crashRTP = 1 - HouseEdge         // 0.99
	minesRTP = 1 - HouseEdge         // 0.99
)

// Outcome is what an engine returns for a finished bet.
type Outcome struct {
	Won        bool            `json:"won"`
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Result     Result          `json:"result"`
}

// Profit is the signed amount recorded in game history.
func (o Outcome) Profit(bet decimal.Decimal) decimal.Decimal {
	return o.Payout.Sub(bet)
}

// Result is the game specific payload of an Outcome. Exactly one of
// DiceResult, CrashResult and MinesResult.
type Result interface {
	Game() store.GameType
}

type DiceResult struct {
	Roll      int       `json:"roll"`
	Target    int       `json:"target"`
	Direction Direction `json:"direction"`
	WinChance int       `json:"win_chance"`
}

func (DiceResult) Game() store.GameType { return store.GameDice }

type CrashResult struct {
	CrashPoint        float64     `json:"crash_point"`
	CashoutMultiplier float64     `json:"cashout_multiplier,omitempty"`
	AutoCashout       float64     `json:"auto_cashout,omitempty"`
	Status            CrashStatus `json:"status"`
}

func (CrashResult) Game() store.GameType { return store.GameCrash }

type MinesResult struct {
	MineCount   int   `json:"mine_count"`
	Mines       []int `json:"mines"`
	Revealed    []int `json:"revealed"`
	HitPosition *int  `json:"hit_position,omitempty"`
	Cashout     bool  `json:"cashout"`
}

func (MinesResult) Game() store.GameType { return store.GameMines }

type resultEnvelope struct {
	Type store.GameType  `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeResult serializes a Result with its game tag for history storage.
func EncodeResult(r Result) (json.RawMessage, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resultEnvelope{Type: r.Game(), Data: data})
}

// DecodeResult reverses EncodeResult.
func DecodeResult(raw json.RawMessage) (Result, error) {
	var env resultEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case store.GameDice:
		var v DiceResult
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case store.GameCrash:
		var v CrashResult
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case store.GameMines:
		var v MinesResult
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown result type %q", env.Type)
}

// payout multiplies with decimal precision and keeps 8 places, matching the
// NUMERIC(20,8) money columns.
func payout(bet decimal.Decimal, multiplier float64) decimal.Decimal {
	return bet.Mul(decimal.NewFromFloat(multiplier)).Round(8)
}

func lost(r Result) Outcome {
	return Outcome{Won: false, Multiplier: 0, Payout: decimal.Zero, Result: r}
}

// RoundState is an open or finished multi-step round, keyed by
// (PlayerID, RoundID). Exactly one of Mines and Crash is set.
type RoundState struct {
	RoundID    string          `json:"round_id"`
	PlayerID   int64           `json:"player_id"`
	Game       store.GameType  `json:"game"`
	BetAmount  decimal.Decimal `json:"bet_amount"`
	ClientSeed string          `json:"client_seed"`
	Seed       store.SeedPair  `json:"seed"`
	Mines      *MinesState     `json:"mines,omitempty"`
	Crash      *CrashState     `json:"crash,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	Voided     bool            `json:"voided,omitempty"`
}

// Terminal reports whether the round can no longer change.
func (r *RoundState) Terminal() bool {
	if r.Voided {
		return true
	}
	switch {
	case r.Mines != nil:
		return r.Mines.Status != MinesActive
	case r.Crash != nil:
		return r.Crash.Status != CrashPending
	}
	return true
}
