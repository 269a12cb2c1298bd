package game

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fairplay/internal/fairness"
	"fairplay/internal/fault"
	"fairplay/internal/store"
)

// VerifyRequest recomputes a settled bet from its revealed seed. Game
// parameters are optional except MineCount for mines.
type VerifyRequest struct {
	ServerSeed   string         `json:"server_seed" validate:"required"`
	ClientSeed   string         `json:"client_seed" validate:"required"`
	Nonce        int64          `json:"nonce" validate:"gte=0"`
	Game         store.GameType `json:"game_type" validate:"required,oneof=dice crash mines"`
	Target       int            `json:"target,omitempty"`
	Direction    Direction      `json:"direction,omitempty"`
	AutoCashout  float64        `json:"auto_cashout,omitempty"`
	MineCount    int            `json:"mine_count,omitempty"`
	ExpectedHash string         `json:"expected_hash,omitempty"`
}

type Verification struct {
	Game            store.GameType `json:"game_type"`
	ServerSeedHash  string         `json:"server_seed_hash"`
	CommitmentValid *bool          `json:"commitment_valid,omitempty"`
	Hash            string         `json:"hash"`
	Draw            float64        `json:"draw"`
	Result          Result         `json:"result"`
	Won             *bool          `json:"won,omitempty"`
	Multiplier      float64        `json:"multiplier,omitempty"`
}

// unitBet prices verification outcomes; only the multiplier is reported.
var unitBet = decimal.NewFromInt(1)

// Verify runs the same derivation the service uses on live bets.
func Verify(req VerifyRequest) (Verification, error) {
	if req.ServerSeed == "" {
		return Verification{}, fault.ErrMissingServerSeed
	}
	if req.ClientSeed == "" {
		return Verification{}, fault.ErrMissingClientSeed
	}
	if !req.Game.Valid() {
		return Verification{}, fmt.Errorf("game %q: %w", req.Game, fault.ErrInvalidGameType)
	}

	v := Verification{
		Game:           req.Game,
		ServerSeedHash: fairness.HashCommitment(req.ServerSeed),
		Hash:           fairness.DrawHash(req.ServerSeed, req.ClientSeed, req.Nonce),
		Draw:           fairness.Draw(req.ServerSeed, req.ClientSeed, req.Nonce),
	}
	if req.ExpectedHash != "" {
		ok := fairness.CheckCommitment(req.ServerSeed, req.ExpectedHash)
		v.CommitmentValid = &ok
	}

	switch req.Game {
	case store.GameDice:
		if req.Target == 0 {
			v.Result = DiceResult{Roll: DiceRoll(v.Draw)}
			return v, nil
		}
		out, err := PlayDice(v.Draw, unitBet, req.Target, req.Direction)
		if err != nil {
			return Verification{}, err
		}
		v.settled(out)
	case store.GameCrash:
		point := CrashPoint(v.Draw)
		if req.AutoCashout == 0 {
			v.Result = CrashResult{CrashPoint: point, Status: CrashCrashed}
			return v, nil
		}
		out, err := SettleAutoCashout(unitBet, req.AutoCashout, point)
		if err != nil {
			return Verification{}, err
		}
		v.settled(out)
	case store.GameMines:
		mines, err := LayMines(v.Draw, req.MineCount)
		if err != nil {
			return Verification{}, err
		}
		v.Result = MinesResult{MineCount: req.MineCount, Mines: mines}
	}
	return v, nil
}

func (v *Verification) settled(out Outcome) {
	won := out.Won
	v.Won = &won
	v.Multiplier = out.Multiplier
	v.Result = out.Result
}
