package game

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"fairplay/internal/fault"
)

const (
	DiceMinTarget = 2  // exclusive bound 1
	DiceMaxTarget = 98 // exclusive bound 99
)

// Direction selects which side of the target wins.
type Direction string

const (
	DirectionUnder Direction = "under"
	DirectionOver  Direction = "over"
)

func (d Direction) Valid() bool {
	return d == DirectionUnder || d == DirectionOver
}

// DiceRoll maps a draw onto an integer in [1,100]. A draw of exactly 1.0
// (digest prefix ffffffff) is clamped to 100.
func DiceRoll(draw float64) int {
	roll := int(math.Floor(draw*100)) + 1
	if roll > 100 {
		roll = 100
	}
	return roll
}

// DiceWinChance is the number of winning rolls out of 100.
func DiceWinChance(target int, direction Direction) int {
	if direction == DirectionUnder {
		return target - 1
	}
	return 100 - target
}

// DiceMultiplier is the payout multiplier for a winning roll:
// 100 * (1 - HouseEdge) / winChance, i.e. 99 / winChance.
func DiceMultiplier(target int, direction Direction) float64 {
	return diceRTP / float64(DiceWinChance(target, direction))
}

func validateDice(bet decimal.Decimal, target int, direction Direction) error {
	if !bet.IsPositive() {
		return fmt.Errorf("bet %s: %w", bet, fault.ErrInvalidBet)
	}
	if target < DiceMinTarget || target > DiceMaxTarget {
		return fmt.Errorf("target %d: %w", target, fault.ErrInvalidTarget)
	}
	if !direction.Valid() {
		return fmt.Errorf("direction %q: %w", direction, fault.ErrInvalidDirection)
	}
	return nil
}

// PlayDice settles a dice bet from a single draw.
func PlayDice(draw float64, bet decimal.Decimal, target int, direction Direction) (Outcome, error) {
	if err := validateDice(bet, target, direction); err != nil {
		return Outcome{}, err
	}

	roll := DiceRoll(draw)
	var win bool
	if direction == DirectionUnder {
		win = roll < target
	} else {
		win = roll > target
	}

	result := DiceResult{
		Roll:      roll,
		Target:    target,
		Direction: direction,
		WinChance: DiceWinChance(target, direction),
	}
	if !win {
		return lost(result), nil
	}

	multiplier := DiceMultiplier(target, direction)
	return Outcome{
		Won:        true,
		Multiplier: multiplier,
		Payout:     payout(bet, multiplier),
		Result:     result,
	}, nil
}
