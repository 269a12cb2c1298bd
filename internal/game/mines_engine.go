package game

import (
	"fmt"
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"fairplay/internal/fault"
)

const (
	MINES_GRID_SIZE = 25 // 5x5 grid
	MINES_MIN_COUNT = 1
	MINES_MAX_COUNT = 24
)

type MinesStatus string

const (
	MinesActive MinesStatus = "ACTIVE"
	MinesWon    MinesStatus = "WON"
	MinesLost   MinesStatus = "LOST"
)

// LayMines shuffles the 25 cells with Fisher-Yates keyed by draw,
// j = floor((draw*10000 + i) mod (i+1)) for i from 24 down to 1, and
// returns the first mineCount cells of the shuffle.
func LayMines(draw float64, mineCount int) ([]int, error) {
	if mineCount < MINES_MIN_COUNT || mineCount > MINES_MAX_COUNT {
		return nil, fmt.Errorf("mine count %d: %w", mineCount, fault.ErrInvalidMineCount)
	}
	cells := make([]int, MINES_GRID_SIZE)
	for i := range cells {
		cells[i] = i
	}
	for i := MINES_GRID_SIZE - 1; i >= 1; i-- {
		j := int(math.Floor(math.Mod(draw*10000+float64(i), float64(i+1))))
		cells[i], cells[j] = cells[j], cells[i]
	}
	return slices.Clone(cells[:mineCount]), nil
}

// MinesMultiplier is 0.99 divided by the probability of surviving
// revealed picks with mineCount mines on the board.
func MinesMultiplier(mineCount, revealed int) float64 {
	if revealed == 0 {
		return 1.0
	}
	p := 1.0
	for i := 0; i < revealed; i++ {
		p *= float64(MINES_GRID_SIZE-mineCount-i) / float64(MINES_GRID_SIZE-i)
	}
	return minesRTP / p
}

// MinesState is the server side of a mines round. Mines stay hidden from
// the player until the round is terminal.
type MinesState struct {
	BetAmount   decimal.Decimal `json:"bet_amount"`
	MineCount   int             `json:"mine_count"`
	Mines       []int           `json:"mines"`
	Revealed    []int           `json:"revealed"`
	Multiplier  float64         `json:"multiplier"`
	Status      MinesStatus     `json:"status"`
	HitPosition *int            `json:"hit_position,omitempty"`
	CashedOut   bool            `json:"cashed_out,omitempty"`
}

// NewMinesState lays the board for a fresh round.
func NewMinesState(draw float64, bet decimal.Decimal, mineCount int) (*MinesState, error) {
	if !bet.IsPositive() {
		return nil, fmt.Errorf("bet %s: %w", bet, fault.ErrInvalidBet)
	}
	mines, err := LayMines(draw, mineCount)
	if err != nil {
		return nil, err
	}
	return &MinesState{
		BetAmount:  bet,
		MineCount:  mineCount,
		Mines:      mines,
		Revealed:   []int{},
		Multiplier: 1.0,
		Status:     MinesActive,
	}, nil
}

type RevealResult struct {
	Position   int     `json:"position"`
	IsMine     bool    `json:"is_mine"`
	Multiplier float64 `json:"multiplier"`
	Terminal   bool    `json:"terminal"`
}

func (m *MinesState) terminal() bool {
	return m.Status != MinesActive
}

// SafeRemaining is the number of safe cells not yet revealed.
func (m *MinesState) SafeRemaining() int {
	return MINES_GRID_SIZE - m.MineCount - len(m.Revealed)
}

// Reveal opens one cell. Hitting a mine ends the round as a loss; opening
// the last safe cell ends it as a win at the current multiplier.
func (m *MinesState) Reveal(position int) (RevealResult, error) {
	if m.terminal() {
		return RevealResult{}, fault.ErrGameAlreadyOver
	}
	if position < 0 || position >= MINES_GRID_SIZE {
		return RevealResult{}, fmt.Errorf("position %d: %w", position, fault.ErrPositionOutOfRange)
	}
	if slices.Contains(m.Revealed, position) {
		return RevealResult{}, fmt.Errorf("position %d: %w", position, fault.ErrAlreadyRevealed)
	}

	if slices.Contains(m.Mines, position) {
		hit := position
		m.HitPosition = &hit
		m.Multiplier = 0
		m.Status = MinesLost
		return RevealResult{Position: position, IsMine: true, Terminal: true}, nil
	}

	m.Revealed = append(m.Revealed, position)
	m.Multiplier = MinesMultiplier(m.MineCount, len(m.Revealed))
	if m.SafeRemaining() == 0 {
		m.Status = MinesWon
	}
	return RevealResult{
		Position:   position,
		Multiplier: m.Multiplier,
		Terminal:   m.terminal(),
	}, nil
}

// Cashout ends an active round as a win at the current multiplier.
func (m *MinesState) Cashout() (Outcome, error) {
	if m.terminal() {
		return Outcome{}, fault.ErrGameAlreadyOver
	}
	if len(m.Revealed) == 0 {
		return Outcome{}, fault.ErrNothingRevealed
	}
	m.Status = MinesWon
	m.CashedOut = true
	return m.Outcome(), nil
}

// Outcome describes a terminal round. Calling it on an active round
// reports a loss with no multiplier.
func (m *MinesState) Outcome() Outcome {
	result := MinesResult{
		MineCount:   m.MineCount,
		Mines:       slices.Clone(m.Mines),
		Revealed:    slices.Clone(m.Revealed),
		HitPosition: m.HitPosition,
		Cashout:     m.CashedOut,
	}
	if m.Status != MinesWon {
		return lost(result)
	}
	return Outcome{
		Won:        true,
		Multiplier: m.Multiplier,
		Payout:     payout(m.BetAmount, m.Multiplier),
		Result:     result,
	}
}

// MinesView is what the player sees of a round.
type MinesView struct {
	MineCount      int         `json:"mine_count"`
	Revealed       []int       `json:"revealed"`
	Multiplier     float64     `json:"multiplier"`
	NextMultiplier float64     `json:"next_multiplier,omitempty"`
	Status         MinesStatus `json:"status"`
	Mines          []int       `json:"mines,omitempty"`
	HitPosition    *int        `json:"hit_position,omitempty"`
}

// Public hides mine positions while the round is live.
func (m *MinesState) Public() MinesView {
	v := MinesView{
		MineCount:   m.MineCount,
		Revealed:    slices.Clone(m.Revealed),
		Multiplier:  m.Multiplier,
		Status:      m.Status,
		HitPosition: m.HitPosition,
	}
	if m.terminal() {
		v.Mines = slices.Clone(m.Mines)
		return v
	}
	if m.SafeRemaining() > 0 {
		v.NextMultiplier = MinesMultiplier(m.MineCount, len(m.Revealed)+1)
	}
	return v
}
