package game

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fairplay/internal/fault"
)

const (
	MIN_MULTIPLIER = 1.00
	MAX_MULTIPLIER = 100.00

	crashDrawCap = 0.99

	// live curve m(t) = 1 + t/growthLinear + growthQuadratic*t^2
	growthLinear    = 1.5
	growthQuadratic = 0.005
)

type CrashStatus string

const (
	CrashPending   CrashStatus = "PENDING"
	CrashCashedOut CrashStatus = "CASHED_OUT"
	CrashCrashed   CrashStatus = "CRASHED"
)

// CrashPoint derives the multiplier at which a round crashes:
// min(100, 1/(1-min(draw,0.99)) * 0.99), rounded to 2 decimals, at least 1.00.
func CrashPoint(draw float64) float64 {
	r := math.Min(draw, crashDrawCap)
	point := math.Min(MAX_MULTIPLIER, (1/(1-r))*crashRTP)
	point = math.Round(point*100) / 100
	if point < MIN_MULTIPLIER {
		return MIN_MULTIPLIER
	}
	return point
}

// SettleAutoCashout wins at autoCashout when the round would have reached
// it strictly before crashing.
func SettleAutoCashout(bet decimal.Decimal, autoCashout, crashPoint float64) (Outcome, error) {
	if !bet.IsPositive() {
		return Outcome{}, fmt.Errorf("bet %s: %w", bet, fault.ErrInvalidBet)
	}
	if autoCashout <= MIN_MULTIPLIER {
		return Outcome{}, fmt.Errorf("auto cashout %.2f: %w", autoCashout, fault.ErrInvalidCashout)
	}
	result := CrashResult{CrashPoint: crashPoint, AutoCashout: autoCashout}
	if autoCashout < crashPoint {
		result.CashoutMultiplier = autoCashout
		result.Status = CrashCashedOut
		return Outcome{
			Won:        true,
			Multiplier: autoCashout,
			Payout:     payout(bet, autoCashout),
			Result:     result,
		}, nil
	}
	result.Status = CrashCrashed
	return lost(result), nil
}

// SettleManualCashout validates an explicit cashout against the precomputed
// crash point. Cashing out at or past the crash point is ErrCashoutTooLate.
func SettleManualCashout(bet decimal.Decimal, requested, crashPoint float64) (Outcome, error) {
	if !bet.IsPositive() {
		return Outcome{}, fmt.Errorf("bet %s: %w", bet, fault.ErrInvalidBet)
	}
	if requested <= MIN_MULTIPLIER {
		return Outcome{}, fmt.Errorf("cashout %.2f: %w", requested, fault.ErrInvalidCashout)
	}
	if requested >= crashPoint {
		return Outcome{}, fmt.Errorf("cashout %.2fx: %w", requested, fault.ErrCashoutTooLate)
	}
	return Outcome{
		Won:        true,
		Multiplier: requested,
		Payout:     payout(bet, requested),
		Result: CrashResult{
			CrashPoint:        crashPoint,
			CashoutMultiplier: requested,
			Status:            CrashCashedOut,
		},
	}, nil
}

// CrashState is the server side of a crash round. CrashPoint is never sent
// to the player while Status is PENDING.
type CrashState struct {
	CrashPoint  float64     `json:"crash_point"`
	AutoCashout float64     `json:"auto_cashout,omitempty"`
	Status      CrashStatus `json:"status"`
	CashedOutAt float64     `json:"cashed_out_at,omitempty"`
}

// Finish records the terminal outcome on the state.
func (c *CrashState) Finish(o Outcome) {
	if o.Won {
		c.Status = CrashCashedOut
		c.CashedOutAt = o.Multiplier
		return
	}
	c.Status = CrashCrashed
}

// Crash settles the round as a loss, or as an auto cashout win when the
// target sits below the crash point.
func (c *CrashState) Crash(bet decimal.Decimal) (Outcome, error) {
	if c.AutoCashout > 0 {
		return SettleAutoCashout(bet, c.AutoCashout, c.CrashPoint)
	}
	return lost(CrashResult{CrashPoint: c.CrashPoint, Status: CrashCrashed}), nil
}

// ResolvesAt is the elapsed time at which the round ends on its own: the
// auto cashout target if it will be hit, the crash point otherwise.
func (c *CrashState) ResolvesAt() time.Duration {
	target := c.CrashPoint
	if c.AutoCashout > 0 && c.AutoCashout < c.CrashPoint {
		target = c.AutoCashout
	}
	return CrashElapsed(target)
}

// LiveMultiplier is the displayed multiplier after elapsed, truncated to 2
// decimals.
func LiveMultiplier(elapsed time.Duration) float64 {
	t := elapsed.Seconds()
	mult := 1.0 + (t / growthLinear) + (t * t * growthQuadratic)
	return float64(int(mult*100)) / 100.0
}

// CrashElapsed inverts the live curve: the time at which it reaches m.
func CrashElapsed(m float64) time.Duration {
	if m <= MIN_MULTIPLIER {
		return 0
	}
	b := 1 / growthLinear
	t := (-b + math.Sqrt(b*b+4*growthQuadratic*(m-1))) / (2 * growthQuadratic)
	return time.Duration(t * float64(time.Second))
}
