package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fairplay/internal/events"
	"fairplay/internal/fairness"
	"fairplay/internal/fault"
	"fairplay/internal/ledger"
	"fairplay/internal/store"
)

// CrashWatcher is told about every crash round that goes live.
type CrashWatcher interface {
	Watch(r RoundState)
}

// Service runs bets end to end: lock the player, check funds, draw from
// the active seed, settle through the ledger.
type Service struct {
	ledger     *ledger.Ledger
	commitment *fairness.Commitment
	rounds     RoundStore
	locker     Locker
	publisher  events.Publisher
	watcher    CrashWatcher
	now        func() time.Time
}

type ServiceOption func(*Service)

func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(l *ledger.Ledger, c *fairness.Commitment, rounds RoundStore, locker Locker, opts ...ServiceOption) *Service {
	s := &Service{
		ledger:     l,
		commitment: c,
		rounds:     rounds,
		locker:     locker,
		publisher:  events.Discard,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCrashWatcher registers the live crash round tracker.
func (s *Service) SetCrashWatcher(w CrashWatcher) {
	s.watcher = w
}

// BetReceipt closes every settled bet.
type BetReceipt struct {
	RoundID        string          `json:"round_id"`
	Game           store.GameType  `json:"game_type"`
	BetAmount      decimal.Decimal `json:"bet_amount"`
	Outcome        Outcome         `json:"outcome"`
	Profit         decimal.Decimal `json:"profit"`
	Balance        decimal.Decimal `json:"balance"`
	ClientSeed     string          `json:"client_seed"`
	ServerSeedHash string          `json:"server_seed_hash"`
	Nonce          int64           `json:"nonce"`
}

// SettledBet is the public announcement of a settled bet. It carries what
// a spectator needs to verify the round, never the player's balance.
type SettledBet struct {
	RoundID        string          `json:"round_id"`
	PlayerID       int64           `json:"player_id"`
	Game           store.GameType  `json:"game_type"`
	BetAmount      decimal.Decimal `json:"bet_amount"`
	Outcome        Outcome         `json:"outcome"`
	Profit         decimal.Decimal `json:"profit"`
	ClientSeed     string          `json:"client_seed"`
	ServerSeedHash string          `json:"server_seed_hash"`
	Nonce          int64           `json:"nonce"`
}

func settledBet(playerID int64, rcpt *BetReceipt) SettledBet {
	return SettledBet{
		RoundID:        rcpt.RoundID,
		PlayerID:       playerID,
		Game:           rcpt.Game,
		BetAmount:      rcpt.BetAmount,
		Outcome:        rcpt.Outcome,
		Profit:         rcpt.Profit,
		ClientSeed:     rcpt.ClientSeed,
		ServerSeedHash: rcpt.ServerSeedHash,
		Nonce:          rcpt.Nonce,
	}
}

type DiceBet struct {
	PlayerID   int64
	Amount     decimal.Decimal
	ClientSeed string
	Target     int
	Direction  Direction
}

type CrashBet struct {
	PlayerID    int64
	Amount      decimal.Decimal
	ClientSeed  string
	AutoCashout float64
}

type MinesBet struct {
	PlayerID   int64
	Amount     decimal.Decimal
	ClientSeed string
	MineCount  int
}

// CrashView is what the player sees of a crash round. CrashPoint is only
// set once the round is over.
type CrashView struct {
	RoundID        string          `json:"round_id"`
	Status         CrashStatus     `json:"status"`
	BetAmount      decimal.Decimal `json:"bet_amount"`
	Multiplier     float64         `json:"multiplier"`
	AutoCashout    float64         `json:"auto_cashout,omitempty"`
	CrashPoint     float64         `json:"crash_point,omitempty"`
	CashedOutAt    float64         `json:"cashed_out_at,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	ServerSeedHash string          `json:"server_seed_hash"`
	Nonce          int64           `json:"nonce"`
	Receipt        *BetReceipt     `json:"receipt,omitempty"`
}

type MinesRound struct {
	RoundID        string          `json:"round_id"`
	BetAmount      decimal.Decimal `json:"bet_amount"`
	Board          MinesView       `json:"board"`
	Reveal         *RevealResult   `json:"reveal,omitempty"`
	ServerSeedHash string          `json:"server_seed_hash"`
	Nonce          int64           `json:"nonce"`
	Receipt        *BetReceipt     `json:"receipt,omitempty"`
}

type SeedView struct {
	ServerSeedHash string `json:"server_seed_hash"`
	Nonce          int64  `json:"nonce"`
}

func (s *Service) lock(ctx context.Context, playerID int64) (func(), error) {
	unlock, err := s.locker.Lock(ctx, PlayerKey(playerID))
	if err != nil {
		return nil, fault.Persistence("lock player", err)
	}
	return unlock, nil
}

func validateBet(amount decimal.Decimal, clientSeed string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("bet %s: %w", amount, fault.ErrInvalidBet)
	}
	if strings.TrimSpace(clientSeed) == "" {
		return fault.ErrMissingClientSeed
	}
	return nil
}

// ensureIdle fails with ErrRoundInProgress while the player has a live
// round. A crash round past its deadline is settled here first.
func (s *Service) ensureIdle(ctx context.Context, playerID int64) error {
	open, err := s.rounds.Open(ctx, playerID)
	if err != nil {
		return fault.Persistence("load open round", err)
	}
	if open == nil || open.Terminal() {
		return nil
	}
	if open.Crash != nil {
		resolved, err := s.resolveIfDue(ctx, open)
		if err != nil {
			return err
		}
		if resolved {
			return nil
		}
	}
	return fmt.Errorf("%s round %s: %w", open.Game, open.RoundID, fault.ErrRoundInProgress)
}

// begin debits the bet against the player's active seed. The returned seed
// is the snapshot the draw must use.
func (s *Service) begin(ctx context.Context, playerID int64, amount decimal.Decimal, roundID string) (store.SeedPair, error) {
	if err := s.ensureIdle(ctx, playerID); err != nil {
		return store.SeedPair{}, err
	}
	seed, err := s.commitment.Current(ctx, playerID)
	if err != nil {
		return store.SeedPair{}, err
	}
	if _, err := s.ledger.PlaceBet(ctx, playerID, amount, roundID); err != nil {
		return store.SeedPair{}, err
	}
	return seed, nil
}

func (s *Service) settle(ctx context.Context, r *RoundState, out Outcome) (*BetReceipt, error) {
	raw, err := EncodeResult(out.Result)
	if err != nil {
		cerr := s.ledger.Compensate(ctx, r.PlayerID, r.BetAmount, r.RoundID, r.Seed, err)
		return nil, errors.Join(fault.Persistence("encode result", err), cerr)
	}
	rcpt, err := s.ledger.Settle(ctx, ledger.Settlement{
		PlayerID:   r.PlayerID,
		Game:       r.Game,
		RoundID:    r.RoundID,
		BetAmount:  r.BetAmount,
		Won:        out.Won,
		Multiplier: out.Multiplier,
		Payout:     out.Payout,
		Result:     raw,
		ClientSeed: r.ClientSeed,
		Seed:       r.Seed,
	})
	if err != nil {
		return nil, err
	}
	return &BetReceipt{
		RoundID:        r.RoundID,
		Game:           r.Game,
		BetAmount:      r.BetAmount,
		Outcome:        out,
		Profit:         out.Profit(r.BetAmount),
		Balance:        rcpt.Balance,
		ClientSeed:     r.ClientSeed,
		ServerSeedHash: r.Seed.ServerSeedHash,
		Nonce:          r.Seed.Nonce,
	}, nil
}

// finish settles a terminal multi-step round and stores its final state. A
// failed settlement voids the round so the player is not stuck with it.
func (s *Service) finish(ctx context.Context, r *RoundState, out Outcome) (*BetReceipt, error) {
	rcpt, err := s.settle(ctx, r, out)
	if err != nil {
		r.Voided = true
		if serr := s.rounds.Save(ctx, r); serr != nil {
			log.Printf("[%s] Failed to void round %s: %v", strings.ToUpper(string(r.Game)), r.RoundID, serr)
		}
		return nil, err
	}
	if err := s.rounds.Save(ctx, r); err != nil {
		log.Printf("[%s] Round %s settled but final state not stored: %v", strings.ToUpper(string(r.Game)), r.RoundID, err)
	}
	return rcpt, nil
}

// PlayDice settles a dice bet in a single call.
func (s *Service) PlayDice(ctx context.Context, bet DiceBet) (*BetReceipt, error) {
	if err := validateBet(bet.Amount, bet.ClientSeed); err != nil {
		return nil, err
	}
	if err := validateDice(bet.Amount, bet.Target, bet.Direction); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, bet.PlayerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r := &RoundState{
		RoundID:    uuid.New().String(),
		PlayerID:   bet.PlayerID,
		Game:       store.GameDice,
		BetAmount:  bet.Amount,
		ClientSeed: bet.ClientSeed,
		StartedAt:  s.now(),
	}
	if r.Seed, err = s.begin(ctx, bet.PlayerID, bet.Amount, r.RoundID); err != nil {
		return nil, err
	}

	draw := fairness.Draw(r.Seed.ServerSeed, r.ClientSeed, r.Seed.Nonce)
	out, err := PlayDice(draw, bet.Amount, bet.Target, bet.Direction)
	if err != nil {
		cerr := s.ledger.Compensate(ctx, bet.PlayerID, bet.Amount, r.RoundID, r.Seed, err)
		return nil, errors.Join(err, cerr)
	}
	rcpt, err := s.settle(ctx, r, out)
	if err != nil {
		return nil, err
	}

	log.Printf("[DICE] User %d rolled %d (%s %d): won=%v payout=%s",
		bet.PlayerID, out.Result.(DiceResult).Roll, bet.Direction, bet.Target, out.Won, out.Payout)
	s.publisher.Publish(events.New(events.DiceResult, settledBet(bet.PlayerID, rcpt)))
	return rcpt, nil
}

// StartCrash opens a crash round. The crash point is fixed by the draw but
// stays hidden until the round ends.
func (s *Service) StartCrash(ctx context.Context, bet CrashBet) (*CrashView, error) {
	if err := validateBet(bet.Amount, bet.ClientSeed); err != nil {
		return nil, err
	}
	if bet.AutoCashout != 0 && bet.AutoCashout <= MIN_MULTIPLIER {
		return nil, fmt.Errorf("auto cashout %.2f: %w", bet.AutoCashout, fault.ErrInvalidCashout)
	}
	unlock, err := s.lock(ctx, bet.PlayerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r := &RoundState{
		RoundID:    uuid.New().String(),
		PlayerID:   bet.PlayerID,
		Game:       store.GameCrash,
		BetAmount:  bet.Amount,
		ClientSeed: bet.ClientSeed,
	}
	if r.Seed, err = s.begin(ctx, bet.PlayerID, bet.Amount, r.RoundID); err != nil {
		return nil, err
	}
	draw := fairness.Draw(r.Seed.ServerSeed, r.ClientSeed, r.Seed.Nonce)
	r.Crash = &CrashState{
		CrashPoint:  CrashPoint(draw),
		AutoCashout: bet.AutoCashout,
		Status:      CrashPending,
	}
	r.StartedAt = s.now()

	if err := s.rounds.Save(ctx, r); err != nil {
		cerr := s.ledger.Compensate(ctx, bet.PlayerID, bet.Amount, r.RoundID, r.Seed, err)
		return nil, errors.Join(fault.Persistence("store crash round", err), cerr)
	}
	if s.watcher != nil {
		s.watcher.Watch(*r)
	}

	log.Printf("[CRASH] User %d started round %s with %s (auto %.2fx)", bet.PlayerID, r.RoundID, bet.Amount, bet.AutoCashout)
	s.publisher.Publish(events.New(events.PlayerBet, map[string]any{
		"round_id":  r.RoundID,
		"player_id": bet.PlayerID,
		"game_type": store.GameCrash,
		"amount":    bet.Amount,
	}))
	return s.crashView(r, nil), nil
}

// CashoutCrash cashes out at the live multiplier, or at requested when the
// client asks for less than the live value.
func (s *Service) CashoutCrash(ctx context.Context, playerID int64, roundID string, requested float64) (*CrashView, error) {
	unlock, err := s.lock(ctx, playerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.crashRound(ctx, playerID, roundID)
	if err != nil {
		return nil, err
	}
	if r.Terminal() {
		return nil, fault.ErrGameAlreadyOver
	}

	elapsed := s.now().Sub(r.StartedAt)
	if elapsed >= r.Crash.ResolvesAt() {
		rcpt, err := s.resolve(ctx, r)
		if err != nil {
			return nil, err
		}
		if rcpt.Outcome.Won {
			return nil, fmt.Errorf("auto cashout at %.2fx: %w", r.Crash.CashedOutAt, fault.ErrGameAlreadyOver)
		}
		return nil, fmt.Errorf("crashed at %.2fx: %w", r.Crash.CrashPoint, fault.ErrCashoutTooLate)
	}

	at := LiveMultiplier(elapsed)
	if requested > 0 && requested < at {
		at = requested
	}
	out, err := SettleManualCashout(r.BetAmount, at, r.Crash.CrashPoint)
	if err != nil {
		return nil, err
	}
	r.Crash.Finish(out)
	rcpt, err := s.finish(ctx, r, out)
	if err != nil {
		return nil, err
	}

	log.Printf("[CRASH] User %d cashed out round %s at %.2fx (crash %.2fx)", playerID, roundID, at, r.Crash.CrashPoint)
	s.publisher.Publish(events.New(events.PlayerCashout, map[string]any{
		"round_id":   roundID,
		"player_id":  playerID,
		"multiplier": at,
		"payout":     out.Payout,
	}))
	return s.crashView(r, rcpt), nil
}

// CrashRound reports a crash round, settling it first if its deadline
// has passed.
func (s *Service) CrashRound(ctx context.Context, playerID int64, roundID string) (*CrashView, error) {
	unlock, err := s.lock(ctx, playerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.crashRound(ctx, playerID, roundID)
	if err != nil {
		return nil, err
	}
	if r.Terminal() {
		return s.crashView(r, nil), nil
	}
	if s.now().Sub(r.StartedAt) >= r.Crash.ResolvesAt() {
		rcpt, err := s.resolve(ctx, r)
		if err != nil {
			return nil, err
		}
		return s.crashView(r, rcpt), nil
	}
	return s.crashView(r, nil), nil
}

// ResolveCrash settles a round whose deadline has passed. It is a no-op for
// rounds that are already over or still running.
func (s *Service) ResolveCrash(ctx context.Context, playerID int64, roundID string) (bool, error) {
	unlock, err := s.lock(ctx, playerID)
	if err != nil {
		return false, err
	}
	defer unlock()

	r, err := s.crashRound(ctx, playerID, roundID)
	if err != nil {
		return false, err
	}
	if r.Terminal() {
		return true, nil
	}
	return s.resolveIfDue(ctx, r)
}

func (s *Service) crashRound(ctx context.Context, playerID int64, roundID string) (*RoundState, error) {
	r, err := s.rounds.Get(ctx, playerID, roundID)
	if err != nil {
		if errors.Is(err, fault.ErrRoundNotFound) {
			return nil, err
		}
		return nil, fault.Persistence("load round", err)
	}
	if r.Crash == nil {
		return nil, fmt.Errorf("round %s is %s: %w", roundID, r.Game, fault.ErrRoundNotFound)
	}
	return r, nil
}

func (s *Service) resolveIfDue(ctx context.Context, r *RoundState) (bool, error) {
	if s.now().Sub(r.StartedAt) < r.Crash.ResolvesAt() {
		return false, nil
	}
	if _, err := s.resolve(ctx, r); err != nil {
		return false, err
	}
	return true, nil
}

// resolve ends a due crash round: auto cashout win or crash.
func (s *Service) resolve(ctx context.Context, r *RoundState) (*BetReceipt, error) {
	out, err := r.Crash.Crash(r.BetAmount)
	if err != nil {
		return nil, err
	}
	r.Crash.Finish(out)
	rcpt, err := s.finish(ctx, r, out)
	if err != nil {
		return nil, err
	}

	log.Printf("[CRASH] Round %s for user %d crashed at %.2fx: won=%v", r.RoundID, r.PlayerID, r.Crash.CrashPoint, out.Won)
	if out.Won {
		s.publisher.Publish(events.New(events.PlayerCashout, map[string]any{
			"round_id":   r.RoundID,
			"player_id":  r.PlayerID,
			"multiplier": out.Multiplier,
			"payout":     out.Payout,
			"auto":       true,
		}))
	}
	s.publisher.Publish(events.New(events.CrashResult, map[string]any{
		"round_id":         r.RoundID,
		"player_id":        r.PlayerID,
		"crash_point":      r.Crash.CrashPoint,
		"server_seed_hash": r.Seed.ServerSeedHash,
		"nonce":            r.Seed.Nonce,
	}))
	return rcpt, nil
}

func (s *Service) crashView(r *RoundState, rcpt *BetReceipt) *CrashView {
	v := &CrashView{
		RoundID:        r.RoundID,
		Status:         r.Crash.Status,
		BetAmount:      r.BetAmount,
		AutoCashout:    r.Crash.AutoCashout,
		CashedOutAt:    r.Crash.CashedOutAt,
		StartedAt:      r.StartedAt,
		ServerSeedHash: r.Seed.ServerSeedHash,
		Nonce:          r.Seed.Nonce,
		Receipt:        rcpt,
	}
	if r.Terminal() {
		v.CrashPoint = r.Crash.CrashPoint
		v.Multiplier = r.Crash.CashedOutAt
		if r.Crash.Status == CrashCrashed {
			v.Multiplier = r.Crash.CrashPoint
		}
		return v
	}
	v.Multiplier = LiveMultiplier(s.now().Sub(r.StartedAt))
	return v
}

// StartMines lays a fresh board for the player.
func (s *Service) StartMines(ctx context.Context, bet MinesBet) (*MinesRound, error) {
	if err := validateBet(bet.Amount, bet.ClientSeed); err != nil {
		return nil, err
	}
	if bet.MineCount < MINES_MIN_COUNT || bet.MineCount > MINES_MAX_COUNT {
		return nil, fmt.Errorf("mine count %d: %w", bet.MineCount, fault.ErrInvalidMineCount)
	}
	unlock, err := s.lock(ctx, bet.PlayerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r := &RoundState{
		RoundID:    uuid.New().String(),
		PlayerID:   bet.PlayerID,
		Game:       store.GameMines,
		BetAmount:  bet.Amount,
		ClientSeed: bet.ClientSeed,
		StartedAt:  s.now(),
	}
	if r.Seed, err = s.begin(ctx, bet.PlayerID, bet.Amount, r.RoundID); err != nil {
		return nil, err
	}
	draw := fairness.Draw(r.Seed.ServerSeed, r.ClientSeed, r.Seed.Nonce)
	if r.Mines, err = NewMinesState(draw, bet.Amount, bet.MineCount); err != nil {
		cerr := s.ledger.Compensate(ctx, bet.PlayerID, bet.Amount, r.RoundID, r.Seed, err)
		return nil, errors.Join(err, cerr)
	}
	if err := s.rounds.Save(ctx, r); err != nil {
		cerr := s.ledger.Compensate(ctx, bet.PlayerID, bet.Amount, r.RoundID, r.Seed, err)
		return nil, errors.Join(fault.Persistence("store mines round", err), cerr)
	}

	log.Printf("[MINES] User %d started round %s with %d mines, bet %s", bet.PlayerID, r.RoundID, bet.MineCount, bet.Amount)
	s.publisher.Publish(events.New(events.PlayerBet, map[string]any{
		"round_id":  r.RoundID,
		"player_id": bet.PlayerID,
		"game_type": store.GameMines,
		"amount":    bet.Amount,
	}))
	return minesRound(r, nil, nil), nil
}

// RevealMine opens one cell. A mine or the last safe cell settles the round.
func (s *Service) RevealMine(ctx context.Context, playerID int64, roundID string, position int) (*MinesRound, error) {
	unlock, err := s.lock(ctx, playerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.minesRound(ctx, playerID, roundID)
	if err != nil {
		return nil, err
	}
	if r.Voided {
		return nil, fault.ErrGameAlreadyOver
	}
	res, err := r.Mines.Reveal(position)
	if err != nil {
		return nil, err
	}
	if !res.Terminal {
		if err := s.rounds.Save(ctx, r); err != nil {
			return nil, fault.Persistence("store mines round", err)
		}
		return minesRound(r, &res, nil), nil
	}

	rcpt, err := s.finish(ctx, r, r.Mines.Outcome())
	if err != nil {
		return nil, err
	}
	s.minesSettled(r, rcpt)
	return minesRound(r, &res, rcpt), nil
}

// CashoutMines takes the current multiplier.
func (s *Service) CashoutMines(ctx context.Context, playerID int64, roundID string) (*MinesRound, error) {
	unlock, err := s.lock(ctx, playerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.minesRound(ctx, playerID, roundID)
	if err != nil {
		return nil, err
	}
	if r.Voided {
		return nil, fault.ErrGameAlreadyOver
	}
	out, err := r.Mines.Cashout()
	if err != nil {
		return nil, err
	}
	rcpt, err := s.finish(ctx, r, out)
	if err != nil {
		return nil, err
	}
	s.minesSettled(r, rcpt)
	return minesRound(r, nil, rcpt), nil
}

// MinesRound reports a mines round without changing it.
func (s *Service) MinesRound(ctx context.Context, playerID int64, roundID string) (*MinesRound, error) {
	r, err := s.minesRound(ctx, playerID, roundID)
	if err != nil {
		return nil, err
	}
	return minesRound(r, nil, nil), nil
}

func (s *Service) minesRound(ctx context.Context, playerID int64, roundID string) (*RoundState, error) {
	r, err := s.rounds.Get(ctx, playerID, roundID)
	if err != nil {
		if errors.Is(err, fault.ErrRoundNotFound) {
			return nil, err
		}
		return nil, fault.Persistence("load round", err)
	}
	if r.Mines == nil {
		return nil, fmt.Errorf("round %s is %s: %w", roundID, r.Game, fault.ErrRoundNotFound)
	}
	return r, nil
}

func (s *Service) minesSettled(r *RoundState, rcpt *BetReceipt) {
	log.Printf("[MINES] Round %s for user %d ended %s with %d reveals: payout %s",
		r.RoundID, r.PlayerID, r.Mines.Status, len(r.Mines.Revealed), rcpt.Outcome.Payout)
	s.publisher.Publish(events.New(events.MinesResult, settledBet(r.PlayerID, rcpt)))
}

func minesRound(r *RoundState, res *RevealResult, rcpt *BetReceipt) *MinesRound {
	return &MinesRound{
		RoundID:        r.RoundID,
		BetAmount:      r.BetAmount,
		Board:          r.Mines.Public(),
		Reveal:         res,
		ServerSeedHash: r.Seed.ServerSeedHash,
		Nonce:          r.Seed.Nonce,
		Receipt:        rcpt,
	}
}

// SeedInfo returns the player's published commitment and next nonce.
func (s *Service) SeedInfo(ctx context.Context, playerID int64) (SeedView, error) {
	seed, err := s.commitment.Current(ctx, playerID)
	if err != nil {
		return SeedView{}, err
	}
	return SeedView{ServerSeedHash: seed.ServerSeedHash, Nonce: seed.Nonce}, nil
}

// RotateSeed reveals the active seed and commits a new one. Refused while a
// round is open since the revealed seed would expose its outcome.
func (s *Service) RotateSeed(ctx context.Context, playerID int64) (fairness.Rotation, error) {
	unlock, err := s.lock(ctx, playerID)
	if err != nil {
		return fairness.Rotation{}, err
	}
	defer unlock()

	if err := s.ensureIdle(ctx, playerID); err != nil {
		return fairness.Rotation{}, err
	}
	seed, err := s.commitment.Current(ctx, playerID)
	if err != nil {
		return fairness.Rotation{}, err
	}
	rot, err := s.commitment.Rotate(ctx, seed)
	if err != nil {
		return fairness.Rotation{}, err
	}
	s.publisher.Publish(events.New(events.SeedRotated, map[string]any{
		"player_id":     playerID,
		"previous_hash": rot.RevealedHash,
		"new_hash":      rot.NewHash,
	}))
	return rot, nil
}
