package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fairplay/internal/fairness"
	"fairplay/internal/fault"
	"fairplay/internal/store"
)

const (
	compensationAttempts = 3
	compensationBackoff  = 50 * time.Millisecond
)

// Ledger owns every balance mutation. Callers serialize per player; the
// ledger makes each multi-record step land as one store transaction.
type Ledger struct {
	store           store.Store
	commitment      *fairness.Commitment
	startingBalance decimal.Decimal
	backoff         time.Duration
}

type Option func(*Ledger)

// WithStartingBalance credits new players with amount on Onboard.
func WithStartingBalance(amount decimal.Decimal) Option {
	return func(l *Ledger) { l.startingBalance = amount }
}

// WithCompensationBackoff sets the base delay between refund attempts.
func WithCompensationBackoff(d time.Duration) Option {
	return func(l *Ledger) { l.backoff = d }
}

func New(s store.Store, c *fairness.Commitment, opts ...Option) *Ledger {
	l := &Ledger{
		store:           s,
		commitment:      c,
		startingBalance: decimal.Zero,
		backoff:         compensationBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Settlement is everything needed to close a bet.
type Settlement struct {
	PlayerID   int64
	Game       store.GameType
	RoundID    string
	BetAmount  decimal.Decimal
	Won        bool
	Multiplier float64
	Payout     decimal.Decimal
	Result     json.RawMessage
	ClientSeed string
	Seed       store.SeedPair
}

// Receipt is the state after a successful Settle.
type Receipt struct {
	Balance decimal.Decimal         `json:"balance"`
	History store.GameHistoryRecord `json:"history"`
	Seed    store.SeedPair          `json:"-"`
}

// Onboard creates a player with the configured starting balance and
// commits their first server seed.
func (l *Ledger) Onboard(ctx context.Context, username string) (store.User, error) {
	return l.onboard(ctx, username, false)
}

// OnboardAdmin is Onboard for an operator account.
func (l *Ledger) OnboardAdmin(ctx context.Context, username string) (store.User, error) {
	return l.onboard(ctx, username, true)
}

func (l *Ledger) onboard(ctx context.Context, username string, isAdmin bool) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return store.User{}, fault.ErrInvalidUsername
	}
	var user store.User
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		u, err := tx.CreateUser(ctx, username, isAdmin)
		if err != nil {
			return fault.Persistence("create user", err)
		}
		if l.startingBalance.IsPositive() {
			if u, err = tx.UpdateUserBalance(ctx, u.ID, l.startingBalance); err != nil {
				return fault.Persistence("credit starting balance", err)
			}
			if _, err := tx.CreateTransaction(ctx, store.TransactionRecord{
				UserID: u.ID,
				Type:   store.TxDeposit,
				Amount: l.startingBalance,
			}); err != nil {
				return fault.Persistence("record deposit", err)
			}
		}
		if _, err := l.commitment.With(tx).Create(ctx, u.ID); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return store.User{}, err
	}
	log.Printf("[LEDGER] Onboarded user %d (%s) with %s", user.ID, user.Username, user.Balance)
	return user, nil
}

// PlaceBet debits betAmount before the outcome is known.
func (l *Ledger) PlaceBet(ctx context.Context, playerID int64, betAmount decimal.Decimal, reference string) (store.User, error) {
	if !betAmount.IsPositive() {
		return store.User{}, fmt.Errorf("bet %s: %w", betAmount, fault.ErrInvalidBet)
	}
	var user store.User
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		u, err := tx.GetUser(ctx, playerID)
		if err != nil {
			return fault.Persistence("get user", err)
		}
		if u.Balance.LessThan(betAmount) {
			return fmt.Errorf("have %s, need %s: %w", u.Balance, betAmount, fault.ErrInsufficientBalance)
		}
		if u, err = tx.UpdateUserBalance(ctx, playerID, betAmount.Neg()); err != nil {
			return fault.Persistence("debit bet", err)
		}
		if _, err := tx.CreateTransaction(ctx, store.TransactionRecord{
			UserID:    playerID,
			Type:      store.TxBet,
			Amount:    betAmount.Neg(),
			Reference: reference,
		}); err != nil {
			return fault.Persistence("record bet", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return store.User{}, err
	}
	return user, nil
}

// Settle credits the payout, appends the history record and advances the
// nonce as one unit. If the unit fails the bet is refunded, unless the nonce
// had already moved: that means this round was settled before.
func (l *Ledger) Settle(ctx context.Context, s Settlement) (Receipt, error) {
	var rcpt Receipt
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		var (
			user store.User
			err  error
		)
		if s.Won && s.Payout.IsPositive() {
			if user, err = tx.UpdateUserBalance(ctx, s.PlayerID, s.Payout); err != nil {
				return fault.Persistence("credit payout", err)
			}
			if _, err := tx.CreateTransaction(ctx, store.TransactionRecord{
				UserID:    s.PlayerID,
				Type:      store.TxWin,
				Amount:    s.Payout,
				Reference: s.RoundID,
			}); err != nil {
				return fault.Persistence("record win", err)
			}
		} else {
			if user, err = tx.GetUser(ctx, s.PlayerID); err != nil {
				return fault.Persistence("get user", err)
			}
			if _, err := tx.CreateTransaction(ctx, store.TransactionRecord{
				UserID:    s.PlayerID,
				Type:      store.TxLoss,
				Amount:    decimal.Zero,
				Reference: s.RoundID,
			}); err != nil {
				return fault.Persistence("record loss", err)
			}
		}

		rec, err := tx.CreateGameHistory(ctx, store.GameHistoryRecord{
			UserID:         s.PlayerID,
			GameType:       s.Game,
			RoundID:        s.RoundID,
			BetAmount:      s.BetAmount,
			Multiplier:     s.Multiplier,
			Outcome:        s.Payout.Sub(s.BetAmount),
			Result:         s.Result,
			ClientSeed:     s.ClientSeed,
			ServerSeedHash: s.Seed.ServerSeedHash,
			Nonce:          s.Seed.Nonce,
		})
		if err != nil {
			return fault.Persistence("record game history", err)
		}

		next, err := l.commitment.With(tx).Advance(ctx, s.Seed)
		if err != nil {
			return err
		}
		rcpt = Receipt{Balance: user.Balance, History: rec, Seed: next}
		return nil
	})
	if err == nil {
		log.Printf("[LEDGER] Settled %s round %s for user %d: bet %s payout %s",
			s.Game, s.RoundID, s.PlayerID, s.BetAmount, s.Payout)
		return rcpt, nil
	}

	if errors.Is(err, fault.ErrNonceMismatch) {
		log.Printf("[LEDGER] Round %s for user %d already consumed nonce %d, not refunding", s.RoundID, s.PlayerID, s.Seed.Nonce)
		return Receipt{}, err
	}
	if cerr := l.Compensate(ctx, s.PlayerID, s.BetAmount, s.RoundID, s.Seed, err); cerr != nil {
		return Receipt{}, errors.Join(err, cerr)
	}
	return Receipt{}, err
}

// Compensate refunds amount after a failed settlement, retrying with
// backoff. The refund burns seed.Nonce in the same unit: the draw was
// already computed, so no later bet may reuse it. Cancellation of ctx is
// ignored.
func (l *Ledger) Compensate(ctx context.Context, playerID int64, amount decimal.Decimal, reference string, seed store.SeedPair, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		err = l.store.WithTx(ctx, func(tx store.Store) error {
			if err := burnNonce(ctx, tx, seed); err != nil {
				return err
			}
			if _, err := tx.UpdateUserBalance(ctx, playerID, amount); err != nil {
				return err
			}
			_, err := tx.CreateTransaction(ctx, store.TransactionRecord{
				UserID:    playerID,
				Type:      store.TxRefund,
				Amount:    amount,
				Reference: reference,
			})
			return err
		})
		if err == nil {
			log.Printf("[LEDGER] RECONCILE refunded %s to user %d for %s: %v", amount, playerID, reference, cause)
			return nil
		}
		if attempt < compensationAttempts {
			time.Sleep(l.backoff * time.Duration(1<<(attempt-1)))
		}
	}
	log.Printf("[LEDGER] RECONCILIATION REQUIRED user=%d amount=%s ref=%s cause=%v refund_error=%v",
		playerID, amount, reference, cause, err)
	return fault.Persistence("refund bet", err)
}

// burnNonce advances seed past the refunded draw. A nonce that already
// moved or a retired seed leaves nothing to burn.
func burnNonce(ctx context.Context, tx store.Store, seed store.SeedPair) error {
	if seed.ID == 0 {
		return nil
	}
	_, err := tx.AdvanceNonce(ctx, seed.ID, seed.Nonce)
	if errors.Is(err, fault.ErrNonceMismatch) || errors.Is(err, fault.ErrSeedReused) {
		return nil
	}
	return err
}

// Adjust sets a player's balance to target, recording the difference as an
// admin_adjustment transaction.
func (l *Ledger) Adjust(ctx context.Context, playerID int64, target decimal.Decimal) (store.User, error) {
	if target.IsNegative() {
		return store.User{}, fmt.Errorf("balance %s: %w", target, fault.ErrInvalidAmount)
	}
	var user store.User
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		u, err := tx.GetUser(ctx, playerID)
		if err != nil {
			return fault.Persistence("get user", err)
		}
		delta := target.Sub(u.Balance)
		if delta.IsZero() {
			user = u
			return nil
		}
		if u, err = tx.UpdateUserBalance(ctx, playerID, delta); err != nil {
			return fault.Persistence("adjust balance", err)
		}
		if _, err := tx.CreateTransaction(ctx, store.TransactionRecord{
			UserID: playerID,
			Type:   store.TxAdminAdjustment,
			Amount: delta,
		}); err != nil {
			return fault.Persistence("record adjustment", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return store.User{}, err
	}
	log.Printf("[LEDGER] Admin set balance of user %d to %s", playerID, user.Balance)
	return user, nil
}

func (l *Ledger) Balance(ctx context.Context, playerID int64) (store.User, error) {
	u, err := l.store.GetUser(ctx, playerID)
	if err != nil {
		return store.User{}, fault.Persistence("get user", err)
	}
	return u, nil
}

func (l *Ledger) Users(ctx context.Context) ([]store.User, error) {
	users, err := l.store.ListUsers(ctx)
	if err != nil {
		return nil, fault.Persistence("list users", err)
	}
	return users, nil
}

// History lists a player's settled bets, newest first. playerID 0 lists
// every player.
func (l *Ledger) History(ctx context.Context, playerID int64, limit int) ([]store.GameHistoryRecord, error) {
	recs, err := l.store.ListGameHistory(ctx, playerID, normalizeLimit(playerID, limit))
	if err != nil {
		return nil, fault.Persistence("list game history", err)
	}
	return recs, nil
}

// Transactions lists ledger lines, newest first. playerID 0 lists every
// player.
func (l *Ledger) Transactions(ctx context.Context, playerID int64, limit int) ([]store.TransactionRecord, error) {
	recs, err := l.store.ListTransactions(ctx, playerID, normalizeLimit(playerID, limit))
	if err != nil {
		return nil, fault.Persistence("list transactions", err)
	}
	return recs, nil
}

func normalizeLimit(playerID int64, limit int) int {
	if limit > 0 {
		return limit
	}
	if playerID == 0 {
		return store.DefaultAdminLimit
	}
	return store.DefaultHistoryLimit
}
