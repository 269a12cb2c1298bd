package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fairplay/internal/fault"
)

// Memory is an arena-backed Store. Record ids are 1-based slice positions.
// WithTx works on a copy of the arena and swaps it in on success, so it is
// meant for tests and single-node development, not large datasets.
type Memory struct {
	mu    sync.Mutex
	state *arena
}

func NewMemory() *Memory {
	return &Memory{state: &arena{now: time.Now}}
}

type arena struct {
	users   []User
	txns    []TransactionRecord
	history []GameHistoryRecord
	seeds   []SeedPair
	now     func() time.Time
}

func (a *arena) clone() *arena {
	return &arena{
		users:   append([]User(nil), a.users...),
		txns:    append([]TransactionRecord(nil), a.txns...),
		history: append([]GameHistoryRecord(nil), a.history...),
		seeds:   append([]SeedPair(nil), a.seeds...),
		now:     a.now,
	}
}

func (a *arena) createUser(username string, isAdmin bool) (User, error) {
	for _, u := range a.users {
		if strings.EqualFold(u.Username, username) {
			return User{}, fmt.Errorf("%q: %w", username, fault.ErrUsernameTaken)
		}
	}
	u := User{
		ID:        int64(len(a.users) + 1),
		Username:  username,
		Balance:   decimal.Zero,
		IsAdmin:   isAdmin,
		CreatedAt: a.now(),
	}
	a.users = append(a.users, u)
	return u, nil
}

func (a *arena) user(id int64) (*User, error) {
	if id < 1 || id > int64(len(a.users)) {
		return nil, fmt.Errorf("user %d: %w", id, fault.ErrUserNotFound)
	}
	return &a.users[id-1], nil
}

func (a *arena) updateBalance(id int64, delta decimal.Decimal) (User, error) {
	u, err := a.user(id)
	if err != nil {
		return User{}, err
	}
	next := u.Balance.Add(delta)
	if next.IsNegative() {
		return User{}, fmt.Errorf("user %d: %w", id, fault.ErrInsufficientBalance)
	}
	u.Balance = next
	return *u, nil
}

func (a *arena) createTransaction(rec TransactionRecord) (TransactionRecord, error) {
	if _, err := a.user(rec.UserID); err != nil {
		return TransactionRecord{}, err
	}
	rec.ID = int64(len(a.txns) + 1)
	rec.CreatedAt = a.now()
	a.txns = append(a.txns, rec)
	return rec, nil
}

func (a *arena) listTransactions(userID int64, limit int) []TransactionRecord {
	out := make([]TransactionRecord, 0)
	for i := len(a.txns) - 1; i >= 0 && len(out) < limit; i-- {
		if userID == 0 || a.txns[i].UserID == userID {
			out = append(out, a.txns[i])
		}
	}
	return out
}

func (a *arena) createHistory(rec GameHistoryRecord) (GameHistoryRecord, error) {
	if _, err := a.user(rec.UserID); err != nil {
		return GameHistoryRecord{}, err
	}
	rec.ID = int64(len(a.history) + 1)
	rec.CreatedAt = a.now()
	a.history = append(a.history, rec)
	return rec, nil
}

func (a *arena) listHistory(userID int64, limit int) []GameHistoryRecord {
	out := make([]GameHistoryRecord, 0)
	for i := len(a.history) - 1; i >= 0 && len(out) < limit; i-- {
		if userID == 0 || a.history[i].UserID == userID {
			out = append(out, a.history[i])
		}
	}
	return out
}

func (a *arena) createSeed(pair SeedPair) (SeedPair, error) {
	if _, err := a.user(pair.UserID); err != nil {
		return SeedPair{}, err
	}
	pair.ID = int64(len(a.seeds) + 1)
	pair.CreatedAt = a.now()
	a.seeds = append(a.seeds, pair)
	return pair, nil
}

func (a *arena) activeSeed(userID int64) (SeedPair, error) {
	for i := len(a.seeds) - 1; i >= 0; i-- {
		if a.seeds[i].UserID == userID && !a.seeds[i].Used {
			return a.seeds[i], nil
		}
	}
	return SeedPair{}, fmt.Errorf("user %d: %w", userID, fault.ErrNoActiveSeed)
}

func (a *arena) seed(id int64) (*SeedPair, error) {
	if id < 1 || id > int64(len(a.seeds)) {
		return nil, fmt.Errorf("seed %d: %w", id, fault.ErrNoActiveSeed)
	}
	return &a.seeds[id-1], nil
}

func (a *arena) advanceNonce(id, expected int64) (SeedPair, error) {
	p, err := a.seed(id)
	if err != nil {
		return SeedPair{}, err
	}
	if p.Used {
		return SeedPair{}, fmt.Errorf("seed %d: %w", id, fault.ErrSeedReused)
	}
	if p.Nonce != expected {
		return SeedPair{}, fmt.Errorf("seed %d at nonce %d, expected %d: %w", id, p.Nonce, expected, fault.ErrNonceMismatch)
	}
	p.Nonce++
	return *p, nil
}

func (a *arena) markUsed(id int64) (SeedPair, error) {
	p, err := a.seed(id)
	if err != nil {
		return SeedPair{}, err
	}
	if p.Used {
		return SeedPair{}, fmt.Errorf("seed %d: %w", id, fault.ErrSeedReused)
	}
	p.Used = true
	return *p, nil
}

func (m *Memory) CreateUser(_ context.Context, username string, isAdmin bool) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createUser(username, isAdmin)
}

func (m *Memory) GetUser(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.state.user(id)
	if err != nil {
		return User{}, err
	}
	return *u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]User(nil), m.state.users...), nil
}

func (m *Memory) UpdateUserBalance(_ context.Context, id int64, delta decimal.Decimal) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.updateBalance(id, delta)
}

func (m *Memory) CreateTransaction(_ context.Context, rec TransactionRecord) (TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createTransaction(rec)
}

func (m *Memory) ListTransactions(_ context.Context, userID int64, limit int) ([]TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listTransactions(userID, limit), nil
}

func (m *Memory) CreateGameHistory(_ context.Context, rec GameHistoryRecord) (GameHistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createHistory(rec)
}

func (m *Memory) ListGameHistory(_ context.Context, userID int64, limit int) ([]GameHistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listHistory(userID, limit), nil
}

func (m *Memory) CreateServerSeed(_ context.Context, pair SeedPair) (SeedPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createSeed(pair)
}

func (m *Memory) GetServerSeedPair(_ context.Context, userID int64) (SeedPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.activeSeed(userID)
}

func (m *Memory) AdvanceNonce(_ context.Context, seedID, expected int64) (SeedPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.advanceNonce(seedID, expected)
}

func (m *Memory) MarkSeedUsed(_ context.Context, seedID int64) (SeedPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.markUsed(seedID)
}

func (m *Memory) WithTx(_ context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memTx{a: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// memTx is the Store handed to WithTx callbacks. The parent lock is already
// held, so it touches the working arena directly.
type memTx struct {
	a *arena
}

func (t *memTx) CreateUser(_ context.Context, username string, isAdmin bool) (User, error) {
	return t.a.createUser(username, isAdmin)
}

func (t *memTx) GetUser(_ context.Context, id int64) (User, error) {
	u, err := t.a.user(id)
	if err != nil {
		return User{}, err
	}
	return *u, nil
}

func (t *memTx) ListUsers(_ context.Context) ([]User, error) {
	return append([]User(nil), t.a.users...), nil
}

func (t *memTx) UpdateUserBalance(_ context.Context, id int64, delta decimal.Decimal) (User, error) {
	return t.a.updateBalance(id, delta)
}

func (t *memTx) CreateTransaction(_ context.Context, rec TransactionRecord) (TransactionRecord, error) {
	return t.a.createTransaction(rec)
}

func (t *memTx) ListTransactions(_ context.Context, userID int64, limit int) ([]TransactionRecord, error) {
	return t.a.listTransactions(userID, limit), nil
}

func (t *memTx) CreateGameHistory(_ context.Context, rec GameHistoryRecord) (GameHistoryRecord, error) {
	return t.a.createHistory(rec)
}

func (t *memTx) ListGameHistory(_ context.Context, userID int64, limit int) ([]GameHistoryRecord, error) {
	return t.a.listHistory(userID, limit), nil
}

func (t *memTx) CreateServerSeed(_ context.Context, pair SeedPair) (SeedPair, error) {
	return t.a.createSeed(pair)
}

func (t *memTx) GetServerSeedPair(_ context.Context, userID int64) (SeedPair, error) {
	return t.a.activeSeed(userID)
}

func (t *memTx) AdvanceNonce(_ context.Context, seedID, expected int64) (SeedPair, error) {
	return t.a.advanceNonce(seedID, expected)
}

func (t *memTx) MarkSeedUsed(_ context.Context, seedID int64) (SeedPair, error) {
	return t.a.markUsed(seedID)
}

func (t *memTx) WithTx(_ context.Context, fn func(Store) error) error {
	return fn(t)
}
