package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"fairplay/internal/fault"
	"fairplay/internal/store"
)

const uniqueViolation = "23505"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the PostgreSQL store.Store. Inside WithTx every call runs on
// the same *sql.Tx.
type Store struct {
	db *sql.DB
	q  querier
	tx bool
}

var _ store.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func isUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const userColumns = `id, username, balance, is_admin, created_at`

func scanUser(row interface{ Scan(...any) error }) (store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Username, &u.Balance, &u.IsAdmin, &u.CreatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, username string, isAdmin bool) (store.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`INSERT INTO users (username, is_admin) VALUES ($1, $2) RETURNING `+userColumns,
		username, isAdmin))
	if isUnique(err) {
		return store.User{}, fmt.Errorf("%q: %w", username, fault.ErrUsernameTaken)
	}
	if err != nil {
		return store.User{}, fault.Persistence("create user", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (store.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("user %d: %w", id, fault.ErrUserNotFound)
	}
	if err != nil {
		return store.User{}, fault.Persistence("get user", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]store.User, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fault.Persistence("list users", err)
	}
	defer rows.Close()

	out := make([]store.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fault.Persistence("scan user", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persistence("list users", err)
	}
	return out, nil
}

// UpdateUserBalance refuses the write in SQL so two instances racing on
// one balance can never drive it below zero.
func (s *Store) UpdateUserBalance(ctx context.Context, id int64, delta decimal.Decimal) (store.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`UPDATE users SET balance = balance + $2
		 WHERE id = $1 AND balance + $2 >= 0
		 RETURNING `+userColumns, id, delta))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetUser(ctx, id); getErr != nil {
			return store.User{}, getErr
		}
		return store.User{}, fmt.Errorf("user %d: %w", id, fault.ErrInsufficientBalance)
	}
	if err != nil {
		return store.User{}, fault.Persistence("update balance", err)
	}
	return u, nil
}

func (s *Store) CreateTransaction(ctx context.Context, rec store.TransactionRecord) (store.TransactionRecord, error) {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO transactions (user_id, type, amount, reference)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		rec.UserID, string(rec.Type), rec.Amount, rec.Reference,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return store.TransactionRecord{}, fault.Persistence("create transaction", err)
	}
	return rec, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID int64, limit int) ([]store.TransactionRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, type, amount, reference, created_at FROM transactions
		 WHERE $1::bigint = 0 OR user_id = $1 ORDER BY id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fault.Persistence("list transactions", err)
	}
	defer rows.Close()

	out := make([]store.TransactionRecord, 0)
	for rows.Next() {
		var rec store.TransactionRecord
		var typ string
		if err := rows.Scan(&rec.ID, &rec.UserID, &typ, &rec.Amount, &rec.Reference, &rec.CreatedAt); err != nil {
			return nil, fault.Persistence("scan transaction", err)
		}
		rec.Type = store.TransactionType(typ)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persistence("list transactions", err)
	}
	return out, nil
}

func (s *Store) CreateGameHistory(ctx context.Context, rec store.GameHistoryRecord) (store.GameHistoryRecord, error) {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO game_history
		   (user_id, game_type, round_id, bet_amount, multiplier, outcome, result, client_seed, server_seed_hash, nonce)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at`,
		rec.UserID, string(rec.GameType), rec.RoundID, rec.BetAmount, rec.Multiplier,
		rec.Outcome, []byte(rec.Result), rec.ClientSeed, rec.ServerSeedHash, rec.Nonce,
	).Scan(&rec.ID, &rec.CreatedAt)
	if isUnique(err) {
		return store.GameHistoryRecord{}, fmt.Errorf("nonce %d already settled: %w", rec.Nonce, fault.ErrNonceMismatch)
	}
	if err != nil {
		return store.GameHistoryRecord{}, fault.Persistence("create game history", err)
	}
	return rec, nil
}

func (s *Store) ListGameHistory(ctx context.Context, userID int64, limit int) ([]store.GameHistoryRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, game_type, round_id, bet_amount, multiplier, outcome, result,
		        client_seed, server_seed_hash, nonce, created_at
		 FROM game_history WHERE $1::bigint = 0 OR user_id = $1 ORDER BY id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fault.Persistence("list game history", err)
	}
	defer rows.Close()

	out := make([]store.GameHistoryRecord, 0)
	for rows.Next() {
		var rec store.GameHistoryRecord
		var game string
		var result []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &game, &rec.RoundID, &rec.BetAmount, &rec.Multiplier,
			&rec.Outcome, &result, &rec.ClientSeed, &rec.ServerSeedHash, &rec.Nonce, &rec.CreatedAt); err != nil {
			return nil, fault.Persistence("scan game history", err)
		}
		rec.GameType = store.GameType(game)
		rec.Result = result
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persistence("list game history", err)
	}
	return out, nil
}

const seedColumns = `id, user_id, server_seed, server_seed_hash, nonce, used, created_at`

func scanSeed(row interface{ Scan(...any) error }) (store.SeedPair, error) {
	var p store.SeedPair
	err := row.Scan(&p.ID, &p.UserID, &p.ServerSeed, &p.ServerSeedHash, &p.Nonce, &p.Used, &p.CreatedAt)
	return p, err
}

func (s *Store) CreateServerSeed(ctx context.Context, pair store.SeedPair) (store.SeedPair, error) {
	p, err := scanSeed(s.q.QueryRowContext(ctx,
		`INSERT INTO server_seeds (user_id, server_seed, server_seed_hash, nonce, used)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+seedColumns,
		pair.UserID, pair.ServerSeed, pair.ServerSeedHash, pair.Nonce, pair.Used))
	if isUnique(err) {
		return store.SeedPair{}, fmt.Errorf("user %d already has an active seed: %w", pair.UserID, fault.ErrSeedReused)
	}
	if err != nil {
		return store.SeedPair{}, fault.Persistence("create server seed", err)
	}
	return p, nil
}

func (s *Store) GetServerSeedPair(ctx context.Context, userID int64) (store.SeedPair, error) {
	p, err := scanSeed(s.q.QueryRowContext(ctx,
		`SELECT `+seedColumns+` FROM server_seeds
		 WHERE user_id = $1 AND NOT used ORDER BY id DESC LIMIT 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return store.SeedPair{}, fmt.Errorf("user %d: %w", userID, fault.ErrNoActiveSeed)
	}
	if err != nil {
		return store.SeedPair{}, fault.Persistence("get server seed", err)
	}
	return p, nil
}

func (s *Store) seed(ctx context.Context, id int64) (store.SeedPair, error) {
	p, err := scanSeed(s.q.QueryRowContext(ctx,
		`SELECT `+seedColumns+` FROM server_seeds WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.SeedPair{}, fmt.Errorf("seed %d: %w", id, fault.ErrNoActiveSeed)
	}
	if err != nil {
		return store.SeedPair{}, fault.Persistence("get server seed", err)
	}
	return p, nil
}

func (s *Store) AdvanceNonce(ctx context.Context, seedID, expected int64) (store.SeedPair, error) {
	p, err := scanSeed(s.q.QueryRowContext(ctx,
		`UPDATE server_seeds SET nonce = nonce + 1
		 WHERE id = $1 AND nonce = $2 AND NOT used RETURNING `+seedColumns, seedID, expected))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.SeedPair{}, fault.Persistence("advance nonce", err)
	}

	cur, err := s.seed(ctx, seedID)
	if err != nil {
		return store.SeedPair{}, err
	}
	if cur.Used {
		return store.SeedPair{}, fmt.Errorf("seed %d: %w", seedID, fault.ErrSeedReused)
	}
	return store.SeedPair{}, fmt.Errorf("seed %d at nonce %d, expected %d: %w", seedID, cur.Nonce, expected, fault.ErrNonceMismatch)
}

func (s *Store) MarkSeedUsed(ctx context.Context, seedID int64) (store.SeedPair, error) {
	p, err := scanSeed(s.q.QueryRowContext(ctx,
		`UPDATE server_seeds SET used = TRUE WHERE id = $1 AND NOT used RETURNING `+seedColumns, seedID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.SeedPair{}, fault.Persistence("mark seed used", err)
	}
	if _, err := s.seed(ctx, seedID); err != nil {
		return store.SeedPair{}, err
	}
	return store.SeedPair{}, fmt.Errorf("seed %d: %w", seedID, fault.ErrSeedReused)
}

// WithTx runs fn in one transaction. Nested calls join the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Persistence("begin", err)
	}
	if err := fn(&Store{db: s.db, q: tx, tx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("[DB] Rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fault.Persistence("commit", err)
	}
	return nil
}
