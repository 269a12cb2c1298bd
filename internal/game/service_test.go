package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairplay/internal/events"
	"fairplay/internal/fairness"
	"fairplay/internal/fault"
	"fairplay/internal/ledger"
	"fairplay/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc    *Service
	ledger *ledger.Ledger
	mem    *store.Memory
	rounds *MemoryRounds
	clock  *clock
	events *events.Recorder
	player store.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := store.NewMemory()
	c := fairness.NewCommitment(mem)
	l := ledger.New(mem, c, ledger.WithStartingBalance(decimal.NewFromInt(1000)))
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	rec := events.NewRecorder(256)
	rounds := NewMemoryRounds()
	svc := NewService(l, c, rounds, NewMutexLocker(), WithPublisher(rec), WithClock(clk.Now))

	u, err := l.Onboard(context.Background(), "player")
	require.NoError(t, err)
	return &harness{svc: svc, ledger: l, mem: mem, rounds: rounds, clock: clk, events: rec, player: u}
}

// seed returns the player's active pair with its secret.
func (h *harness) seed(t *testing.T) store.SeedPair {
	t.Helper()
	pair, err := h.mem.GetServerSeedPair(context.Background(), h.player.ID)
	require.NoError(t, err)
	return pair
}

func (h *harness) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	u, err := h.ledger.Balance(context.Background(), h.player.ID)
	require.NoError(t, err)
	return u.Balance
}

func TestService_PlayDice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pair := h.seed(t)

	rcpt, err := h.svc.PlayDice(ctx, DiceBet{
		PlayerID:   h.player.ID,
		Amount:     decimal.NewFromInt(10),
		ClientSeed: "lucky",
		Target:     50,
		Direction:  DirectionOver,
	})
	require.NoError(t, err)

	want, err := PlayDice(fairness.Draw(pair.ServerSeed, "lucky", 0), decimal.NewFromInt(10), 50, DirectionOver)
	require.NoError(t, err)
	assert.Equal(t, want.Result, rcpt.Outcome.Result)
	assert.True(t, want.Payout.Equal(rcpt.Outcome.Payout))
	assert.Equal(t, pair.ServerSeedHash, rcpt.ServerSeedHash)
	assert.Equal(t, int64(0), rcpt.Nonce)
	assert.True(t, rcpt.Balance.Equal(decimal.NewFromInt(990).Add(want.Payout)))
	assert.Equal(t, int64(1), h.seed(t).Nonce)

	hist, err := h.ledger.History(ctx, h.player.ID, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	decoded, err := DecodeResult(hist[0].Result)
	require.NoError(t, err)
	assert.Equal(t, want.Result, decoded)

	evs := h.events.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, events.DiceResult, evs[0].Type)
	pub, ok := evs[0].Data.(SettledBet)
	require.True(t, ok, "dice result data is %T", evs[0].Data)
	assert.Equal(t, h.player.ID, pub.PlayerID)
	assert.Equal(t, rcpt.Nonce, pub.Nonce)
	raw, err := json.Marshal(evs[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"balance"`)
}

func TestService_PlayDice_ValidationHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	tests := []struct {
		name string
		bet  DiceBet
		want error
	}{
		{name: "missing client seed", bet: DiceBet{Amount: decimal.NewFromInt(1), Target: 50, Direction: DirectionUnder}, want: fault.ErrMissingClientSeed},
		{name: "bad target", bet: DiceBet{Amount: decimal.NewFromInt(1), ClientSeed: "c", Target: 99, Direction: DirectionUnder}, want: fault.ErrInvalidTarget},
		{name: "over balance", bet: DiceBet{Amount: decimal.NewFromInt(1001), ClientSeed: "c", Target: 50, Direction: DirectionUnder}, want: fault.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.bet.PlayerID = h.player.ID
			_, err := h.svc.PlayDice(ctx, tt.bet)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, h.balance(t).Equal(decimal.NewFromInt(1000)))
			assert.Equal(t, int64(0), h.seed(t).Nonce)
		})
	}
}

func TestService_ReplayIsBitIdentical(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pair := h.seed(t)

	var rolls []int
	for i := 0; i < 5; i++ {
		rcpt, err := h.svc.PlayDice(ctx, DiceBet{
			PlayerID: h.player.ID, Amount: decimal.NewFromInt(1), ClientSeed: "replay", Target: 50, Direction: DirectionUnder,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i), rcpt.Nonce)
		rolls = append(rolls, rcpt.Outcome.Result.(DiceResult).Roll)
	}

	rot, err := h.svc.RotateSeed(ctx, h.player.ID)
	require.NoError(t, err)
	require.Equal(t, pair.ServerSeed, rot.RevealedSeed)
	assert.Equal(t, int64(5), rot.FinalNonce)

	for i, roll := range rolls {
		v, err := Verify(VerifyRequest{
			ServerSeed: rot.RevealedSeed, ClientSeed: "replay", Nonce: int64(i), Game: store.GameDice,
			ExpectedHash: rot.RevealedHash,
		})
		require.NoError(t, err)
		assert.True(t, *v.CommitmentValid)
		assert.Equal(t, roll, v.Result.(DiceResult).Roll)
	}
}

func TestService_CrashAutoCashout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pair := crashSeed(t, h, 2)
	point := CrashPoint(fairness.Draw(pair.ServerSeed, "c", 0))

	view, err := h.svc.StartCrash(ctx, CrashBet{PlayerID: h.player.ID, Amount: decimal.NewFromInt(10), ClientSeed: "c", AutoCashout: 1.5})
	require.NoError(t, err)
	assert.Equal(t, CrashPending, view.Status)
	assert.Zero(t, view.CrashPoint, "crash point must stay hidden while pending")

	_, err = h.svc.PlayDice(ctx, DiceBet{PlayerID: h.player.ID, Amount: decimal.NewFromInt(1), ClientSeed: "c", Target: 50, Direction: DirectionOver})
	assert.ErrorIs(t, err, fault.ErrRoundInProgress)
	_, err = h.svc.RotateSeed(ctx, h.player.ID)
	assert.ErrorIs(t, err, fault.ErrRoundInProgress)

	h.clock.Advance(5 * time.Minute)
	view, err = h.svc.CrashRound(ctx, h.player.ID, view.RoundID)
	require.NoError(t, err)
	assert.Equal(t, point, view.CrashPoint)
	assert.Equal(t, CrashCashedOut, view.Status)
	require.NotNil(t, view.Receipt)
	assert.True(t, view.Receipt.Outcome.Payout.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, pair.Nonce+1, h.seed(t).Nonce)

	// the round is over, a new bet goes through
	_, err = h.svc.PlayDice(ctx, DiceBet{PlayerID: h.player.ID, Amount: decimal.NewFromInt(1), ClientSeed: "c", Target: 50, Direction: DirectionOver})
	assert.NoError(t, err)
}

// crashSeed finds a nonce-0 seed whose crash point is at least min, so the
// manual cashout tests have room to run.
func crashSeed(t *testing.T, h *harness, min float64) store.SeedPair {
	t.Helper()
	for i := 0; i < 200; i++ {
		pair := h.seed(t)
		if CrashPoint(fairness.Draw(pair.ServerSeed, "c", 0)) >= min {
			return pair
		}
		_, err := fairness.NewCommitment(h.mem).Rotate(context.Background(), pair)
		require.NoError(t, err)
	}
	t.Fatal("no seed with a high enough crash point")
	return store.SeedPair{}
}

func TestService_CrashManualCashout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	crashSeed(t, h, 2)

	view, err := h.svc.StartCrash(ctx, CrashBet{PlayerID: h.player.ID, Amount: decimal.NewFromInt(10), ClientSeed: "c"})
	require.NoError(t, err)

	_, err = h.svc.CashoutCrash(ctx, h.player.ID, view.RoundID, 0)
	assert.ErrorIs(t, err, fault.ErrInvalidCashout, "cannot cash out at 1.00x")

	h.clock.Advance(CrashElapsed(1.5) + time.Millisecond)
	// asking for more than the live value is capped at the live value
	out, err := h.svc.CashoutCrash(ctx, h.player.ID, view.RoundID, 50)
	require.NoError(t, err)
	assert.Equal(t, CrashCashedOut, out.Status)
	assert.Equal(t, 1.5, out.CashedOutAt)
	assert.True(t, out.Receipt.Outcome.Payout.Equal(decimal.NewFromInt(15)))
	assert.True(t, h.balance(t).Equal(decimal.NewFromInt(1005)))

	_, err = h.svc.CashoutCrash(ctx, h.player.ID, view.RoundID, 0)
	assert.ErrorIs(t, err, fault.ErrGameAlreadyOver)
}

func TestService_CrashCashoutTooLate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pair := h.seed(t)
	point := CrashPoint(fairness.Draw(pair.ServerSeed, "c", 0))

	view, err := h.svc.StartCrash(ctx, CrashBet{PlayerID: h.player.ID, Amount: decimal.NewFromInt(10), ClientSeed: "c"})
	require.NoError(t, err)

	h.clock.Advance(CrashElapsed(point) + time.Second)
	_, err = h.svc.CashoutCrash(ctx, h.player.ID, view.RoundID, 0)
	assert.ErrorIs(t, err, fault.ErrCashoutTooLate)
	assert.True(t, h.balance(t).Equal(decimal.NewFromInt(990)))

	hist, err := h.ledger.History(ctx, h.player.ID, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Outcome.Equal(decimal.NewFromInt(-10)))
}

func TestService_MinesRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pair := h.seed(t)
	mines, err := LayMines(fairness.Draw(pair.ServerSeed, "c", 0), 3)
	require.NoError(t, err)
	safe := safeCells(mines)

	round, err := h.svc.StartMines(ctx, MinesBet{PlayerID: h.player.ID, Amount: decimal.NewFromInt(100), ClientSeed: "c", MineCount: 3})
	require.NoError(t, err)
	assert.Nil(t, round.Board.Mines)
	assert.True(t, h.balance(t).Equal(decimal.NewFromInt(900)))

	_, err = h.svc.CashoutMines(ctx, h.player.ID, round.RoundID)
	assert.ErrorIs(t, err, fault.ErrNothingRevealed)

	for _, pos := range safe[:2] {
		res, err := h.svc.RevealMine(ctx, h.player.ID, round.RoundID, pos)
		require.NoError(t, err)
		assert.False(t, res.Reveal.IsMine)
	}
	_, err = h.svc.RevealMine(ctx, h.player.ID, round.RoundID, safe[0])
	assert.ErrorIs(t, err, fault.ErrAlreadyRevealed)
	assert.Equal(t, int64(0), h.seed(t).Nonce, "nonce moves only on settlement")

	done, err := h.svc.CashoutMines(ctx, h.player.ID, round.RoundID)
	require.NoError(t, err)
	assert.Equal(t, MinesWon, done.Board.Status)
	assert.ElementsMatch(t, mines, done.Board.Mines)
	assert.True(t, done.Receipt.Outcome.Payout.Equal(decimal.RequireFromString("128.57142857")))
	assert.True(t, h.balance(t).Equal(decimal.RequireFromString("1028.57142857")))
	assert.Equal(t, int64(1), h.seed(t).Nonce)

	_, err = h.svc.RevealMine(ctx, h.player.ID, round.RoundID, safe[2])
	assert.ErrorIs(t, err, fault.ErrGameAlreadyOver)
}

func TestService_MinesHit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pair := h.seed(t)
	mines, err := LayMines(fairness.Draw(pair.ServerSeed, "c", 0), 5)
	require.NoError(t, err)

	round, err := h.svc.StartMines(ctx, MinesBet{PlayerID: h.player.ID, Amount: decimal.NewFromInt(50), ClientSeed: "c", MineCount: 5})
	require.NoError(t, err)

	res, err := h.svc.RevealMine(ctx, h.player.ID, round.RoundID, mines[0])
	require.NoError(t, err)
	assert.True(t, res.Reveal.IsMine)
	assert.Equal(t, MinesLost, res.Board.Status)
	require.NotNil(t, res.Receipt)
	assert.True(t, res.Receipt.Profit.Equal(decimal.NewFromInt(-50)))
	assert.True(t, h.balance(t).Equal(decimal.NewFromInt(950)))

	evs := h.events.Drain()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, events.MinesResult, last.Type)
	raw, err := json.Marshal(last)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"balance"`)
}

func TestService_RoundsArePerPlayer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	other, err := h.ledger.Onboard(ctx, "other")
	require.NoError(t, err)

	round, err := h.svc.StartMines(ctx, MinesBet{PlayerID: h.player.ID, Amount: decimal.NewFromInt(1), ClientSeed: "c", MineCount: 1})
	require.NoError(t, err)

	_, err = h.svc.RevealMine(ctx, other.ID, round.RoundID, 0)
	assert.ErrorIs(t, err, fault.ErrRoundNotFound)

	_, err = h.svc.StartMines(ctx, MinesBet{PlayerID: other.ID, Amount: decimal.NewFromInt(1), ClientSeed: "c", MineCount: 1})
	assert.NoError(t, err)
}

func TestService_ConcurrentBetsNeverShareNonce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.PlayDice(ctx, DiceBet{PlayerID: h.player.ID, Amount: decimal.NewFromInt(1), ClientSeed: "c", Target: 50, Direction: DirectionUnder})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	hist, err := h.ledger.History(ctx, h.player.ID, 100)
	require.NoError(t, err)
	require.Len(t, hist, 20)
	seen := make(map[int64]bool)
	for _, rec := range hist {
		assert.False(t, seen[rec.Nonce], "nonce %d used twice", rec.Nonce)
		seen[rec.Nonce] = true
	}
	assert.Equal(t, int64(20), h.seed(t).Nonce)
}

type failingRounds struct{ *MemoryRounds }

func (failingRounds) Save(context.Context, *RoundState) error { return errors.New("redis down") }

func TestService_RoundStoreFailureRefunds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := fairness.NewCommitment(h.mem)
	svc := NewService(h.ledger, c, failingRounds{NewMemoryRounds()}, NewMutexLocker())

	_, err := svc.StartMines(ctx, MinesBet{PlayerID: h.player.ID, Amount: decimal.NewFromInt(10), ClientSeed: "c", MineCount: 3})
	assert.ErrorIs(t, err, fault.ErrPersistence)
	assert.True(t, h.balance(t).Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(1), h.seed(t).Nonce, "the layout was drawn, so its nonce is spent")
}

// historyOutage fails history inserts while down is set.
type historyOutage struct {
	store.Store
	down *bool
}

func (o historyOutage) CreateGameHistory(ctx context.Context, rec store.GameHistoryRecord) (store.GameHistoryRecord, error) {
	if *o.down {
		return store.GameHistoryRecord{}, errors.New("disk full")
	}
	return o.Store.CreateGameHistory(ctx, rec)
}

func (o historyOutage) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return o.Store.WithTx(ctx, func(tx store.Store) error {
		return fn(historyOutage{Store: tx, down: o.down})
	})
}

func TestService_RefundedMinesRoundIsNotReplayed(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	down := false
	s := historyOutage{Store: mem, down: &down}
	c := fairness.NewCommitment(s)
	l := ledger.New(s, c, ledger.WithStartingBalance(decimal.NewFromInt(1000)), ledger.WithCompensationBackoff(time.Millisecond))
	svc := NewService(l, c, NewMemoryRounds(), NewMutexLocker())
	u, err := l.Onboard(ctx, "player")
	require.NoError(t, err)

	pair, err := mem.GetServerSeedPair(ctx, u.ID)
	require.NoError(t, err)
	first, err := LayMines(fairness.Draw(pair.ServerSeed, "x", 0), 3)
	require.NoError(t, err)
	safe := safeCells(first)

	round, err := svc.StartMines(ctx, MinesBet{PlayerID: u.ID, Amount: decimal.NewFromInt(10), ClientSeed: "x", MineCount: 3})
	require.NoError(t, err)
	for _, pos := range safe[:5] {
		_, err := svc.RevealMine(ctx, u.ID, round.RoundID, pos)
		require.NoError(t, err)
	}

	down = true
	_, err = svc.RevealMine(ctx, u.ID, round.RoundID, first[0])
	require.ErrorIs(t, err, fault.ErrPersistence)
	down = false

	bal, err := l.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(decimal.NewFromInt(1000)), "stake refunded")

	next, err := svc.StartMines(ctx, MinesBet{PlayerID: u.ID, Amount: decimal.NewFromInt(10), ClientSeed: "x", MineCount: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), next.Nonce, "the refunded layout must not be dealt again")
}
