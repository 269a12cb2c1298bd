package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairplay/internal/fairness"
	"fairplay/internal/game"
	"fairplay/internal/ledger"
	"fairplay/internal/store"
)

type testServer struct {
	srv    *FiberServer
	ledger *ledger.Ledger
	mem    *store.Memory
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	mem := store.NewMemory()
	c := fairness.NewCommitment(mem)
	l := ledger.New(mem, c, ledger.WithStartingBalance(decimal.NewFromInt(1000)))
	svc := game.NewService(l, c, game.NewMemoryRounds(), game.NewMutexLocker())

	srv := New(Deps{Ledger: l, Games: svc, JWTSecret: secret, RateLimit: 1000})
	srv.RegisterFiberRoutes()
	return &testServer{srv: srv, ledger: l, mem: mem}
}

func (ts *testServer) onboard(t *testing.T, name string, admin bool) store.User {
	t.Helper()
	onboard := ts.ledger.Onboard
	if admin {
		onboard = ts.ledger.OnboardAdmin
	}
	u, err := onboard(context.Background(), name)
	require.NoError(t, err)
	return u
}

// do sends a request as userID (0 for anonymous) and decodes the body.
func (ts *testServer) do(t *testing.T, method, path string, userID int64, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	return send(t, ts, req)
}

func send(t *testing.T, ts *testServer, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := ts.srv.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 {
		out["items"] = json.RawMessage(raw)
	}
	return resp.StatusCode, out
}

func TestHealthHandler(t *testing.T) {
	ts := newTestServer(t, "")

	status, body := ts.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "game")
}

func TestCreateUser(t *testing.T) {
	ts := newTestServer(t, "")

	status, body := ts.do(t, http.MethodPost, "/api/v1/users", 0, map[string]any{"username": "alice"})
	require.Equal(t, http.StatusCreated, status)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "1000", user["balance"])
	assert.NotContains(t, body, "token")

	status, body = ts.do(t, http.MethodPost, "/api/v1/users", 0, map[string]any{"username": "ALICE"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "USERNAME_TAKEN", body["error"])

	status, body = ts.do(t, http.MethodPost, "/api/v1/users", 0, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_USERNAME", body["error"])
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, "")

	status, body := ts.do(t, http.MethodGet, "/api/v1/wallet", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["error"])

	status, _ = ts.do(t, http.MethodGet, "/api/v1/wallet", 42, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "unknown users are rejected")
}

func TestJWTAuth(t *testing.T) {
	ts := newTestServer(t, "test-secret")

	status, body := ts.do(t, http.MethodPost, "/api/v1/users", 0, map[string]any{"username": "bob"})
	require.Equal(t, http.StatusCreated, status)
	token, ok := body["token"].(string)
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	status, body = send(t, ts, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "bob", body["username"])

	// header auth is off once a secret is configured
	status, _ = ts.do(t, http.MethodGet, "/api/v1/wallet", 1, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	forged, err := IssueToken([]byte("other-secret"), 1, tokenTTL)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	status, _ = send(t, ts, req)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDiceRoll(t *testing.T) {
	ts := newTestServer(t, "")
	u := ts.onboard(t, "carol", false)

	status, body := ts.do(t, http.MethodPost, "/api/v1/dice/roll", u.ID, map[string]any{
		"amount": "10", "client_seed": "lucky", "target": 50, "direction": "over",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dice", body["game_type"])
	assert.Equal(t, float64(0), body["nonce"])

	outcome := body["outcome"].(map[string]any)
	payout := decimal.RequireFromString(outcome["payout"].(string))
	want := decimal.NewFromInt(990).Add(payout)
	assert.Equal(t, want.String(), body["balance"])

	status, body = ts.do(t, http.MethodGet, "/api/v1/history", u.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var history []store.GameHistoryRecord
	require.NoError(t, json.Unmarshal(body["items"].(json.RawMessage), &history))
	require.Len(t, history, 1)
	assert.Equal(t, store.GameDice, history[0].GameType)
}

func TestDiceRoll_Errors(t *testing.T) {
	ts := newTestServer(t, "")
	u := ts.onboard(t, "dave", false)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"target too low", map[string]any{"amount": "1", "client_seed": "c", "target": 1, "direction": "under"}, 400, "INVALID_TARGET"},
		{"target too high", map[string]any{"amount": "1", "client_seed": "c", "target": 99, "direction": "under"}, 400, "INVALID_TARGET"},
		{"bad direction", map[string]any{"amount": "1", "client_seed": "c", "target": 50, "direction": "sideways"}, 400, "INVALID_DIRECTION"},
		{"no client seed", map[string]any{"amount": "1", "target": 50, "direction": "under"}, 400, "MISSING_CLIENT_SEED"},
		{"zero bet", map[string]any{"amount": "0", "client_seed": "c", "target": 50, "direction": "under"}, 400, "INVALID_BET"},
		{"over balance", map[string]any{"amount": "5000", "client_seed": "c", "target": 50, "direction": "under"}, 402, "INSUFFICIENT_BALANCE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodPost, "/api/v1/dice/roll", u.ID, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["error"])
		})
	}

	_, body := ts.do(t, http.MethodGet, "/api/v1/wallet", u.ID, nil)
	assert.Equal(t, "1000", body["balance"], "rejected bets do not touch the balance")
}

func TestMinesFlow(t *testing.T) {
	ts := newTestServer(t, "")
	u := ts.onboard(t, "erin", false)

	status, body := ts.do(t, http.MethodPost, "/api/v1/mines/bet", u.ID, map[string]any{
		"amount": "10", "client_seed": "c", "mine_count": 3,
	})
	require.Equal(t, http.StatusCreated, status)
	roundID := body["round_id"].(string)
	board := body["board"].(map[string]any)
	assert.Equal(t, "ACTIVE", board["status"])
	assert.NotContains(t, board, "mines", "mine positions stay hidden while active")

	status, body = ts.do(t, http.MethodPost, "/api/v1/mines/bet", u.ID, map[string]any{
		"amount": "10", "client_seed": "c", "mine_count": 3,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ROUND_IN_PROGRESS", body["error"])

	status, body = ts.do(t, http.MethodPost, "/api/v1/mines/reveal", u.ID, map[string]any{"round_id": roundID, "position": 25})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "POSITION_OUT_OF_RANGE", body["error"])

	status, body = ts.do(t, http.MethodPost, "/api/v1/mines/cashout", u.ID, map[string]any{"round_id": roundID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "NOTHING_REVEALED", body["error"])

	status, body = ts.do(t, http.MethodPost, "/api/v1/fair/rotate", u.ID, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ROUND_IN_PROGRESS", body["error"])

	status, _ = ts.do(t, http.MethodGet, "/api/v1/mines/"+roundID, u.ID, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = ts.do(t, http.MethodGet, "/api/v1/mines/nope", u.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ROUND_NOT_FOUND", body["error"])
}

func TestCrashBet(t *testing.T) {
	ts := newTestServer(t, "")
	u := ts.onboard(t, "frank", false)

	status, body := ts.do(t, http.MethodPost, "/api/v1/crash/bet", u.ID, map[string]any{
		"amount": "10", "client_seed": "c", "auto_cashout": 1.0,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_CASHOUT", body["error"])

	status, body = ts.do(t, http.MethodPost, "/api/v1/crash/bet", u.ID, map[string]any{
		"amount": "10", "client_seed": "c",
	})
	require.Equal(t, http.StatusCreated, status)
	roundID := body["round_id"].(string)

	status, body = ts.do(t, http.MethodGet, "/api/v1/crash/"+roundID, u.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, roundID, body["round_id"])

	status, _ = ts.do(t, http.MethodGet, "/api/v1/crash/"+roundID, ts.onboard(t, "gina", false).ID, nil)
	assert.Equal(t, http.StatusNotFound, status, "rounds are scoped to their player")
}

func TestSeedRotateAndVerify(t *testing.T) {
	ts := newTestServer(t, "")
	u := ts.onboard(t, "hank", false)

	status, seed := ts.do(t, http.MethodGet, "/api/v1/fair/seed", u.ID, nil)
	require.Equal(t, http.StatusOK, status)
	hash := seed["server_seed_hash"].(string)

	status, roll := ts.do(t, http.MethodPost, "/api/v1/dice/roll", u.ID, map[string]any{
		"amount": "1", "client_seed": "mine", "target": 50, "direction": "under",
	})
	require.Equal(t, http.StatusOK, status)

	status, rot := ts.do(t, http.MethodPost, "/api/v1/fair/rotate", u.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, hash, rot["previous_hash"])
	assert.Equal(t, float64(1), rot["previous_nonce"])
	assert.NotEqual(t, hash, rot["new_hash"])

	status, v := ts.do(t, http.MethodPost, "/api/v1/fair/verify", 0, map[string]any{
		"server_seed":   rot["previous_seed"],
		"client_seed":   "mine",
		"nonce":         0,
		"game_type":     "dice",
		"target":        50,
		"direction":     "under",
		"expected_hash": hash,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, v["commitment_valid"])
	played := roll["outcome"].(map[string]any)["result"].(map[string]any)
	assert.Equal(t, played["roll"], v["result"].(map[string]any)["roll"])
}

func TestVerify_KnownVector(t *testing.T) {
	ts := newTestServer(t, "")

	status, v := ts.do(t, http.MethodPost, "/api/v1/fair/verify", 0, map[string]any{
		"server_seed": strings.Repeat("a", 64),
		"client_seed": "test",
		"nonce":       0,
		"game_type":   "crash",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3.75, v["result"].(map[string]any)["crash_point"])

	status, v = ts.do(t, http.MethodPost, "/api/v1/fair/verify", 0, map[string]any{
		"server_seed": "s", "client_seed": "c", "nonce": 0, "game_type": "plinko",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_GAME_TYPE", v["error"])

	status, v = ts.do(t, http.MethodPost, "/api/v1/fair/verify", 0, map[string]any{
		"client_seed": "c", "nonce": 0, "game_type": "dice",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MISSING_SERVER_SEED", v["error"])
}

func TestAdmin(t *testing.T) {
	ts := newTestServer(t, "")
	admin := ts.onboard(t, "root", true)
	player := ts.onboard(t, "ivy", false)

	status, body := ts.do(t, http.MethodGet, "/api/v1/admin/users", player.ID, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["error"])

	status, body = ts.do(t, http.MethodGet, "/api/v1/admin/users", admin.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var users []store.User
	require.NoError(t, json.Unmarshal(body["items"].(json.RawMessage), &users))
	assert.Len(t, users, 2)

	status, body = ts.do(t, http.MethodPost, "/api/v1/admin/balance", admin.ID, map[string]any{"user_id": player.ID, "balance": "250.5"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "250.5", body["balance"])

	status, body = ts.do(t, http.MethodPost, "/api/v1/admin/balance", admin.ID, map[string]any{"user_id": player.ID, "balance": "-1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_AMOUNT", body["error"])

	status, body = ts.do(t, http.MethodGet, "/api/v1/admin/transactions?user_id="+strconv.FormatInt(player.ID, 10), admin.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var txns []store.TransactionRecord
	require.NoError(t, json.Unmarshal(body["items"].(json.RawMessage), &txns))
	require.Len(t, txns, 2)
	assert.Equal(t, store.TxAdminAdjustment, txns[0].Type)
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("-749.5")))
}
