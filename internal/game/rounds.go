package game

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"fairplay/internal/fault"
)

// FinishedRoundTTL is how long terminal rounds stay readable.
const FinishedRoundTTL = time.Hour

// RoundStore keeps multi-step rounds between requests. Get returns
// fault.ErrRoundNotFound for unknown rounds; Open returns nil when the
// player has no live round.
type RoundStore interface {
	Save(ctx context.Context, r *RoundState) error
	Get(ctx context.Context, playerID int64, roundID string) (*RoundState, error)
	Open(ctx context.Context, playerID int64) (*RoundState, error)
}

func RoundKey(playerID int64, roundID string) string {
	return "round:" + strconv.FormatInt(playerID, 10) + ":" + roundID
}

func OpenRoundKey(playerID int64) string {
	return "round:open:" + strconv.FormatInt(playerID, 10)
}

// MemoryRounds is a RoundStore on go-cache. Rounds are stored encoded so
// callers never share state with the cache.
type MemoryRounds struct {
	c *cache.Cache
}

func NewMemoryRounds() *MemoryRounds {
	return &MemoryRounds{c: cache.New(cache.NoExpiration, 10*time.Minute)}
}

func (m *MemoryRounds) Save(_ context.Context, r *RoundState) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode round %s: %w", r.RoundID, err)
	}
	key := RoundKey(r.PlayerID, r.RoundID)
	openKey := OpenRoundKey(r.PlayerID)
	if r.Terminal() {
		m.c.Set(key, data, FinishedRoundTTL)
		if open, ok := m.c.Get(openKey); ok && open.(string) == r.RoundID {
			m.c.Delete(openKey)
		}
		return nil
	}
	m.c.Set(key, data, cache.NoExpiration)
	m.c.Set(openKey, r.RoundID, cache.NoExpiration)
	return nil
}

func (m *MemoryRounds) Get(_ context.Context, playerID int64, roundID string) (*RoundState, error) {
	v, ok := m.c.Get(RoundKey(playerID, roundID))
	if !ok {
		return nil, fmt.Errorf("round %s: %w", roundID, fault.ErrRoundNotFound)
	}
	var r RoundState
	if err := json.Unmarshal(v.([]byte), &r); err != nil {
		return nil, fmt.Errorf("decode round %s: %w", roundID, err)
	}
	return &r, nil
}

func (m *MemoryRounds) Open(ctx context.Context, playerID int64) (*RoundState, error) {
	v, ok := m.c.Get(OpenRoundKey(playerID))
	if !ok {
		return nil, nil
	}
	return m.Get(ctx, playerID, v.(string))
}
