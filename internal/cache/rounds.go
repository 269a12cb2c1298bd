package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fairplay/internal/fault"
	"fairplay/internal/game"
)

// finishScript stores a terminal round with its TTL and clears the
// player's open pointer if it still names this round.
var finishScript = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
if redis.call("GET", KEYS[2]) == ARGV[3] then
	redis.call("DEL", KEYS[2])
end
return 1
`)

// Rounds is a game.RoundStore in Redis, using the same keys and encoding
// as game.MemoryRounds.
type Rounds struct {
	client *redis.Client
}

var _ game.RoundStore = (*Rounds)(nil)

func NewRounds(client *redis.Client) *Rounds {
	return &Rounds{client: client}
}

func (r *Rounds) Save(ctx context.Context, round *game.RoundState) error {
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("encode round %s: %w", round.RoundID, err)
	}
	key := game.RoundKey(round.PlayerID, round.RoundID)
	openKey := game.OpenRoundKey(round.PlayerID)

	if round.Terminal() {
		ttl := game.FinishedRoundTTL.Milliseconds()
		if err := finishScript.Run(ctx, r.client, []string{key, openKey}, data, ttl, round.RoundID).Err(); err != nil {
			return fmt.Errorf("save round %s: %w", round.RoundID, err)
		}
		return nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.Set(ctx, openKey, round.RoundID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save round %s: %w", round.RoundID, err)
	}
	return nil
}

func (r *Rounds) Get(ctx context.Context, playerID int64, roundID string) (*game.RoundState, error) {
	data, err := r.client.Get(ctx, game.RoundKey(playerID, roundID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("round %s: %w", roundID, fault.ErrRoundNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load round %s: %w", roundID, err)
	}
	var round game.RoundState
	if err := json.Unmarshal(data, &round); err != nil {
		return nil, fmt.Errorf("decode round %s: %w", roundID, err)
	}
	return &round, nil
}

func (r *Rounds) Open(ctx context.Context, playerID int64) (*game.RoundState, error) {
	id, err := r.client.Get(ctx, game.OpenRoundKey(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load open round: %w", err)
	}
	round, err := r.Get(ctx, playerID, id)
	if errors.Is(err, fault.ErrRoundNotFound) {
		return nil, nil
	}
	return round, err
}
