package fairness

import (
	"context"
	"errors"
	"fmt"
	"log"

	"fairplay/internal/fault"
	"fairplay/internal/store"
)

// Rotation is what a player receives when retiring a seed: the secret and
// its hash to check, plus the commitment for the next pair.
type Rotation struct {
	RevealedSeed string `json:"previous_seed"`
	RevealedHash string `json:"previous_hash"`
	FinalNonce   int64  `json:"previous_nonce"`
	NewHash      string `json:"new_hash"`
}

// Commitment manages each player's active server seed.
type Commitment struct {
	store store.Store
}

func NewCommitment(s store.Store) *Commitment {
	return &Commitment{store: s}
}

// With returns a Commitment bound to s, typically a transaction store.
func (c *Commitment) With(s store.Store) *Commitment {
	return &Commitment{store: s}
}

// Create generates a fresh pair and persists it as the player's active pair.
func (c *Commitment) Create(ctx context.Context, playerID int64) (store.SeedPair, error) {
	seed := GenerateSeed()
	pair, err := c.store.CreateServerSeed(ctx, store.SeedPair{
		UserID:         playerID,
		ServerSeed:     seed,
		ServerSeedHash: HashCommitment(seed),
	})
	if err != nil {
		return store.SeedPair{}, fault.Persistence("create server seed", err)
	}
	log.Printf("[FAIR] New commitment for user %d: %s...", playerID, pair.ServerSeedHash[:16])
	return pair, nil
}

// Current returns the active pair, creating one when the player has none.
func (c *Commitment) Current(ctx context.Context, playerID int64) (store.SeedPair, error) {
	pair, err := c.store.GetServerSeedPair(ctx, playerID)
	if errors.Is(err, fault.ErrNoActiveSeed) {
		return c.Create(ctx, playerID)
	}
	if err != nil {
		return store.SeedPair{}, fault.Persistence("get server seed", err)
	}
	if !CheckCommitment(pair.ServerSeed, pair.ServerSeedHash) {
		return store.SeedPair{}, fmt.Errorf("seed %d: %w", pair.ID, fault.ErrSeedCorrupt)
	}
	return pair, nil
}

// Advance moves the pair's nonce forward by one. It fails with
// ErrNonceMismatch if another bet already consumed pair.Nonce.
func (c *Commitment) Advance(ctx context.Context, pair store.SeedPair) (store.SeedPair, error) {
	next, err := c.store.AdvanceNonce(ctx, pair.ID, pair.Nonce)
	if err != nil {
		return store.SeedPair{}, fault.Persistence("advance nonce", err)
	}
	return next, nil
}

// Rotate retires pair, reveals its seed and activates a new pair for the
// same player in one unit.
func (c *Commitment) Rotate(ctx context.Context, pair store.SeedPair) (Rotation, error) {
	var rot Rotation
	err := c.store.WithTx(ctx, func(tx store.Store) error {
		used, err := tx.MarkSeedUsed(ctx, pair.ID)
		if err != nil {
			return fault.Persistence("retire server seed", err)
		}
		next, err := c.With(tx).Create(ctx, used.UserID)
		if err != nil {
			return err
		}
		rot = Rotation{
			RevealedSeed: used.ServerSeed,
			RevealedHash: used.ServerSeedHash,
			FinalNonce:   used.Nonce,
			NewHash:      next.ServerSeedHash,
		}
		return nil
	})
	if err != nil {
		return Rotation{}, err
	}
	log.Printf("[FAIR] Rotated seed %d for user %d after %d bets", pair.ID, pair.UserID, rot.FinalNonce)
	return rot, nil
}
