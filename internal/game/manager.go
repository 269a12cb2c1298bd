package game

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"fairplay/internal/events"
	"fairplay/internal/fault"
)

const (
	TICK_INTERVAL   = 100 * time.Millisecond
	RESOLVE_TIMEOUT = 2 * time.Second
)

type liveRound struct {
	PlayerID  int64
	RoundID   string
	StartedAt time.Time
	Deadline  time.Duration
}

// Manager drives live crash rounds: it broadcasts the multiplier each tick
// and settles rounds when they reach their auto cashout or crash point.
// Rounds it never saw, for example after a restart, are settled lazily by
// the Service on the player's next request.
type Manager struct {
	svc       *Service
	publisher events.Publisher
	tick      time.Duration
	live      map[string]liveRound
	mu        sync.RWMutex
	watchChan chan RoundState
	stopChan  chan struct{}
	stopOnce  sync.Once
}

func NewManager(svc *Service, publisher events.Publisher, tick time.Duration) *Manager {
	if tick <= 0 {
		tick = TICK_INTERVAL
	}
	m := &Manager{
		svc:       svc,
		publisher: publisher,
		tick:      tick,
		live:      make(map[string]liveRound),
		watchChan: make(chan RoundState, 1000),
		stopChan:  make(chan struct{}),
	}
	svc.SetCrashWatcher(m)
	return m
}

func (m *Manager) Start() {
	go m.gameLoop()
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// Watch implements CrashWatcher.
func (m *Manager) Watch(r RoundState) {
	select {
	case m.watchChan <- r:
	default:
		log.Printf("[CRASH] Watch queue full, round %s will settle lazily", r.RoundID)
	}
}

// LiveRounds is the number of crash rounds currently ticking.
func (m *Manager) LiveRounds() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

func (m *Manager) gameLoop() {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case r := <-m.watchChan:
			m.track(r)
		case <-ticker.C:
			m.step()
		case <-m.stopChan:
			log.Println("[CRASH] Round loop stopped")
			return
		}
	}
}

func (m *Manager) track(r RoundState) {
	if r.Crash == nil {
		return
	}
	m.mu.Lock()
	m.live[RoundKey(r.PlayerID, r.RoundID)] = liveRound{
		PlayerID:  r.PlayerID,
		RoundID:   r.RoundID,
		StartedAt: r.StartedAt,
		Deadline:  r.Crash.ResolvesAt(),
	}
	m.mu.Unlock()
}

// step runs one tick over every live round.
func (m *Manager) step() {
	m.mu.RLock()
	rounds := make([]liveRound, 0, len(m.live))
	for _, lr := range m.live {
		rounds = append(rounds, lr)
	}
	m.mu.RUnlock()

	now := m.svc.now()
	for _, lr := range rounds {
		elapsed := now.Sub(lr.StartedAt)
		if elapsed < lr.Deadline {
			m.publisher.Publish(events.New(events.CrashTick, map[string]any{
				"round_id":   lr.RoundID,
				"player_id":  lr.PlayerID,
				"multiplier": LiveMultiplier(elapsed),
			}))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), RESOLVE_TIMEOUT)
		done, err := m.svc.ResolveCrash(ctx, lr.PlayerID, lr.RoundID)
		cancel()
		if err != nil && !errors.Is(err, fault.ErrRoundNotFound) {
			log.Printf("[CRASH] Resolve round %s failed, retrying next tick: %v", lr.RoundID, err)
			continue
		}
		if done || err != nil {
			m.forget(lr)
		}
	}
}

func (m *Manager) forget(lr liveRound) {
	m.mu.Lock()
	delete(m.live, RoundKey(lr.PlayerID, lr.RoundID))
	m.mu.Unlock()
}
