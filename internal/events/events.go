package events

import (
	"log"
	"time"
)

const (
	PlayerBet     = "player_bet"
	PlayerCashout = "player_cashout"
	CrashTick     = "crash_tick"
	CrashResult   = "crash_result"
	MinesResult   = "mines_result"
	DiceResult    = "dice_result"
	SeedRotated   = "seed_rotated"
)

type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

func New(eventType string, data any) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UnixMilli()}
}

// Publisher delivers events fire-and-forget. Implementations must not block
// the caller on slow consumers.
type Publisher interface {
	Publish(e Event)
}

// Multi fans an event out to every publisher.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard drops every event.
var Discard Publisher = discard{}

// Recorder keeps published events in memory, for tests and debugging.
type Recorder struct {
	ch chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

func (r *Recorder) Publish(e Event) {
	select {
	case r.ch <- e:
	default:
		log.Printf("[EVENTS] Recorder full, dropping %s", e.Type)
	}
}

// Drain returns everything published so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}
