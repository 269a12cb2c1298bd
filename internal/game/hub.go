package game

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"fairplay/internal/events"
)

type Client struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

// Hub is the live feed for websocket spectators. It implements
// events.Publisher.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan events.Event
	register   chan *Client
	unregister chan *Client
	stopChan   chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan events.Event, 100),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopChan:   make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] Client connected: %s (Total: %d)", client.userID, total)
			client.send(events.New("welcome", map[string]int{"spectators": total}))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
				log.Printf("[WS] Client disconnected: %s (Total: %d)", client.userID, len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			jsonMessage, err := json.Marshal(message)
			if err != nil {
				log.Printf("[WS] Marshal error: %v", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				go client.send(jsonMessage) // Non-blocking send
			}
			h.mu.RUnlock()

		case <-h.stopChan:
			return
		}
	}
}

// Stop ends Run. Registrations after Stop return without blocking.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// Publish implements events.Publisher. Events are dropped when the
// broadcast queue is full.
func (h *Hub) Publish(e events.Event) {
	select {
	case h.broadcast <- e:
	default:
		log.Printf("[WS] Broadcast channel full, dropping %s", e.Type)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) send(message any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	var err error

	switch v := message.(type) {
	case []byte:
		data = v
	default:
		data, err = json.Marshal(v)
		if err != nil {
			log.Printf("[WS] Send marshal error: %v", err)
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[WS] Write error for user %s: %v", c.userID, err)
	}
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) {
	client := &Client{
		conn:   conn,
		userID: userID,
	}
	select {
	case h.register <- client:
	case <-h.stopChan:
	}
}

// Pong answers a client ping under the client's write lock.
func (h *Hub) Pong(conn *websocket.Conn) {
	h.mu.RLock()
	var target *Client
	for client := range h.clients {
		if client.conn == conn {
			target = client
			break
		}
	}
	h.mu.RUnlock()
	if target != nil {
		target.send(map[string]string{"type": "pong"})
	}
}

func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mu.RLock()
	for client := range h.clients {
		if client.conn == conn {
			h.mu.RUnlock()
			select {
			case h.unregister <- client:
			case <-h.stopChan:
			}
			return
		}
	}
	h.mu.RUnlock()
}
