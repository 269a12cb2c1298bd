package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher emits every event to subjectPrefix.<type>.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

func NewNATSPublisher(natsURL, subjectPrefix string) (*NATSPublisher, error) {
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	conn, err := nats.Connect(natsURL,
		nats.Name("fairplay"),
		nats.MaxReconnects(-1), // retry forever
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[NATS] Disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Printf("[NATS] Connected to %s", conn.ConnectedUrl())

	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix}, nil
}

func (p *NATSPublisher) Subject(eventType string) string {
	return p.subjectPrefix + "." + eventType
}

func (p *NATSPublisher) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[NATS] Marshal error for %s: %v", e.Type, err)
		return
	}
	if err := p.conn.Publish(p.Subject(e.Type), data); err != nil {
		log.Printf("[NATS] Publish %s failed: %v", e.Type, err)
	}
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			p.conn.Close()
		}
	}
}
