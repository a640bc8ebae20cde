// Package hub is the live push channel of SPEC_FULL.md's AMBIENT STACK
// websocket entry: resolution events and live-info deltas fanned out to
// subscribed clients per table/bet. Grounded on the teacher's
// internal/game/hub.go Hub/Client channel design (register/unregister/
// broadcast goroutine, non-blocking per-client send), generalized from a
// single global broadcast topic to one topic per table/bet subscription.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
)

// Event is one message pushed to subscribers of a topic.
type Event struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  any    `json:"data,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	topics map[string]bool
	mu     sync.Mutex
}

type subscribeMsg struct {
	topic  string
	client *client
}

// Hub fans out Events to clients subscribed to matching topics, §"live-info
// / resolution push channel". Topics are "bet:<betId>" or "table:<tableId>".
type Hub struct {
	logger zerolog.Logger

	clients     map[*client]bool
	subscribers map[string]map[*client]bool

	register   chan *client
	unregister chan *client
	subscribe  chan subscribeMsg
	broadcast  chan Event

	mu sync.RWMutex
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		clients:     make(map[*client]bool),
		subscribers: make(map[string]map[*client]bool),
		register:    make(chan *client),
		unregister:  make(chan *client),
		subscribe:   make(chan subscribeMsg),
		broadcast:   make(chan Event, 256),
	}
}

// Run drives the hub's event loop. It has no stop signal and never
// returns.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				for topic := range c.topics {
					delete(h.subscribers[topic], c)
				}
				c.conn.Close()
			}
			h.mu.Unlock()

		case sub := <-h.subscribe:
			h.mu.Lock()
			sub.client.topics[sub.topic] = true
			if h.subscribers[sub.topic] == nil {
				h.subscribers[sub.topic] = make(map[*client]bool)
			}
			h.subscribers[sub.topic][sub.client] = true
			h.mu.Unlock()

		case ev := <-h.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error().Err(err).Msg("hub: marshal event failed")
				continue
			}
			h.mu.RLock()
			for c := range h.subscribers[ev.Topic] {
				go c.send(payload)
			}
			h.mu.RUnlock()
		}
	}
}

// Publish enqueues an event for delivery, dropping it if the broadcast
// buffer is full rather than blocking the caller (resolver/proposal flows
// must never stall on a slow websocket fan-out).
func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn().Str("topic", ev.Topic).Msg("hub: broadcast buffer full, dropping event")
	}
}

func (c *client) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

// Serve handles one websocket connection: registers the client, reads
// {"type":"subscribe","topic":"..."} control messages, and cleans up on
// disconnect. Blocks until the connection closes.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := &client{conn: conn, topics: make(map[string]bool)}
	h.register <- c
	defer func() { h.unregister <- c }()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type  string `json:"type"`
			Topic string `json:"topic"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "subscribe" && msg.Topic != "" {
			h.subscribe <- subscribeMsg{topic: msg.Topic, client: c}
		}
	}
}

// BetTopic and TableTopic build the topic names clients subscribe to.
func BetTopic(betID string) string   { return "bet:" + betID }
func TableTopic(tableID string) string { return "table:" + tableID }
