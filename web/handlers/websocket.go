package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
)

// Event is a server-pushed notification broadcast to connected clients.
// Type values in use: "chat.message", "note.imported", "memory.deleted".
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// wsOrigins lists the origins allowed to open an event stream. The
// assistant UI is served from the same port the API listens on.
var wsOrigins = []string{"localhost:6380", "127.0.0.1:6380"}

// subscriber is one receiver of hub events. Real connections and test
// doubles both satisfy it.
type subscriber interface {
	outbox() chan []byte
	shutdown()
}

// WebSocketHub fans Events out to every connected client. Register,
// Unregister and Broadcast are safe from any goroutine; the Run loop owns
// the bookkeeping.
type WebSocketHub struct {
	clients    map[subscriber]bool
	broadcast  chan Event
	register   chan subscriber
	unregister chan subscriber
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWebSocketHub creates a hub. Call Run in its own goroutine before
// broadcasting.
func NewWebSocketHub() *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		clients:    make(map[subscriber]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan subscriber),
		unregister: make(chan subscriber),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *WebSocketHub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.clients[sub] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("event stream: client connected (total: %d)", count)

		case sub := <-h.unregister:
			h.mu.Lock()
			if h.clients[sub] {
				delete(h.clients, sub)
				close(sub.outbox())
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("event stream: client disconnected (total: %d)", count)

		case event := <-h.broadcast:
			h.fanOut(event)

		case <-h.ctx.Done():
			log.Println("event stream: hub stopping")
			return
		}
	}
}

// fanOut delivers one event to every client. A client whose outbox is full
// is evicted rather than allowed to stall the loop.
func (h *WebSocketHub) fanOut(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ERROR: event stream: marshal %s event: %v", event.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.clients {
		select {
		case sub.outbox() <- payload:
		default:
			close(sub.outbox())
			delete(h.clients, sub)
		}
	}
}

// Stop shuts the hub down and disconnects every client.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.clients {
		close(sub.outbox())
		sub.shutdown()
	}
	h.clients = make(map[subscriber]bool)
}

// Broadcast queues an event for delivery. Events are dropped, not queued
// unboundedly, when the hub cannot keep up.
func (h *WebSocketHub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("WARNING: event stream: broadcast queue full, dropping %s event", event.Type)
	}
}

// Register adds a subscriber to the hub.
func (h *WebSocketHub) Register(sub subscriber) {
	h.register <- sub
}

// Unregister removes a subscriber from the hub.
func (h *WebSocketHub) Unregister(sub subscriber) {
	h.unregister <- sub
}

// ServeHTTP upgrades the request to a WebSocket connection and attaches it
// to the hub.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !originAllowed(origin) {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: wsOrigins,
	})
	if err != nil {
		log.Printf("ERROR: event stream: upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}
	h.Register(client)

	go client.writePump()
	go client.readPump()
}

func originAllowed(origin string) bool {
	for _, host := range wsOrigins {
		if origin == "http://"+host {
			return true
		}
	}
	return false
}

// Client is a live WebSocket connection managed by the hub.
type Client struct {
	hub  *WebSocketHub
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
}

func (c *Client) outbox() chan []byte {
	return c.send
}

func (c *Client) shutdown() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}
}

// writePump drains the outbox onto the wire until the channel closes or a
// write fails.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		c.shutdown()
	}()

	for payload := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, payload) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()
		if err != nil {
			log.Printf("ERROR: event stream: write failed: %v", err)
			return
		}
	}
}

// readPump discards inbound frames. Reading is how we notice the peer went
// away; clients have nothing to say to the server yet.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.shutdown()
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}

// MockClient stands in for a connection in hub tests.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) outbox() chan []byte {
	return m.SendChan
}

func (m *MockClient) shutdown() {}
