package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"solanum/metrics"
	"solanum/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

// envelope is a serialized event tagged with its type for subscription filtering
type envelope struct {
	eventType models.WebSocketEventType
	payload   []byte
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed once Run returns
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
}

// Client represents a websocket client connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         string
	subscribed map[models.WebSocketEventType]bool // empty means everything
	mutex      sync.RWMutex
}

// NewHub creates a new WebSocket hub accepting the given origins.
// An empty list accepts any origin.
func NewHub(allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Run starts the hub and returns when ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			metrics.SetWebSocketClients(0)
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.SetWebSocketClients(count)
			log.Printf("Client %s registered, total clients: %d", client.id, count)

			welcome := map[string]interface{}{
				"type": "connection",
				"data": map[string]string{"status": "connected", "clientId": client.id},
			}
			if msg, err := json.Marshal(welcome); err == nil {
				select {
				case client.send <- msg:
				default:
					h.drop(client)
				}
			}

		case client := <-h.unregister:
			h.drop(client)

		case env := <-h.broadcast:
			h.mutex.RLock()
			var slow []*Client
			for client := range h.clients {
				if !client.wants(env.eventType) {
					continue
				}
				select {
				case client.send <- env.payload:
				default:
					slow = append(slow, client)
				}
			}
			h.mutex.RUnlock()
			for _, client := range slow {
				log.Printf("Client %s too slow, disconnecting", client.id)
				h.drop(client)
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.SetWebSocketClients(len(h.clients))
		log.Printf("Client %s unregistered, total clients: %d", client.id, len(h.clients))
	}
}

// Broadcast queues an event for every subscribed client
func (h *Hub) Broadcast(event models.WebSocketEvent) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- envelope{eventType: event.Type, payload: msg}:
	default:
		log.Printf("Broadcast channel full, dropping %s event", event.Type)
	}
	return nil
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		id:         uuid.NewString(),
		subscribed: make(map[models.WebSocketEventType]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start goroutines for this client
	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes messages received from the client
func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("Failed to unmarshal client message: %v", err)
		return
	}

	switch msg.Type {
	case "subscribe", "unsubscribe":
		var data struct {
			Events []models.WebSocketEventType `json:"events"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			log.Printf("Invalid %s payload from client %s: %v", msg.Type, c.id, err)
			return
		}
		if msg.Type == "subscribe" {
			c.subscribe(data.Events)
		} else {
			c.unsubscribe(data.Events)
		}

	case "ping":
		pong := map[string]interface{}{
			"type": "pong",
			"data": map[string]string{"clientId": c.id},
		}
		if pongBytes, err := json.Marshal(pong); err == nil {
			c.trySend(pongBytes)
		}

	default:
		log.Printf("Unknown message type from client %s: %s", c.id, msg.Type)
	}
}

// trySend queues a direct reply unless the hub already closed the channel
func (c *Client) trySend(msg []byte) {
	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Printf("Failed to send reply to client %s", c.id)
	}
}

// subscribe adds event types to client subscription
func (c *Client) subscribe(events []models.WebSocketEventType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, e := range events {
		if e.Valid() {
			c.subscribed[e] = true
		}
	}

	log.Printf("Client %s subscribed to events: %v", c.id, events)
}

// unsubscribe removes event types from client subscription
func (c *Client) unsubscribe(events []models.WebSocketEventType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, e := range events {
		delete(c.subscribed, e)
	}

	log.Printf("Client %s unsubscribed from events: %v", c.id, events)
}

// wants reports whether the client should receive an event type
func (c *Client) wants(eventType models.WebSocketEventType) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.subscribed) == 0 || c.subscribed[eventType]
}
