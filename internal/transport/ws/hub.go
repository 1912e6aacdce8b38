package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgTimerUpdate  MessageType = "timer_update"
	MsgTimerExpired MessageType = "timer_expired"
	MsgSaveStatus   MessageType = "save_status"
	MsgSubmitted    MessageType = "submitted"
	MsgError        MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages WebSocket connections, one per live attempt. A second
// connection for the same attempt (another tab) replaces the first.
type Hub struct {
	attemptConns map[string]*Connection

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// Connection represents a WebSocket connection
type Connection struct {
	AttemptID string
	UserID    string
	Send      chan []byte
	Hub       *Hub
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	AttemptID string
	Message   *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		attemptConns: make(map[string]*Connection),
		register:     make(chan *Connection),
		unregister:   make(chan *Connection),
		broadcast:    make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if existing, ok := h.attemptConns[conn.AttemptID]; ok {
				close(existing.Send)
			}
			h.attemptConns[conn.AttemptID] = conn
			h.mu.Unlock()
			log.Printf("attempt %s connected", conn.AttemptID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.attemptConns[conn.AttemptID]; ok && existing == conn {
				delete(h.attemptConns, conn.AttemptID)
				close(conn.Send)
				log.Printf("attempt %s disconnected", conn.AttemptID)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			if conn, ok := h.attemptConns[msg.AttemptID]; ok {
				data, _ := json.Marshal(msg.Message)
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastToAttempt sends a message to the attempt's watcher
// (implements session.Broadcaster).
func (h *Hub) BroadcastToAttempt(attemptID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		AttemptID: attemptID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}
}
