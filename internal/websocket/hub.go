package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventType identifies account events pushed to a user's connections.
type EventType string

const (
	TypePing           EventType = "ping"
	TypeSessionRevoked EventType = "session_revoked"
	TypeProfileUpdated EventType = "profile_updated"
)

type Message struct {
	Type      EventType       `json:"type"`
	UserID    uuid.UUID       `json:"user_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub
}

// Hub fans account events out to every live connection of a user. One user
// may hold several connections.
type Hub struct {
	clients     map[uuid.UUID]*Client
	userClients map[uuid.UUID]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu  sync.RWMutex
	log *slog.Logger

	pingInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:      make(map[uuid.UUID]*Client),
		userClients:  make(map[uuid.UUID]map[uuid.UUID]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		log:          log,
		pingInterval: 30 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (h *Hub) Run() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop ends Run and closes every connection.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.Send)
		client.Conn.Close()
		delete(h.clients, id)
	}
	h.userClients = make(map[uuid.UUID]map[uuid.UUID]*Client)
}

func (h *Hub) Register(client *Client) error {
	if h.ctx.Err() != nil {
		return ErrHubStopped
	}
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.UserID][client.ID] = client

	h.log.Debug("client registered", "client_id", client.ID, "user_id", client.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if userClients, ok := h.userClients[client.UserID]; ok {
		delete(userClients, client.ID)
		if len(userClients) == 0 {
			delete(h.userClients, client.UserID)
		}
	}
	delete(h.clients, client.ID)
	close(client.Send)

	h.log.Debug("client unregistered", "client_id", client.ID, "user_id", client.UserID)
}

// SendToUser queues a raw message on every connection of userID.
func (h *Hub) SendToUser(userID uuid.UUID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.userClients[userID] {
		select {
		case client.Send <- message:
		default:
			h.log.Warn("client send channel full", "client_id", client.ID)
		}
	}
}

// Notify pushes an event to userID's connections.
func (h *Hub) Notify(userID uuid.UUID, event EventType, data any) {
	msg := Message{Type: event, UserID: userID, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.log.Error("marshal event", "event", event, "error", err)
			return
		}
		msg.Data = raw
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal event", "event", event, "error", err)
		return
	}
	h.SendToUser(userID, payload)
}

// Disconnect closes every connection of userID after flushing queued events.
func (h *Hub) Disconnect(userID uuid.UUID) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.userClients[userID]))
	for _, c := range h.userClients[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}

// SessionRevoked tells userID's connections their session ended and drops them.
func (h *Hub) SessionRevoked(userID uuid.UUID, reason string) {
	h.Notify(userID, TypeSessionRevoked, map[string]string{"reason": reason})
	h.Disconnect(userID)
}

func (h *Hub) ProfileUpdated(userID uuid.UUID, profile any) {
	h.Notify(userID, TypeProfileUpdated, profile)
}

// IsOnline reports whether userID has at least one live connection.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID]) > 0
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(Message{Type: TypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
		}
	}
}
