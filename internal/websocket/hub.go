package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/explorers-club/progress/internal/domain"
)

// Message types
const (
	MessageTypeFeedEntry       = "feed_entry"
	MessageTypeTeamXP          = "team_xp"
	MessageTypeChapterUnlocked = "chapter_unlocked"
	MessageTypeSubscribe       = "subscribe"
	MessageTypeUnsubscribe     = "unsubscribe"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeError           = "error"
)

// Message represents a WebSocket message. Messages without a TeamID go to
// every connected client.
type Message struct {
	Type      string      `json:"type"`
	TeamID    int64       `json:"team_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TeamXPUpdate is broadcast when a team's XP changes
type TeamXPUpdate struct {
	TeamID int64 `json:"team_id"`
	Gained int64 `json:"gained"`
	Total  int64 `json:"total"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Clients subscribed to each team's feed
	teams map[int64]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	allowedOrigins []string

	mu     sync.RWMutex
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	teamID int64
}

// NewHub creates a new Hub accepting connections from allowedOrigins.
// "*" accepts any origin.
func NewHub(logger *slog.Logger, allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		teams:          make(map[int64]map[*Client]bool),
		allClients:     make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *Message, 256),
		subscribe:      make(chan *subscriptionRequest, 64),
		unsubscribe:    make(chan *subscriptionRequest, 64),
		allowedOrigins: allowedOrigins,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for teamID, clients := range h.teams {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.teams, teamID)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.teams[req.teamID]; !ok {
					h.teams[req.teamID] = make(map[*Client]bool)
				}
				h.teams[req.teamID][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "team_id", req.teamID)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.teams[req.teamID]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.teams, req.teamID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "team_id", req.teamID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the team's subscribers, or to everyone
// when the message has no team
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.allClients
	if message.TeamID != 0 {
		targets = h.teams[message.TeamID]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// BroadcastFeedEntry pushes a new completion to the team's subscribers
func (h *Hub) BroadcastFeedEntry(teamID int64, entry domain.FeedEntry) {
	h.enqueue(&Message{
		Type:      MessageTypeFeedEntry,
		TeamID:    teamID,
		Data:      entry,
		Timestamp: time.Now(),
	})
}

// BroadcastTeamXP pushes a team's new XP total to its subscribers
func (h *Hub) BroadcastTeamXP(teamID, gained, total int64) {
	h.enqueue(&Message{
		Type:      MessageTypeTeamXP,
		TeamID:    teamID,
		Data:      TeamXPUpdate{TeamID: teamID, Gained: gained, Total: total},
		Timestamp: time.Now(),
	})
}

// BroadcastChapterUnlocked announces a newly unlocked chapter to every client
func (h *Hub) BroadcastChapterUnlocked(chapter domain.Chapter) {
	h.enqueue(&Message{
		Type:      MessageTypeChapterUnlocked,
		Data:      chapter,
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub. Calls after Stop return without effect.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a team's feed
func (h *Hub) Subscribe(client *Client, teamID int64) {
	h.request(h.subscribe, &subscriptionRequest{client: client, teamID: teamID})
}

// Unsubscribe removes a client from a team's feed
func (h *Hub) Unsubscribe(client *Client, teamID int64) {
	h.request(h.unsubscribe, &subscriptionRequest{client: client, teamID: teamID})
}

func (h *Hub) request(ch chan<- *subscriptionRequest, req *subscriptionRequest) {
	select {
	case ch <- req:
	case <-h.ctx.Done():
	}
}

// GetSubscriberCount returns the number of subscribers of a team's feed
func (h *Hub) GetSubscriberCount(teamID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.teams[teamID])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

func (h *Hub) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
