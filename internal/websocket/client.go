package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one connected app session
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage is a request sent by the app. TeamIDs lets a parent following
// several explorers subscribe to all their teams at once.
type ClientMessage struct {
	Type    string  `json:"type"`
	TeamID  int64   `json:"team_id,omitempty"`
	TeamIDs []int64 `json:"team_ids,omitempty"`
}

func (m *ClientMessage) teams() []int64 {
	var ids []int64
	if m.TeamID > 0 {
		ids = append(ids, m.TeamID)
	}
	for _, id := range m.TeamIDs {
		if id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With("client_id", id),
	}
}

// readPump reads client requests until the connection drops, then
// unregisters the client
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.sendError("invalid message format")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		teams := msg.teams()
		if len(teams) == 0 {
			c.sendError("team_id required for subscribe")
			return
		}
		for _, teamID := range teams {
			c.hub.Subscribe(c, teamID)
			c.sendAck("subscribed", teamID)
		}

	case MessageTypeUnsubscribe:
		for _, teamID := range msg.teams() {
			c.hub.Unsubscribe(c, teamID)
			c.sendAck("unsubscribed", teamID)
		}

	case MessageTypePing:
		c.sendDirect(Message{Type: MessageTypePong})

	default:
		c.sendError("unknown message type " + strconv.Quote(msg.Type))
	}
}

// writePump writes one frame per queued message and keeps the connection
// alive with pings. It owns all writes to conn.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
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

// sendDirect queues a reply for this client only, dropping it when the
// client is not keeping up
func (c *Client) sendDirect(msg Message) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal reply", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client buffer full, dropping reply", "type", msg.Type)
	}
}

func (c *Client) sendError(errMsg string) {
	c.sendDirect(Message{
		Type: MessageTypeError,
		Data: map[string]string{"error": errMsg},
	})
}

func (c *Client) sendAck(action string, teamID int64) {
	c.sendDirect(Message{Type: action, TeamID: teamID})
}

// ServeWs upgrades the request and registers the client. Teams listed as
// team_id query parameters are subscribed immediately.
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return hub.originAllowed(r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)

	for _, raw := range r.URL.Query()["team_id"] {
		if teamID, err := strconv.ParseInt(raw, 10, 64); err == nil && teamID > 0 {
			hub.Subscribe(client, teamID)
		}
	}

	go client.writePump()
	go client.readPump()

	client.logger.Debug("new websocket connection", "remote_addr", r.RemoteAddr)
}
