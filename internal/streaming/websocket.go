// Package streaming implements the optional live-push channel: a
// WebSocket hub that fans job-status updates out to clients watching a
// specific job_id, sourced from the blackboard's pub-sub channel. This
// sits alongside polling /0.1/status/{id} -- it is best-effort, not a
// delivery guarantee.
package streaming

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = 30 * time.Second

	maxMessageSize = 16 * 1024

	sendBufferSize = 256

	// Maximum concurrent job subscriptions a single client may hold.
	maxSubscriptions = 20
)

const (
	MsgTypeSubscribeJobStatus   = "subscribe_job_status"
	MsgTypeUnsubscribeJobStatus = "unsubscribe_job_status"
	MsgTypePing                 = "ping"
)

const (
	MsgTypeJobStatus = "job_status"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// SubscribeJobStatusPayload is sent by the client to watch one job_id.
type SubscribeJobStatusPayload struct {
	JobID string `json:"job_id"`
}

// JobStatusPayload mirrors the polled status shape so a client can use
// the same rendering logic for push and pull.
type JobStatusPayload struct {
	JobID       string  `json:"job_id"`
	State       string  `json:"state"`
	Progress    float64 `json:"progress"`
	Description string  `json:"description,omitempty"`
}

// ErrorPayload is sent by the server when an error occurs.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Hub maintains the set of active WebSocket clients and broadcasts
// job-status messages to clients that have subscribed to a job_id.
type Hub struct {
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan topicMessage

	mu     sync.RWMutex
	logger *slog.Logger
}

type topicMessage struct {
	topic   string
	message ServerMessage
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		topics:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan topicMessage, 256),
		logger:     slog.Default().With("component", "ws-hub"),
	}
}

// Run starts the hub event loop. It must be called in a dedicated goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case tm := <-h.broadcast:
			h.broadcastToTopic(tm)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client registered", "total_clients", n)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.subsMu.Lock()
	subs := c.subscriptions
	c.subscriptions = nil
	c.subsMu.Unlock()

	h.mu.Lock()
	for topic := range subs {
		if topicClients, ok := h.topics[topic]; ok {
			delete(topicClients, c)
			if len(topicClients) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	h.mu.Unlock()

	close(c.send)
	h.logger.Info("client unregistered", "total_clients", n)
}

// TotalClients reports the number of currently registered clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastToTopic(tm topicMessage) {
	h.mu.RLock()
	subscribers, ok := h.topics[tm.topic]
	if !ok || len(subscribers) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(subscribers))
	for c := range subscribers {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(tm.message)
	if err != nil {
		h.logger.Error("marshal broadcast message", "error", err, "topic", tm.topic)
		return
	}

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			select {
			case <-c.send:
				h.logger.Warn("dropped oldest message due to backpressure", "topic", tm.topic)
			default:
			}
			select {
			case c.send <- data:
			default:
				h.logger.Warn("message dropped, client too slow", "topic", tm.topic)
			}
		}
	}
}

// Broadcast sends a message to all clients subscribed to the given job_id topic.
func (h *Hub) Broadcast(topic string, msg ServerMessage) {
	h.broadcast <- topicMessage{topic: topic, message: msg}
}

// PushJobStatus is the convenience entry point called from wherever a
// status update is observed (e.g. a subscriber on the blackboard's
// progress:{job_id} pub-sub channel).
func (h *Hub) PushJobStatus(jobID string, status JobStatusPayload) {
	h.Broadcast(jobStatusTopic(jobID), ServerMessage{Type: MsgTypeJobStatus, Payload: status})
}

func (h *Hub) subscribe(c *Client, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if len(c.subscriptions) >= maxSubscriptions {
		return fmt.Errorf("maximum subscriptions (%d) reached", maxSubscriptions)
	}
	if c.subscriptions == nil {
		c.subscriptions = make(map[string]struct{})
	}
	c.subscriptions[topic] = struct{}{}

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][c] = struct{}{}
	return nil
}

func (h *Hub) unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.subsMu.Lock()
	delete(c.subscriptions, topic)
	c.subsMu.Unlock()

	if topicClients, ok := h.topics[topic]; ok {
		delete(topicClients, c)
		if len(topicClients) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Client represents a single WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	send chan []byte

	subscriptions map[string]struct{}
	subsMu        sync.Mutex

	logger *slog.Logger
}

// NewClient creates a new WebSocket client, registers it with the hub,
// and returns it. The caller must start ReadPump and WritePump in
// separate goroutines.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[string]struct{}),
		logger:        slog.Default().With("component", "ws-client"),
	}
	hub.register <- c
	return c
}

// SubscribeJobID subscribes c to job-status pushes for jobID, used by the
// HTTP handler that upgrades a per-job WebSocket endpoint so the caller
// doesn't have to send an explicit subscribe_job_status message first.
func (c *Client) SubscribeJobID(jobID string) error {
	return c.hub.subscribe(c, jobStatusTopic(jobID))
}

// ReadPump reads messages from the WebSocket connection and dispatches
// them. It must run in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected close", "error", err)
			}
			return
		}
		c.handleMessage(raw)
	}
}

// WritePump writes queued messages to the WebSocket connection and
// sends periodic pings. It must run in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("INVALID_MESSAGE", "failed to parse message")
		return
	}

	switch msg.Type {
	case MsgTypePing:
		c.sendJSON(ServerMessage{Type: MsgTypePong})
	case MsgTypeSubscribeJobStatus:
		c.handleSubscribe(msg.Payload)
	case MsgTypeUnsubscribeJobStatus:
		c.handleUnsubscribe(msg.Payload)
	default:
		c.sendError("UNKNOWN_TYPE", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (c *Client) handleSubscribe(payload json.RawMessage) {
	var p SubscribeJobStatusPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.JobID == "" {
		c.sendError("INVALID_PAYLOAD", "job_id is required for subscribe_job_status")
		return
	}
	if err := c.hub.subscribe(c, jobStatusTopic(p.JobID)); err != nil {
		c.sendError("SUBSCRIBE_FAILED", err.Error())
	}
}

func (c *Client) handleUnsubscribe(payload json.RawMessage) {
	var p SubscribeJobStatusPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.JobID == "" {
		c.sendError("INVALID_PAYLOAD", "job_id is required for unsubscribe_job_status")
		return
	}
	c.hub.unsubscribe(c, jobStatusTopic(p.JobID))
}

func (c *Client) sendJSON(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal server message", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type)
	}
}

func (c *Client) sendError(code, message string) {
	c.sendJSON(ServerMessage{Type: MsgTypeError, Payload: ErrorPayload{Code: code, Message: message}})
}

func jobStatusTopic(jobID string) string {
	return "job_status." + jobID
}
