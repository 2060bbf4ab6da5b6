// Package websocket pushes badge notifications to connected learners
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"missionhub/internal/notify"
	"missionhub/pkg/logger"
	"missionhub/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	// maxConnsPerLearner bounds tabs/devices per learner
	maxConnsPerLearner = 8
)

// Message is the frame pushed to clients
type Message struct {
	Type      string        `json:"type"` // "badge_awarded", "hello"
	LearnerID string        `json:"learner_id"`
	AttemptID string        `json:"attempt_id,omitempty"`
	Badge     *models.Badge `json:"badge,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Hub tracks live connections per learner
type Hub struct {
	bus *notify.LocalBus

	mu      sync.Mutex
	clients map[string]map[*Client]struct{}
}

// Client is one websocket connection
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	learnerID string
}

// NewHub creates a hub fed by bus
func NewHub(bus *notify.LocalBus) *Hub {
	return &Hub{bus: bus, clients: make(map[string]map[*Client]struct{})}
}

// Connections reports live connections for a learner
func (h *Hub) Connections(learnerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[learnerID])
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients[c.learnerID]) >= maxConnsPerLearner {
		return false
	}
	if h.clients[c.learnerID] == nil {
		h.clients[c.learnerID] = make(map[*Client]struct{})
	}
	h.clients[c.learnerID][c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[c.learnerID], c)
	if len(h.clients[c.learnerID]) == 0 {
		delete(h.clients, c.learnerID)
	}
}

// Shutdown closes every connection with a going-away frame
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*Client, 0)
	for _, set := range h.clients {
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.Unlock()

	for _, c := range conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
}

// serve runs the client until the connection or ctx ends
func (c *Client) serve(ctx context.Context) {
	events, cancel := c.hub.bus.Subscribe(c.learnerID)
	defer cancel()
	defer c.hub.unregister(c)
	defer c.conn.Close()

	closed := make(chan struct{})
	go c.readPump(closed)

	logger.WebSocket("connected", c.learnerID)
	defer logger.WebSocket("disconnected", c.learnerID)

	if err := c.write(Message{Type: "hello", LearnerID: c.learnerID, Timestamp: time.Now()}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			badge := ev.Badge
			if err := c.write(Message{
				Type:      "badge_awarded",
				LearnerID: ev.LearnerID,
				AttemptID: ev.AttemptID,
				Badge:     &badge,
				Timestamp: ev.AwardedAt,
			}); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(msg Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// readPump drains client frames; the push channel is one-way
func (c *Client) readPump(closed chan<- struct{}) {
	defer close(closed)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("websocket read for %s: %v", c.learnerID, err)
			}
			return
		}
	}
}
