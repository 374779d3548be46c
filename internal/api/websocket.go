package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/ptcontrol/internal/control"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/config"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/logging"
	"github.com/nerrad567/ptcontrol/internal/ingest"
)

// WebSocket frame types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
)

// feedChannels maps each live-feed channel to its bit in a client's mask.
var feedChannels = map[string]uint32{
	ingest.ChannelSensorReading:    1 << 0,
	control.ChannelActuatorChanged: 1 << 1,
	control.ChannelAlertRaised:     1 << 2,
}

// channelMask folds names into a mask. Unknown names are an error.
func channelMask(names []string) (uint32, error) {
	var mask uint32
	for _, name := range names {
		bit, ok := feedChannels[name]
		if !ok {
			return 0, fmt.Errorf("unknown channel %q", name)
		}
		mask |= bit
	}
	return mask, nil
}

// WSMessage is the envelope for every WebSocket frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub fans live-feed events out to WebSocket clients by channel.
// It satisfies control.Broadcaster and ingest.Broadcaster.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	// mu guards clients and the closing of each client's send channel, so a
	// broadcast holding the read lock never sends on a closed channel.
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mask atomic.Uint32
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origins are checked by the CORS middleware.
		return true
	},
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

func (h *Hub) add(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// remove is idempotent; only the first call closes the send channel.
func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast sends payload to every client subscribed to channel. Clients
// with a full buffer miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	bit, ok := feedChannels[channel]
	if !ok {
		h.logger.Warn("broadcast on unknown channel", "channel", channel)
		return
	}

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		if c.mask.Load()&bit == 0 {
			continue
		}
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Debug("slow websocket clients missed an event", "channel", channel, "dropped", dropped)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the request. Channels listed in the optional
// ?channels=a,b query are subscribed on connect. The feed is read-only and
// unauthenticated, like the rest of the API.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var initial uint32
	if raw := r.URL.Query().Get("channels"); raw != "" {
		mask, err := channelMask(strings.Split(raw, ","))
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		initial = mask
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	c.mask.Store(initial)
	s.hub.add(c)

	go c.writePump(s.wsCfg)
	go c.readPump(s.wsCfg)
}

func (c *feedClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.handleFrame(frame)
	}
}

func (c *feedClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientFrame is the inbound shape; Payload stays raw until the type is known.
type clientFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (c *feedClient) handleFrame(data []byte) {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.reply(WSTypeError, "", map[string]string{"message": "invalid JSON message"})
		return
	}
	if f.Type != WSTypeSubscribe && f.Type != WSTypeUnsubscribe {
		c.reply(WSTypeError, f.ID, map[string]string{"message": "unknown message type: " + f.Type})
		return
	}

	var sub WSSubscribePayload
	if err := json.Unmarshal(f.Payload, &sub); err != nil {
		c.reply(WSTypeError, f.ID, map[string]string{"message": "invalid " + f.Type + " payload"})
		return
	}
	mask, err := channelMask(sub.Channels)
	if err != nil {
		c.reply(WSTypeError, f.ID, map[string]string{"message": err.Error()})
		return
	}

	key := "subscribed"
	if f.Type == WSTypeSubscribe {
		c.mask.Or(mask)
	} else {
		c.mask.And(^mask)
		key = "unsubscribed"
	}
	c.reply(WSTypeResponse, f.ID, map[string]any{key: sub.Channels})
}

// reply queues a response frame unless the client has already been removed.
func (c *feedClient) reply(msgType, id string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
