// Package stream fans completed split and forward runs out to WebSocket
// clients.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/forwarder"
	"github.com/orbitearn/valence-protocol/internal/observability"
	"github.com/orbitearn/valence-protocol/internal/splitter"
)

// Config tunes hub connection behavior.
type Config struct {
	// PingInterval is the interval between ping frames.
	PingInterval time.Duration
	// PongTimeout is how long a client may go without answering pings.
	PongTimeout time.Duration
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration
	// SendBuffer is the per-client outbound queue; a client whose queue is
	// full gets evicted rather than stall the broadcast.
	SendBuffer int
}

// DefaultConfig returns default hub configuration.
func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

// Hub upgrades HTTP connections to WebSocket and broadcasts run events to
// every connected client.
type Hub struct {
	logger  zerolog.Logger
	config  Config
	metrics *observability.Metrics

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Options for creating a Hub.
type Options struct {
	Logger  zerolog.Logger
	Config  Config                 // zero value means DefaultConfig
	Metrics *observability.Metrics // nil disables
}

// NewHub creates a Hub.
func NewHub(opts Options) *Hub {
	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Hub{
		logger:  opts.Logger,
		config:  cfg,
		metrics: opts.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Authn terminates in front of the service.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the client until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.config.SendBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drops every client and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
	h.metrics.SetStreamClients(0)
}

// splitRunEvent is the wire form of a completed split run.
type splitRunEvent struct {
	Type             string `json:"type"`
	RunID            string `json:"run_id"`
	Library          string `json:"library"`
	InputAccount     string `json:"input_account"`
	Caller           string `json:"caller"`
	PolicyVersion    int64  `json:"policy_version"`
	TotalDistributed string `json:"total_distributed"`
	TransferCount    int    `json:"transfer_count"`
	DurationMs       int64  `json:"duration_ms"`
	ExecutedAt       int64  `json:"executed_at"`
}

// forwardRunEvent is the wire form of a completed forward run.
type forwardRunEvent struct {
	Type          string `json:"type"`
	RunID         string `json:"run_id"`
	Library       string `json:"library"`
	InputAccount  string `json:"input_account"`
	OutputAccount string `json:"output_account"`
	Caller        string `json:"caller"`
	TotalMoved    string `json:"total_moved"`
	TransferCount int    `json:"transfer_count"`
	ExecutedAt    int64  `json:"executed_at"`
}

// PublishSplitRun broadcasts a completed split run to all clients.
func (h *Hub) PublishSplitRun(run *domain.SplitRun) {
	h.publish(splitRunEvent{
		Type:             "split_run",
		RunID:            run.RunID,
		Library:          run.Library.String(),
		InputAccount:     run.InputAccount.String(),
		Caller:           run.Caller.String(),
		PolicyVersion:    run.PolicyVersion,
		TotalDistributed: decimal(run.TotalDistributed),
		TransferCount:    run.TransferCount,
		DurationMs:       run.DurationMs,
		ExecutedAt:       run.ExecutedAt,
	})
}

// PublishForwardRun broadcasts a completed forward run to all clients.
func (h *Hub) PublishForwardRun(run *domain.ForwardRun) {
	h.publish(forwardRunEvent{
		Type:          "forward_run",
		RunID:         run.RunID,
		Library:       run.Library.String(),
		InputAccount:  run.InputAccount.String(),
		OutputAccount: run.OutputAccount.String(),
		Caller:        run.Caller.String(),
		TotalMoved:    decimal(run.TotalMoved),
		TransferCount: run.TransferCount,
		ExecutedAt:    run.ExecutedAt,
	})
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func (h *Hub) publish(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal stream event")
		return
	}
	h.broadcast(payload)
}

// broadcast queues the payload for every client. Sends happen only while
// the client is still in the map and its channel is closed only after
// removal, both under mu, so a queued send can never hit a closed channel.
func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	var evicted []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			evicted = append(evicted, c)
		}
	}
	remaining := len(h.clients)
	h.mu.Unlock()

	for _, c := range evicted {
		close(c.send)
		h.logger.Warn().Msg("stream client evicted: send queue full")
	}
	if len(evicted) > 0 {
		h.metrics.SetStreamClients(remaining)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetStreamClients(n)
	h.logger.Debug().Int("clients", n).Msg("stream client connected")
	return true
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(c.send)
	h.metrics.SetStreamClients(n)
	h.logger.Debug().Int("clients", n).Msg("stream client disconnected")
}

// writePump drains the client queue and keeps the connection alive with
// pings. It owns all writes on the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if ok {
				c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					h.drop(c)
					return
				}
				h.metrics.RecordStreamMessage()
				continue
			}
			// Queue closed: the client was dropped or the hub shut down.
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readPump consumes control frames and detects disconnects. Clients send no
// application data.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var (
	_ http.Handler        = (*Hub)(nil)
	_ splitter.Publisher  = (*Hub)(nil)
	_ forwarder.Publisher = (*Hub)(nil)
)
