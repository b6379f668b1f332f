// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package hub keeps the dashboard WebSocket connections of the backend.
package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/backyardbot/backyardbot/internal/observability"
	"github.com/backyardbot/backyardbot/internal/router"
)

// DefaultQueue is the per-client outbound frame capacity.
const DefaultQueue = 64

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// InboundHandler receives each text frame a client sends.
type InboundHandler func(ctx context.Context, clientID string, data []byte)

// ConnectHandler runs once a client is registered.
type ConnectHandler func(ctx context.Context, clientID string)

// Options configures a Hub.
type Options struct {
	Logger      *slog.Logger
	QueueSize   int
	CheckOrigin func(r *http.Request) bool
	OnMessage   InboundHandler
	OnConnect   ConnectHandler
}

// Hub upgrades HTTP requests to WebSocket connections and fans frames out
// to them.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	queue    int
	onMsg    InboundHandler
	onConn   ConnectHandler

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// New creates a hub.
func New(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueue
	}
	if opts.OnMessage == nil {
		opts.OnMessage = func(context.Context, string, []byte) {}
	}
	if opts.OnConnect == nil {
		opts.OnConnect = func(context.Context, string) {}
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		logger:  opts.Logger,
		queue:   opts.QueueSize,
		onMsg:   opts.OnMessage,
		onConn:  opts.OnConnect,
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and serves the connection until it
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		id:   ulid.Make().String(),
		conn: conn,
		send: make(chan []byte, h.queue),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	defer h.wg.Done()
	defer h.unregister(c)

	logger := h.logger.With("client", c.id)
	logger.Info("client connected", "remote", r.RemoteAddr)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writePump(c, logger)
	}()

	ctx := r.Context()
	h.onConn(ctx, c.id)
	h.readPump(ctx, c, logger)
	logger.Info("client disconnected")
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.wg.Add(1)
	observability.ClientConnected()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		observability.ClientDisconnected()
	}
	h.mu.Unlock()
	c.stop()
}

func (h *Hub) readPump(ctx context.Context, c *client, logger *slog.Logger) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			observability.RecordDrop(observability.DropBinaryFrame)
			logger.Warn("ignoring non-text frame", "type", mt)
			continue
		}
		h.onMsg(ctx, c.id, data)
	}
}

func (h *Hub) writePump(c *client, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn("websocket write failed", "error", err)
				c.stop()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.stop()
				return
			}
		}
	}
}

// Broadcast queues data for every client. A client whose queue is full
// misses the frame.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			observability.RecordDrop(observability.DropQueueFull)
			h.logger.Warn("frame dropped: client queue full", "client", id)
		}
	}
}

// Send implements router.Transport by broadcasting data. After Close it
// returns TRANSPORT_CLOSED.
func (h *Hub) Send(_ context.Context, data []byte) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return router.ErrTransportClosed(nil)
	}
	h.Broadcast(data)
	return nil
}

// SendTo queues data for one client.
func (h *Hub) SendTo(clientID string, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[clientID]
	if !ok {
		return oops.Code(CodeUnknownClient).With("client", clientID).Errorf("no such client")
	}
	select {
	case c.send <- data:
		return nil
	default:
		observability.RecordDrop(observability.DropQueueFull)
		return oops.Code(CodeQueueFull).With("client", clientID).Errorf("client queue full")
	}
}

// Clients returns the connected client IDs in order.
func (h *Hub) Clients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close disconnects every client, refuses new ones and waits for the
// connection goroutines to finish or ctx to end.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.stop()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code(CodeHubClosed).Wrapf(ctx.Err(), "waiting for clients")
	}
}
