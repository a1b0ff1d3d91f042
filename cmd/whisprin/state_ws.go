package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Status WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// External UIs observe and control the daemon over a WebSocket:
//   - A Hub tracks connected clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A broadcaster coalesces bursty status updates (pen moves arrive at
//     device rate) before fanning them out
//   - Inbound frames carry control actions in the same envelope format as
//     the IPC socket
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
// The initial message on connect is "status_init" with the snapshot in data.
// Slow clients are disconnected when their send buffer fills.
// ============================================================================

// wsEnvelope is the wire format envelope for WS messages.
type wsEnvelope struct {
	Type string      `json:"type"`
	Ts   *time.Time  `json:"ts,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// wsStatusCoalesceWindow bounds broadcast rate: bursty status updates are
// coalesced latest-wins within this window.
const wsStatusCoalesceWindow = 50 * time.Millisecond

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 30 * time.Second
	wsPingPeriod = 20 * time.Second
)

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, 128),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    32,
	}
}

// Run processes hub events until ctx is canceled. It disconnects all clients
// on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients while holding the lock, remove after.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		_ = c.conn.Close()
		// Closing send signals writePump to exit; guard against double-close.
		safeCloseChan(c.send)
		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON frame for broadcast. It never
// blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	ctrl       Controller
	remoteAddr string
	logger     *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, ctrl Controller, remoteAddr string, logger *slog.Logger) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuf),
		ctrl:       ctrl,
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logWriteExit(err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logWriteExit(err)
				return
			}
		}
	}
}

func (c *Client) logWriteExit(err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws writePump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
	} else {
		c.logger.Info("ws writePump exiting (write error)", "remote_addr", c.remoteAddr, "error", err)
	}
}

// readPump reads inbound frames, applies any control actions they carry, and
// detects disconnects. It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				if code, text, ok := closeStatus(err); ok {
					c.logger.Info("ws readPump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
				} else {
					c.logger.Info("ws readPump exiting (read error)", "remote_addr", c.remoteAddr, "error", err)
				}
			}
			c.hub.unregister <- c
			return
		}

		action, err := UnmarshalAction(payload)
		if err != nil {
			c.logger.Debug("ws inbound frame ignored", "remote_addr", c.remoteAddr, "error", err)
			continue
		}
		if _, ok := action.(RequestStatus); ok {
			c.enqueueSnapshot("status")
			continue
		}
		c.ctrl.Apply(action)
	}
}

func (c *Client) enqueueSnapshot(msgType string) {
	snap := c.ctrl.Status()
	now := time.Now().UTC()
	msg, err := json.Marshal(wsEnvelope{Type: msgType, Ts: &now, Data: snap})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.hub.unregister <- c
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type StatusServer struct {
	logger *slog.Logger
	hub    *Hub
	ctrl   Controller
}

func NewStatusServer(logger *slog.Logger, ctrl Controller) *StatusServer {
	return &StatusServer{
		logger: logger,
		hub:    NewHub(logger),
		ctrl:   ctrl,
	}
}

func (s *StatusServer) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *StatusServer) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, s.handleStatusWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStatusWS upgrades and registers a client, then sends status_init.
func (s *StatusServer) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, s.ctrl, r.RemoteAddr, s.logger)

	// Register first so broadcasts can reach the client.
	s.hub.register <- client

	// Do not tie the pumps to r.Context(): net/http cancels it when the
	// handler returns, which would kill the pumps with an abnormal closure.
	// The connection lifetime is managed by the hub and by read/write errors.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	client.enqueueSnapshot("status_init")
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunStatusBroadcaster reads status snapshots, coalesces bursts latest-wins
// within wsStatusCoalesceWindow, and fans the survivors out to hub clients.
// Pen moves generate a snapshot per device report; without coalescing a fast
// pen would flood every client.
func RunStatusBroadcaster(ctx context.Context, hub *Hub, src <-chan StatusSnapshot, logger *slog.Logger) {
	var pending *StatusSnapshot
	var timer *time.Timer
	var timerCh <-chan time.Time

	flush := func() {
		if pending == nil {
			return
		}
		now := time.Now().UTC()
		msg, err := json.Marshal(wsEnvelope{Type: "status", Ts: &now, Data: *pending})
		pending = nil
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err)
			return
		}
		hub.BroadcastBytes(msg)
	}

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			stopTimer()
			return

		case <-timerCh:
			flush()
			stopTimer()

		case snap, ok := <-src:
			if !ok {
				flush()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}
			copySnap := snap
			pending = &copySnap
			if timer == nil {
				timer = time.NewTimer(wsStatusCoalesceWindow)
				timerCh = timer.C
			}
		}
	}
}
