package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"preview-watcher/internal/database"
	"preview-watcher/internal/logging"
	"preview-watcher/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

// StatusReady is the status of a bundle that can be downloaded.
const StatusReady = "ready"

// ErrClosed is returned once the hub has been shut down.
var ErrClosed = errors.New("notification hub closed")

// Message is the JSON payload pushed to clients.
type Message struct {
	Status  string `json:"status"`
	ZipPath string `json:"zip_path"`
}

// PendingStore persists notifications for offline clients.
type PendingStore interface {
	SavePendingDownload(ctx context.Context, clientID, zipPath string) error
	PendingDownloads(ctx context.Context, clientID string) ([]database.PendingDownload, error)
	DeletePendingDownloads(ctx context.Context, clientID string) (int64, error)
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub tracks connected clients by id.
type Hub struct {
	store    PendingStore
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub returns a Hub. allowedOrigin restricts browser origins; "" or "*"
// accepts any.
func NewHub(store PendingStore, allowedOrigin string) *Hub {
	return &Hub{
		store:   store,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigin),
		},
	}
}

func originChecker(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowed == "" || allowed == "*" || origin == "" {
			return true
		}
		return origin == allowed
	}
}

// Connected reports whether clientID currently has an open connection.
func (h *Hub) Connected(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientID]
	return ok
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and serves clientID until the connection
// closes. Pending notifications are delivered right after the upgrade.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, clientID string) {
	if clientID == "" {
		http.Error(w, "Missing client id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed for %s: %v", clientID, err)
		return
	}

	c := &client{id: clientID, conn: conn}
	if err := h.register(c); err != nil {
		_ = conn.Close()
		return
	}
	defer h.unregister(c)

	h.replay(r.Context(), c)

	stop := make(chan struct{})
	defer close(stop)
	go h.keepalive(c, stop)

	h.readLoop(c)
}

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if prev, ok := h.clients[c.id]; ok {
		logging.Info("Client %s reconnected, closing previous connection", c.id)
		_ = prev.conn.Close()
	} else {
		metrics.WebSocketClients.Inc()
	}
	h.clients[c.id] = c
	logging.Debug("WebSocket client connected: %s", c.id)
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[c.id]; ok && current == c {
		delete(h.clients, c.id)
		metrics.WebSocketClients.Dec()
		logging.Debug("WebSocket client disconnected: %s", c.id)
	}
	_ = c.conn.Close()
}

func (h *Hub) replay(ctx context.Context, c *client) {
	rows, err := h.store.PendingDownloads(ctx, c.id)
	if err != nil {
		logging.Error("Failed to load pending downloads for %s: %v", c.id, err)
		return
	}
	if len(rows) == 0 {
		return
	}

	for _, row := range rows {
		if err := c.write(Message{Status: StatusReady, ZipPath: row.ZipPath}); err != nil {
			logging.Warn("Failed to replay pending download to %s: %v", c.id, err)
			metrics.NotificationsTotal.WithLabelValues("error").Inc()
			return
		}
		metrics.NotificationsTotal.WithLabelValues("replayed").Inc()
	}

	if _, err := h.store.DeletePendingDownloads(ctx, c.id); err != nil {
		logging.Error("Failed to clear pending downloads for %s: %v", c.id, err)
	}
	logging.Info("Delivered %d pending download(s) to %s", len(rows), c.id)
}

func (h *Hub) keepalive(c *client, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Error("Connection closed: %v", err)
			}
			return
		}
		logging.Info("Received message: %s", data)
	}
}

// Notify sends msg to clientID. A connected client receives it at once and
// its pending rows are cleared; otherwise the notification is stored.
func (h *Hub) Notify(ctx context.Context, clientID string, msg Message) error {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()

	if ok {
		err := c.write(msg)
		if err == nil {
			metrics.NotificationsTotal.WithLabelValues("sent").Inc()
			if _, err := h.store.DeletePendingDownloads(ctx, clientID); err != nil {
				logging.Warn("Failed to clear pending downloads for %s: %v", clientID, err)
			}
			return nil
		}
		logging.Warn("Failed to notify %s, saving as pending: %v", clientID, err)
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		h.unregister(c)
	}

	if err := h.store.SavePendingDownload(ctx, clientID, msg.ZipPath); err != nil {
		return fmt.Errorf("failed to save pending download: %w", err)
	}
	metrics.NotificationsTotal.WithLabelValues("pending").Inc()
	logging.Info("Client %s is not connected, download saved as pending", clientID)
	return nil
}

// Close disconnects every client and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	deadline := time.Now().Add(writeWait)
	for id, c := range h.clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		c.mu.Unlock()
		_ = c.conn.Close()
		delete(h.clients, id)
		metrics.WebSocketClients.Dec()
	}
}
