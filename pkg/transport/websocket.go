package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/peerlink/pkg/protocol"
)

// WebSocketConfig configures the WebSocket drivers.
type WebSocketConfig struct {
	// MaxDatagram bounds message size in both directions.
	// Default: protocol.DefaultMTU.
	MaxDatagram int

	ReadBufferSize  int
	WriteBufferSize int

	// WriteTimeout bounds a single message write. Default: 5s.
	WriteTimeout time.Duration

	// CheckOrigin validates the Origin header on upgrade. nil accepts
	// same-origin requests only.
	CheckOrigin func(r *http.Request) bool

	Logger *slog.Logger
}

// DefaultWebSocketConfig returns a WebSocketConfig with sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		MaxDatagram:     protocol.DefaultMTU,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		WriteTimeout:    5 * time.Second,
	}
}

func (c *WebSocketConfig) applyDefaults() {
	if c.MaxDatagram <= 0 {
		c.MaxDatagram = protocol.DefaultMTU
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type wsLink struct {
	id     ConnID
	remote string
	conn   *websocket.Conn
	wmu    sync.Mutex
}

func (l *wsLink) write(data []byte, timeout time.Duration) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(timeout))
	return l.conn.WriteMessage(websocket.BinaryMessage, data)
}

// WebSocket carries datagrams as binary WebSocket messages. A host-side
// WebSocket is an http.Handler that accepts one connection per upgrade; a
// dialed WebSocket has the single connection HostConn.
type WebSocket struct {
	cfg      WebSocketConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.Mutex
	links  map[ConnID]*wsLink
	nextID ConnID
	closed bool
	wg     sync.WaitGroup
	q      queue
}

func newWebSocket(cfg WebSocketConfig, role string) *WebSocket {
	cfg.applyDefaults()
	return &WebSocket{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger: cfg.Logger.With("component", "transport", "driver", "websocket", "role", role),
		links:  make(map[ConnID]*wsLink),
	}
}

// NewWebSocketHost creates a host-side transport. Mount it on an HTTP
// server; each successful upgrade becomes a connection.
func NewWebSocketHost(cfg WebSocketConfig) *WebSocket {
	return newWebSocket(cfg, "host")
}

// DialWebSocket connects to a host-side WebSocket transport at url
// (ws:// or wss://).
func DialWebSocket(ctx context.Context, url string, cfg WebSocketConfig) (*WebSocket, error) {
	w := newWebSocket(cfg, "client")
	dialer := websocket.Dialer{
		ReadBufferSize:   w.cfg.ReadBufferSize,
		WriteBufferSize:  w.cfg.WriteBufferSize,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if _, err := w.attach(conn, url); err != nil {
		conn.Close()
		return nil, err
	}
	return w, nil
}

// ServeHTTP upgrades the request and serves the connection until either
// side closes it.
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if _, err := w.attach(conn, r.RemoteAddr); err != nil {
		conn.Close()
	}
}

func (w *WebSocket) attach(conn *websocket.Conn, remote string) (*wsLink, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	w.nextID++
	l := &wsLink{id: w.nextID, remote: remote, conn: conn}
	w.links[l.id] = l
	conn.SetReadLimit(int64(w.cfg.MaxDatagram))
	w.q.push(Event{Kind: EventConnect, Conn: l.id, Remote: remote})

	w.wg.Add(1)
	go w.readLoop(l)
	return l, nil
}

func (w *WebSocket) readLoop(l *wsLink) {
	defer w.wg.Done()
	for {
		kind, msg, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				w.logger.Debug("read error", "conn", l.id, "error", err)
			}
			w.drop(l, true)
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		w.q.push(Event{Kind: EventData, Conn: l.id, Remote: l.remote, Data: msg})
	}
}

// drop removes l once. A Disconnect event is queued only for remote
// closure, which is when l is still registered as the read loop exits.
func (w *WebSocket) drop(l *wsLink, remote bool) {
	w.mu.Lock()
	current := w.links[l.id] == l
	if current {
		delete(w.links, l.id)
	}
	w.mu.Unlock()
	if !current {
		return
	}
	l.conn.Close()
	if remote {
		w.q.push(Event{Kind: EventDisconnect, Conn: l.id, Remote: l.remote})
	}
}

// Send implements Transport.
func (w *WebSocket) Send(conn ConnID, _ protocol.Channel, data []byte) error {
	if len(data) > w.cfg.MaxDatagram {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	w.mu.Lock()
	closed := w.closed
	l := w.links[conn]
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if l == nil {
		return fmt.Errorf("%w: %d", ErrUnknownConn, conn)
	}
	if err := l.write(data, w.cfg.WriteTimeout); err != nil {
		return fmt.Errorf("send to %s: %w", l.remote, err)
	}
	return nil
}

// Poll implements Transport.
func (w *WebSocket) Poll() (Event, bool) {
	return w.q.pop()
}

// Disconnect implements Transport. The remote sees a normal close.
func (w *WebSocket) Disconnect(conn ConnID) error {
	w.mu.Lock()
	l := w.links[conn]
	w.mu.Unlock()
	if l == nil {
		return fmt.Errorf("%w: %d", ErrUnknownConn, conn)
	}
	l.wmu.Lock()
	l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	l.wmu.Unlock()
	w.drop(l, false)
	return nil
}

// Close disconnects every link and waits for the read loops to exit.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	links := make([]*wsLink, 0, len(w.links))
	for _, l := range w.links {
		links = append(links, l)
	}
	w.mu.Unlock()

	for _, l := range links {
		w.Disconnect(l.id)
	}
	w.wg.Wait()
	return nil
}
