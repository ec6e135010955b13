package chat

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is one of the Client connection state machine's four states.
type State int32

const (
	StateHandshake State = iota
	StateOpen
	StateClosing
	StateClosed
)

// sendQueueSize bounds the per-client outbound queue. Overflow triggers
// the backpressure policy: close with code 1011.
const sendQueueSize = 256

// MaxNickLength is the longest permitted nickname, per spec.
const MaxNickLength = 256

// Client is per-socket connection state, owned exclusively by the
// connection-handling goroutines (readPump/writePump). The Room holds a
// reference to look up and push to send, but must drop it on disconnect
// before any further send -- enforced here by Close, which closes the
// client's closed channel exactly once so that every later Enqueue is
// refused.
type Client struct {
	ConnectionID uint64
	RemoteAddr   net.Addr
	UserAgent    string
	Referer      string
	AuthCookie   string
	SessionID    string
	CreatedAt    time.Time

	conn *websocket.Conn

	mu          sync.RWMutex
	currentNick string
	room        *Room

	state atomic.Int32

	sendQueue chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded WebSocket connection.
func NewClient(id uint64, conn *websocket.Conn, remoteAddr net.Addr, userAgent, referer, authCookie, sessionID string) *Client {
	c := &Client{
		ConnectionID: id,
		RemoteAddr:   remoteAddr,
		UserAgent:    userAgent,
		Referer:      referer,
		AuthCookie:   authCookie,
		SessionID:    sessionID,
		CreatedAt:    time.Now(),
		conn:         conn,
		currentNick:  "anonymous",
		sendQueue:    make(chan []byte, sendQueueSize),
		closed:       make(chan struct{}),
	}
	c.state.Store(int32(StateHandshake))
	return c
}

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// SetState transitions the connection to s. Callers are expected to
// respect the table in the client connection state machine design; this
// is a plain atomic store that does not validate the transition, and it
// is called from the reader and writer goroutines, the distributor's
// overflow path and server shutdown.
func (c *Client) SetState(s State) { c.state.Store(int32(s)) }

// Nick returns the client's current display nickname.
func (c *Client) Nick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentNick
}

// SetNick validates and sets nick, returning false if it is invalid
// (too long or contains control characters).
func (c *Client) SetNick(nick string) bool {
	if !ValidNick(nick) {
		return false
	}
	c.mu.Lock()
	c.currentNick = nick
	c.mu.Unlock()
	return true
}

// ValidNick reports whether nick satisfies the spec's constraints:
// non-empty, at most MaxNickLength bytes, no control characters.
func ValidNick(nick string) bool {
	if nick == "" || len(nick) > MaxNickLength {
		return false
	}
	for _, r := range nick {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// Room returns the room the client currently belongs to, or nil for the
// null room.
func (c *Client) Room() *Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

// setRoom is called exclusively by Room.join/leave under the room's own
// bookkeeping; it does not itself touch room membership.
func (c *Client) setRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

// Enqueue pushes a pre-serialized frame onto the client's send queue.
// Returns false if the queue is full (overflow -- caller must close the
// connection with code 1011) or if the client has already closed.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.sendQueue <- frame:
		return true
	default:
		return false
	}
}

// SendQueue exposes the outbound channel for the writer goroutine.
func (c *Client) SendQueue() <-chan []byte { return c.sendQueue }

// Close marks the client closed and stops further enqueues from
// succeeding. Safe to call multiple times; only the first call has an
// effect.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.state.Store(int32(StateClosed))
	})
}

// Closed reports whether Close has been called.
func (c *Client) Closed() <-chan struct{} { return c.closed }

// WriteMessage writes a text frame directly to the underlying
// WebSocket. Used only by the writer goroutine that owns the connection.
func (c *Client) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage reads the next text frame from the underlying WebSocket.
// Used only by the reader goroutine that owns the connection.
func (c *Client) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// WriteControlClose sends a WebSocket close control frame with the
// given code, per the client-resource error / shutdown paths. A nil
// underlying connection (only possible for a Client built directly in
// tests rather than through an upgrade) is a no-op.
func (c *Client) WriteControlClose(code int, reason string) error {
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	return c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Underlying exposes the raw *websocket.Conn for code that must set
// deadlines or perform the handshake-time header dance (test doubles
// aside, this is always a *websocket.Conn in production).
func (c *Client) Underlying() *websocket.Conn { return c.conn }
