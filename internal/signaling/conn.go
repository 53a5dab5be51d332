package signaling

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 1 * time.Second

var (
	ErrConnClosed    = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// wsConn implements broker.Conn on top of a gorilla WebSocket.
//
// Only the writer goroutine writes data frames. Close frames go through
// WriteControl, which gorilla allows concurrently with other writes.
type wsConn struct {
	id string
	ws *websocket.Conn

	mu          sync.Mutex
	closed      bool
	send        chan []byte
	closeFrame  []byte
	onOverflow  func()
	writerDone  chan struct{}
	idleTimeout time.Duration
}

func newWSConn(id string, ws *websocket.Conn, queueSize int, idleTimeout time.Duration) *wsConn {
	return &wsConn{
		id:          id,
		ws:          ws,
		send:        make(chan []byte, queueSize),
		writerDone:  make(chan struct{}),
		idleTimeout: idleTimeout,
	}
}

func (c *wsConn) ID() string { return c.id }

// Send queues data for the writer. It never blocks; a full queue closes the
// connection.
func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked(websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "send queue overflow"))
		if c.onOverflow != nil {
			c.onOverflow()
		}
		return ErrSendQueueFull
	}
}

// closeWith stops the writer after it has flushed queued frames and sends a
// close frame.
func (c *wsConn) closeWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(websocket.FormatCloseMessage(code, reason))
}

// abort stops the writer without a close frame of our own. Used when gorilla
// has already answered or the transport is gone.
func (c *wsConn) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(nil)
}

func (c *wsConn) closeLocked(frame []byte) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeFrame = frame
	close(c.send)
}

func (c *wsConn) writeLoop(pingInterval time.Duration) {
	defer close(c.writerDone)
	defer c.ws.Close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.mu.Lock()
				frame := c.closeFrame
				c.mu.Unlock()
				if frame != nil {
					_ = c.ws.WriteControl(websocket.CloseMessage, frame, time.Now().Add(wsWriteWait))
				}
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// readLoop delivers text frames to handle until the connection fails or
// stays silent for longer than the idle timeout. Any inbound frame,
// including pongs, counts as activity.
func (c *wsConn) readLoop(maxMessageBytes int64, handle func(msgType int, data []byte)) {
	c.ws.SetReadLimit(maxMessageBytes)
	c.extendReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				c.closeWith(websocket.CloseNormalClosure, "idle timeout")
			} else {
				c.abort()
			}
			return
		}
		c.extendReadDeadline()
		handle(msgType, data)
	}
}

func (c *wsConn) extendReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.idleTimeout))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
