package signaling

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/phonecam/phonecam-signal/internal/broker"
	"github.com/phonecam/phonecam-signal/internal/metrics"
	"github.com/phonecam/phonecam-signal/internal/origin"
)

const (
	DefaultIdleTimeout     = 60 * time.Second
	DefaultPingInterval    = 20 * time.Second
	DefaultMaxMessageBytes = 64 * 1024
	DefaultSendQueueSize   = 64
)

// Broker is the subset of *broker.Store the gateway drives.
type Broker interface {
	Create(conn broker.Conn) (string, error)
	Join(code string, conn broker.Conn) error
	Relay(from broker.Conn, data []byte) bool
	Disconnect(conn broker.Conn)
}

type Config struct {
	Broker  Broker
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// OriginPolicy gates WebSocket upgrades. Nil means same-host only.
	OriginPolicy *origin.Policy

	IdleTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	SendQueueSize   int
}

// Server accepts WebSocket connections and wires them to the broker.
type Server struct {
	broker  Broker
	metrics *metrics.Metrics
	log     *slog.Logger
	origins *origin.Policy

	idleTimeout     time.Duration
	pingInterval    time.Duration
	maxMessageBytes int64
	sendQueueSize   int

	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	s := &Server{
		broker:          cfg.Broker,
		metrics:         cfg.Metrics,
		log:             cfg.Logger,
		origins:         cfg.OriginPolicy,
		idleTimeout:     cfg.IdleTimeout,
		pingInterval:    cfg.PingInterval,
		maxMessageBytes: cfg.MaxMessageBytes,
		sendQueueSize:   cfg.SendQueueSize,
		conns:           make(map[*wsConn]struct{}),
	}
	if s.metrics == nil {
		s.metrics = &metrics.Metrics{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = DefaultIdleTimeout
	}
	if s.pingInterval <= 0 {
		s.pingInterval = DefaultPingInterval
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = DefaultMaxMessageBytes
	}
	if s.sendQueueSize <= 0 {
		s.sendQueueSize = DefaultSendQueueSize
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /ws", s)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if _, ok := s.origins.Check(r); ok {
		return true
	}
	s.metrics.Inc(metrics.WSOriginRejected)
	s.log.Warn("websocket origin rejected", "origin", r.Header.Get("Origin"), "host", r.Host)
	return false
}

// IsUpgrade reports whether r asks to switch to the WebSocket protocol.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		return
	}

	c := newWSConn(uuid.NewString(), ws, s.sendQueueSize, s.idleTimeout)
	c.onOverflow = func() {
		s.metrics.Inc(metrics.WSSendQueueOverflow)
		s.log.Warn("websocket send queue overflow", "conn_id", c.id)
	}
	if !s.track(c) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		_ = ws.Close()
		return
	}
	defer s.untrack(c)

	s.metrics.Inc(metrics.WSConnectionOpened)
	log := s.log.With("conn_id", c.id)
	log.Debug("websocket connected", "remote_addr", r.RemoteAddr)

	go c.writeLoop(s.pingInterval)
	c.readLoop(s.maxMessageBytes, func(msgType int, data []byte) {
		s.dispatch(c, msgType, data)
	})

	// Transport close and transport error take the same path.
	s.broker.Disconnect(c)
	<-c.writerDone

	s.metrics.Inc(metrics.WSConnectionClosed)
	log.Debug("websocket closed")
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// Close sends a going-away close frame to every open connection and waits
// for their handlers to finish. New upgrades are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	s.wg.Wait()
}

// ConnCount returns the number of open WebSocket connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
