package broker

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/phonecam/phonecam-signal/internal/metrics"
	"github.com/phonecam/phonecam-signal/internal/sigproto"
)

const DefaultGracePeriod = 5 * time.Second

// Conn is the broker's view of a transport connection.
//
// Send must not block: implementations queue the frame and return. A failed
// Send is logged and otherwise ignored. Conn values are used as map keys, so
// implementations must be comparable (pointer types are).
type Conn interface {
	ID() string
	Send(data []byte) error
}

type Config struct {
	// GracePeriod is how long a session with both slots empty survives before
	// it is reclaimed. Defaults to DefaultGracePeriod.
	GracePeriod time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Codes defaults to RandomCode.
	Codes CodeGenerator
	// AfterFunc schedules deferred reclamation. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func())
}

type session struct {
	code      string
	primary   Conn
	secondary Conn
}

func (s *session) slot(r Role) Conn {
	if r == RolePrimary {
		return s.primary
	}
	return s.secondary
}

func (s *session) setSlot(r Role, c Conn) {
	if r == RolePrimary {
		s.primary = c
	} else {
		s.secondary = c
	}
}

func (s *session) empty() bool { return s.primary == nil && s.secondary == nil }

// SessionState is a point-in-time copy of a session's slots. Empty IDs mean
// the slot is vacant.
type SessionState struct {
	Code        string
	PrimaryID   string
	SecondaryID string
}

type assignment struct {
	code string
	role Role
}

type Store struct {
	grace     time.Duration
	metrics   *metrics.Metrics
	log       *slog.Logger
	codes     CodeGenerator
	afterFunc func(time.Duration, func())

	mu       sync.Mutex
	sessions map[string]*session
	assigned map[Conn]assignment
}

func NewStore(cfg Config) *Store {
	s := &Store{
		grace:     cfg.GracePeriod,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		codes:     cfg.Codes,
		afterFunc: cfg.AfterFunc,
		sessions:  make(map[string]*session),
		assigned:  make(map[Conn]assignment),
	}
	if s.grace <= 0 {
		s.grace = DefaultGracePeriod
	}
	if s.metrics == nil {
		s.metrics = &metrics.Metrics{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.codes == nil {
		s.codes = RandomCode
	}
	if s.afterFunc == nil {
		s.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return s
}

// Create registers conn as the primary of a new session and sends it
// session-created. A connection that already occupies a slot is first
// disconnected from it.
func (s *Store) Create(conn Conn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vacateLocked(conn)

	code, err := s.allocateCodeLocked()
	if err != nil {
		s.metrics.Inc(metrics.CreateFailed)
		s.log.Warn("session create failed", "conn_id", conn.ID(), "err", err)
		return "", err
	}

	s.sessions[code] = &session{code: code, primary: conn}
	s.assigned[conn] = assignment{code: code, role: RolePrimary}
	s.metrics.Inc(metrics.SessionCreated)
	s.metrics.SetGauge(metrics.SessionsActive, int64(len(s.sessions)))
	s.log.Info("session created", "code", code, "conn_id", conn.ID())

	s.sendLocked(conn, sigproto.SessionCreated(code))
	return code, nil
}

func (s *Store) allocateCodeLocked() (string, error) {
	if len(s.sessions) >= codeSpace {
		return "", ErrCodeSpaceExhausted
	}
	var last string
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return "", fmt.Errorf("generate session code: %w", err)
		}
		if _, taken := s.sessions[code]; !taken {
			return code, nil
		}
		last = code
	}
	return s.scanFreeCodeLocked(last)
}

// scanFreeCodeLocked walks the code space upward from start, wrapping at
// maxCode, and returns the first code no live session holds.
func (s *Store) scanFreeCodeLocked(start string) (string, error) {
	n := minCode
	if ValidCode(start) {
		n, _ = strconv.Atoi(start)
	}
	for i := 0; i < codeSpace; i++ {
		code := strconv.Itoa(n)
		if _, taken := s.sessions[code]; !taken {
			s.log.Warn("session code draws collided, scanned for a free code", "attempts", maxCodeAttempts, "code", code)
			return code, nil
		}
		n++
		if n > maxCode {
			n = minCode
		}
	}
	return "", ErrCodeSpaceExhausted
}

// Join places conn in the secondary slot of the session named by code. On
// failure the store is left untouched and the returned error is one of
// ErrSessionNotFound, ErrSlotOccupied, ErrPrimaryGone or ErrSelfJoin.
func (s *Store) Join(code string, conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	switch {
	case !ok:
		s.metrics.Inc(metrics.JoinRejectedNotFound)
		return ErrSessionNotFound
	case sess.secondary != nil:
		s.metrics.Inc(metrics.JoinRejectedSlotOccupied)
		return ErrSlotOccupied
	case sess.primary == nil:
		s.metrics.Inc(metrics.JoinRejectedPrimaryGone)
		return ErrPrimaryGone
	case sess.primary == conn:
		s.metrics.Inc(metrics.JoinRejectedSelf)
		return ErrSelfJoin
	}

	// conn cannot hold a slot in sess here, so vacating never touches it.
	s.vacateLocked(conn)

	sess.secondary = conn
	s.assigned[conn] = assignment{code: code, role: RoleSecondary}
	s.metrics.Inc(metrics.SessionJoined)
	s.log.Info("peer joined", "code", code, "conn_id", conn.ID(), "primary_conn_id", sess.primary.ID())

	s.sendLocked(conn, sigproto.SessionJoined(code))
	s.sendLocked(sess.primary, sigproto.PeerJoined())
	return nil
}

// Relay forwards data unmodified to the other occupant of from's session.
// It reports whether the frame was delivered to a peer's queue.
func (s *Store) Relay(from Conn, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assigned[from]
	if !ok {
		s.metrics.Inc(metrics.RelayDroppedUnassigned)
		return false
	}
	sess := s.sessions[a.code]
	peer := sess.slot(a.role.Other())
	if peer == nil {
		s.metrics.Inc(metrics.RelayDroppedNoPeer)
		return false
	}
	if !s.sendLocked(peer, data) {
		return false
	}
	s.metrics.Inc(metrics.MessageRelayed)
	return true
}

// Disconnect removes conn from whatever slot it holds and tells the
// remaining peer. Unassigned connections are ignored, so calling it more
// than once is harmless.
func (s *Store) Disconnect(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vacateLocked(conn)
}

func (s *Store) vacateLocked(conn Conn) {
	a, ok := s.assigned[conn]
	if !ok {
		return
	}
	delete(s.assigned, conn)

	sess := s.sessions[a.code]
	sess.setSlot(a.role, nil)
	s.metrics.Inc(metrics.PeerDisconnected)
	s.log.Info("peer disconnected", "code", a.code, "conn_id", conn.ID(), "role", string(a.role))

	if peer := sess.slot(a.role.Other()); peer != nil {
		s.sendLocked(peer, sigproto.PeerDisconnected(string(a.role)))
	}
	if sess.empty() {
		s.scheduleReclaimLocked(sess)
	}
}

func (s *Store) scheduleReclaimLocked(sess *session) {
	s.afterFunc(s.grace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		cur, ok := s.sessions[sess.code]
		if !ok || cur != sess || !cur.empty() {
			return
		}
		delete(s.sessions, sess.code)
		s.metrics.Inc(metrics.SessionReclaimed)
		s.metrics.SetGauge(metrics.SessionsActive, int64(len(s.sessions)))
		s.log.Debug("session reclaimed", "code", sess.code)
	})
}

func (s *Store) sendLocked(c Conn, data []byte) bool {
	if err := c.Send(data); err != nil {
		s.log.Debug("send failed", "conn_id", c.ID(), "err", err)
		return false
	}
	return true
}

// Len returns the number of live sessions, including ones awaiting
// reclamation.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) Lookup(code string) (SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	if !ok {
		return SessionState{}, false
	}
	st := SessionState{Code: sess.code}
	if sess.primary != nil {
		st.PrimaryID = sess.primary.ID()
	}
	if sess.secondary != nil {
		st.SecondaryID = sess.secondary.ID()
	}
	return st, true
}

// Assignment returns the session code and role conn currently holds.
func (s *Store) Assignment(conn Conn) (string, Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assigned[conn]
	return a.code, a.role, ok
}
