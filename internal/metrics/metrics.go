package metrics

import "sync"

// Broker and gateway event names. Each is exported as a counter with an
// `event` label by PrometheusHandler.
const (
	SessionCreated           = "session_created"
	SessionJoined            = "session_joined"
	SessionReclaimed         = "session_reclaimed"
	JoinRejectedNotFound     = "join_rejected_not_found"
	JoinRejectedSlotOccupied = "join_rejected_slot_occupied"
	JoinRejectedPrimaryGone  = "join_rejected_primary_gone"
	JoinRejectedSelf         = "join_rejected_self"
	CreateFailed             = "create_failed"

	MessageRelayed         = "message_relayed"
	RelayDroppedUnassigned = "relay_dropped_unassigned"
	RelayDroppedNoPeer     = "relay_dropped_no_peer"
	PeerDisconnected       = "peer_disconnected"

	MessageMalformed   = "message_malformed"
	MessageUnknownType = "message_unknown_type"
	MessageNonText     = "message_non_text"
	Ping               = "ping"

	WSConnectionOpened   = "ws_connection_opened"
	WSConnectionClosed   = "ws_connection_closed"
	WSSendQueueOverflow  = "ws_send_queue_overflow"
	WSOriginRejected     = "ws_origin_rejected"
	HTTPOriginRejected   = "http_origin_rejected"
	StaticNotFound       = "static_not_found"
	TURNRESTIssued       = "turn_rest_credentials_issued"
	TURNRESTIssueFailure = "turn_rest_credentials_failed"
)

// Gauge names.
const (
	SessionsActive = "sessions_active"
)

// Metrics is a minimal, concurrency-safe counter and gauge registry.
//
// The zero value is ready to use.
type Metrics struct {
	mu     sync.Mutex
	m      map[string]uint64
	gauges map[string]int64
}

func New() *Metrics {
	return &Metrics{
		m:      make(map[string]uint64),
		gauges: make(map[string]int64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// SetGauge records the current value of a level-style metric.
func (m *Metrics) SetGauge(name string, v int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.gauges == nil {
		m.gauges = make(map[string]int64)
	}
	m.gauges[name] = v
	m.mu.Unlock()
}

func (m *Metrics) Gauge(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}

// GaugeSnapshot returns a copy of all gauges.
func (m *Metrics) GaugeSnapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.gauges))
	for k, v := range m.gauges {
		out[k] = v
	}
	return out
}
