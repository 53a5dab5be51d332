// Package sigproto defines the JSON text-frame protocol spoken between
// browser clients and the pairing broker.
//
// Every frame is a single JSON object with a "type" discriminant. Inbound
// frames are parsed just far enough to route them; relayed frames are never
// decoded past the discriminant and are forwarded byte-for-byte.
package sigproto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

type MessageType string

// Client -> broker.
const (
	TypeCreateSession MessageType = "create-session"
	TypeJoinSession   MessageType = "join-session"
	TypeOffer         MessageType = "offer"
	TypeAnswer        MessageType = "answer"
	TypeICECandidate  MessageType = "ice-candidate"
	TypePing          MessageType = "ping"
)

// Broker -> client.
const (
	TypeSessionCreated   MessageType = "session-created"
	TypeSessionJoined    MessageType = "session-joined"
	TypePeerJoined       MessageType = "peer-joined"
	TypePeerDisconnected MessageType = "peer-disconnected"
	TypeError            MessageType = "error"
	TypePong             MessageType = "pong"
)

// User-facing error texts.
const (
	ErrTextSessionNotFound = "Session not found. Check the code and try again."
	ErrTextSlotOccupied    = "Session already has a mobile device connected."
	ErrTextPrimaryGone     = "Laptop disconnected. Ask them to create a new session."
	ErrTextSelfJoin        = "This device created the session. Join from another device."
	ErrTextCreateFailed    = "Unable to create a session right now. Try again."
)

var (
	ErrNotObject   = errors.New("sigproto: frame is not a JSON object")
	ErrMissingType = errors.New("sigproto: frame has no type")
)

// IsRelayed reports whether frames of type t are forwarded opaquely to the
// paired peer.
func (t MessageType) IsRelayed() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	default:
		return false
	}
}

// Envelope is the routing view of an inbound frame. Only the discriminant is
// decoded; other members, including "code", never make a frame malformed.
type Envelope struct {
	Type MessageType `json:"type"`
}

// JoinCode extracts the session code from a join-session frame. A JSON
// string is used as-is and a JSON number is rendered in decimal, so
// {"code":"482193"}, {"code":482193} and {"code":482193.0} all name the same
// session. Any other value, or a missing member, yields "".
func JoinCode(data []byte) string {
	var frame struct {
		Code json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return ""
	}
	raw := bytes.TrimSpace(frame.Code)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return ""
		}
		if f == 0 {
			return "0"
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return ""
	}
}

// Parse decodes the routing envelope of an inbound frame. Unknown fields are
// ignored since relayed payloads carry arbitrary members.
func Parse(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, ErrNotObject
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

type outbound struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code,omitempty"`
	Role    string      `json:"role,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (o outbound) encode() []byte {
	// All fields are strings, so Marshal cannot fail.
	b, _ := json.Marshal(o)
	return b
}

func SessionCreated(code string) []byte {
	return outbound{Type: TypeSessionCreated, Code: code}.encode()
}

func SessionJoined(code string) []byte {
	return outbound{Type: TypeSessionJoined, Code: code}.encode()
}

func PeerJoined() []byte {
	return outbound{Type: TypePeerJoined}.encode()
}

// PeerDisconnected tells the remaining peer which role vacated the session.
func PeerDisconnected(role string) []byte {
	return outbound{Type: TypePeerDisconnected, Role: role}.encode()
}

func Error(message string) []byte {
	return outbound{Type: TypeError, Message: message}.encode()
}

func Pong() []byte {
	return outbound{Type: TypePong}.encode()
}
