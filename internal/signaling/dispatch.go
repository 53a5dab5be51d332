package signaling

import (
	"errors"

	"github.com/gorilla/websocket"

	"github.com/phonecam/phonecam-signal/internal/broker"
	"github.com/phonecam/phonecam-signal/internal/metrics"
	"github.com/phonecam/phonecam-signal/internal/sigproto"
)

// dispatch routes one inbound frame. Frames that are not text, not JSON
// objects or carry an unknown type are dropped without a reply.
func (s *Server) dispatch(c *wsConn, msgType int, data []byte) {
	if msgType != websocket.TextMessage {
		s.metrics.Inc(metrics.MessageNonText)
		return
	}

	env, err := sigproto.Parse(data)
	if err != nil {
		s.metrics.Inc(metrics.MessageMalformed)
		s.log.Debug("dropping malformed frame", "conn_id", c.id, "err", err)
		return
	}

	if env.Type.IsRelayed() {
		s.broker.Relay(c, data)
		return
	}

	switch env.Type {
	case sigproto.TypeCreateSession:
		if _, err := s.broker.Create(c); err != nil {
			s.reply(c, sigproto.Error(sigproto.ErrTextCreateFailed))
		}

	case sigproto.TypeJoinSession:
		code := sigproto.JoinCode(data)
		if err := s.broker.Join(code, c); err != nil {
			s.log.Debug("join rejected", "conn_id", c.id, "code", code, "err", err)
			s.reply(c, sigproto.Error(joinErrorText(err)))
		}

	case sigproto.TypePing:
		s.metrics.Inc(metrics.Ping)
		s.reply(c, sigproto.Pong())

	default:
		s.metrics.Inc(metrics.MessageUnknownType)
		s.log.Debug("dropping frame with unknown type", "conn_id", c.id, "type", string(env.Type))
	}
}

func (s *Server) reply(c *wsConn, data []byte) {
	if err := c.Send(data); err != nil {
		s.log.Debug("send failed", "conn_id", c.id, "err", err)
	}
}

func joinErrorText(err error) string {
	switch {
	case errors.Is(err, broker.ErrSessionNotFound):
		return sigproto.ErrTextSessionNotFound
	case errors.Is(err, broker.ErrSlotOccupied):
		return sigproto.ErrTextSlotOccupied
	case errors.Is(err, broker.ErrPrimaryGone):
		return sigproto.ErrTextPrimaryGone
	case errors.Is(err, broker.ErrSelfJoin):
		return sigproto.ErrTextSelfJoin
	default:
		return sigproto.ErrTextSessionNotFound
	}
}
