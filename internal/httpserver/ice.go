package httpserver

import (
	"net/http"

	"github.com/pion/webrtc/v4"

	"github.com/phonecam/phonecam-signal/internal/metrics"
	"github.com/phonecam/phonecam-signal/internal/turnrest"
)

type iceResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// handleICE returns the ICE servers browsers should use. With TURN REST
// configured, every TURN entry carries freshly minted credentials.
func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	servers := s.cfg.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}

	if s.deps.TURN != nil {
		creds, err := s.deps.TURN.IssueRandom()
		if err != nil {
			s.deps.Metrics.Inc(metrics.TURNRESTIssueFailure)
			s.log.Error("turn rest credential issue failed", "err", err)
			WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "unable to issue TURN credentials"})
			return
		}
		s.deps.Metrics.Inc(metrics.TURNRESTIssued)
		servers = turnrest.Apply(servers, creds)
	}

	// Credentials are per request.
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, iceResponse{ICEServers: servers})
}
