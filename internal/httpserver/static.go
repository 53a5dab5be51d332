package httpserver

import (
	"net/http"
	"os"

	"github.com/gorilla/websocket"

	"github.com/phonecam/phonecam-signal/internal/metrics"
)

// handleIndex serves the client page. The file is read on every request so
// it can be edited without a restart. A WebSocket upgrade on "/" goes to the
// signaling gateway, which lets the page and the socket share one URL.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.deps.Signaling != nil && websocket.IsWebSocketUpgrade(r) {
		s.deps.Signaling.ServeHTTP(w, r)
		return
	}

	body, err := os.ReadFile(s.cfg.IndexFile)
	if err != nil {
		s.log.Warn("index file unavailable", "path", s.cfg.IndexFile, "err", err)
		s.notFound(w)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) notFound(w http.ResponseWriter) {
	s.deps.Metrics.Inc(metrics.StaticNotFound)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Not found"))
}
