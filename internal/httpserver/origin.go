package httpserver

import (
	"net/http"
	"strings"

	"github.com/phonecam/phonecam-signal/internal/metrics"
)

func (s *Server) withOriginPolicy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, ok := s.deps.Origins.Check(r)
		if !ok {
			s.deps.Metrics.Inc(metrics.HTTPOriginRejected)
			s.log.Warn("http origin rejected", "origin", r.Header.Get("Origin"), "host", r.Host, "path", r.URL.Path)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if r.Header.Get("Origin") == "" {
			next(w, r)
			return
		}

		// CORS headers only matter for cross-origin browser clients, such as
		// a page served from a dev server on another port.
		w.Header().Set("Access-Control-Allow-Origin", o.String())
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
			if requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers")); requestHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
			}
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}
