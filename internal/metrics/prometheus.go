package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	eventsMetricName = "phonecam_signal_events_total"
	gaugeMetricName  = "phonecam_signal_"
)

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

// PrometheusHandler exposes Metrics in Prometheus' text exposition format.
//
// Counters are exported as a single metric with an `event` label; each gauge
// becomes its own metric named phonecam_signal_<gauge>.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		counters := m.Snapshot()
		gauges := m.GaugeSnapshot()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintf(w, "# HELP %s Internal event counters.\n", eventsMetricName)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", eventsMetricName)
		for _, k := range sortedKeys(counters) {
			_, _ = fmt.Fprintf(w, "%s{event=\"%s\"} %d\n", eventsMetricName, labelEscaper.Replace(k), counters[k])
		}

		for _, k := range sortedKeys(gauges) {
			name := gaugeMetricName + k
			_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", name)
			_, _ = fmt.Fprintf(w, "%s %d\n", name, gauges[k])
		}
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
