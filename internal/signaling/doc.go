// Package signaling is the WebSocket gateway in front of the session broker.
//
// Each accepted connection gets a reader goroutine that hands text frames to
// the dispatcher and a writer goroutine that drains a bounded send queue and
// keeps the connection alive with pings. When either side stops, the
// connection is closed and the broker is told it disconnected.
package signaling
