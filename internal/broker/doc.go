// Package broker pairs a primary and a secondary connection under a short
// numeric code and relays opaque signaling frames between them.
//
// All session state lives in a single Store guarded by one mutex. The
// broker never inspects relayed payloads; it only knows which connection
// occupies which slot of which session.
package broker
