package sigproto

import (
	"encoding/json"
	"testing"
)

func FuzzParse(f *testing.F) {
	f.Add([]byte(`{"type":"create-session"}`))
	f.Add([]byte(`{"type":"join-session","code":"482193"}`))
	f.Add([]byte(`{"type":"join-session","code":482193}`))
	f.Add([]byte(`{"type":"offer","sdp":{"type":"offer","sdp":"v=0"}}`))
	f.Add([]byte(`{"type":"ice-candidate","candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host","sdpMid":"0"}}`))
	f.Add([]byte(`{"type":"ping"}`))

	f.Add([]byte(`{"type":"bogus"}`))
	f.Add([]byte(`{"type":"ping"}{"type":"ping"}`))
	f.Add([]byte(`{"type":"join-session","code":1e400}`))
	f.Add([]byte(`{"type":"offer","code":{"lang":"go"}}`))
	f.Add([]byte(`[]`))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		if JoinCode(data) != JoinCode(data) {
			t.Fatalf("non-deterministic join code for %q", data)
		}

		env1, err1 := Parse(data)
		env2, err2 := Parse(data)
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("non-deterministic parse result: err1=%v err2=%v", err1, err2)
		}
		if err1 != nil {
			return
		}
		if env1 != env2 {
			t.Fatalf("non-deterministic parse output: %#v vs %#v", env1, env2)
		}
		if env1.Type == "" {
			t.Fatalf("successful parse produced empty type")
		}

		// Re-encoding the envelope must parse back to the same routing view.
		b, err := json.Marshal(env1)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		round, err := Parse(b)
		if err != nil {
			t.Fatalf("round-trip parse: %v (json %s)", err, b)
		}
		if round != env1 {
			t.Fatalf("round-trip mismatch: %#v vs %#v", round, env1)
		}
	})
}
