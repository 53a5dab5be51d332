package sigproto

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantType MessageType
		wantErr  bool
	}{
		{name: "create", in: `{"type":"create-session"}`, wantType: TypeCreateSession},
		{name: "join string code", in: `{"type":"join-session","code":"482193"}`, wantType: TypeJoinSession},
		{name: "join null code", in: `{"type":"join-session","code":null}`, wantType: TypeJoinSession},
		{name: "join object code", in: `{"type":"join-session","code":{}}`, wantType: TypeJoinSession},
		{name: "offer with object code", in: `{"type":"offer","code":{"lang":"go"},"sdp":{"type":"offer","sdp":"v=0"}}`, wantType: TypeOffer},
		{name: "answer with array code", in: `{"type":"answer","code":[1,2]}`, wantType: TypeAnswer},
		{name: "offer keeps extra fields out of envelope", in: `{"type":"offer","sdp":{"type":"offer","sdp":"v=0"}}`, wantType: TypeOffer},
		{name: "unknown type still parses", in: `{"type":"bogus"}`, wantType: "bogus"},
		{name: "leading whitespace", in: "  \n{\"type\":\"ping\"}", wantType: TypePing},
		{name: "missing type", in: `{"code":"1"}`, wantErr: true},
		{name: "not json", in: `hello`, wantErr: true},
		{name: "array", in: `[]`, wantErr: true},
		{name: "number", in: `5`, wantErr: true},
		{name: "empty", in: ``, wantErr: true},
		{name: "type not string", in: `{"type":5}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, err := Parse([]byte(tc.in))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) succeeded with %+v, want error", tc.in, env)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.in, err)
			}
			if env.Type != tc.wantType {
				t.Fatalf("type=%q, want %q", env.Type, tc.wantType)
			}
		})
	}
}

func TestParse_NotObjectSentinel(t *testing.T) {
	if _, err := Parse([]byte(`"create-session"`)); !errors.Is(err, ErrNotObject) {
		t.Fatalf("err=%v, want %v", err, ErrNotObject)
	}
	if _, err := Parse([]byte(`{}`)); !errors.Is(err, ErrMissingType) {
		t.Fatalf("err=%v, want %v", err, ErrMissingType)
	}
}

func TestJoinCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `{"type":"join-session","code":"482193"}`, want: "482193"},
		{in: `{"type":"join-session","code":482193}`, want: "482193"},
		{in: `{"type":"join-session","code":482193.0}`, want: "482193"},
		{in: `{"type":"join-session","code":4.82193e5}`, want: "482193"},
		{in: `{"type":"join-session","code":4821.5}`, want: "4821.5"},
		{in: `{"type":"join-session","code":-0}`, want: "0"},
		{in: `{"type":"join-session","code":" 482193"}`, want: " 482193"},
		{in: `{"type":"join-session","code":""}`, want: ""},
		{in: `{"type":"join-session","code":null}`, want: ""},
		{in: `{"type":"join-session","code":true}`, want: ""},
		{in: `{"type":"join-session","code":{"v":"482193"}}`, want: ""},
		{in: `{"type":"join-session","code":["482193"]}`, want: ""},
		{in: `{"type":"join-session","code":1e400}`, want: ""},
		{in: `{"type":"join-session"}`, want: ""},
		{in: `not json`, want: ""},
	}
	for _, tc := range tests {
		if got := JoinCode([]byte(tc.in)); got != tc.want {
			t.Errorf("JoinCode(%s)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMessageType_IsRelayed(t *testing.T) {
	for _, mt := range []MessageType{TypeOffer, TypeAnswer, TypeICECandidate} {
		if !mt.IsRelayed() {
			t.Fatalf("%q must be relayed", mt)
		}
	}
	for _, mt := range []MessageType{TypeCreateSession, TypeJoinSession, TypePing, TypePong, "candidate", ""} {
		if mt.IsRelayed() {
			t.Fatalf("%q must not be relayed", mt)
		}
	}
}

func TestOutboundEncoding(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want map[string]string
	}{
		{name: "session-created", got: SessionCreated("004211"), want: map[string]string{"type": "session-created", "code": "004211"}},
		{name: "session-joined", got: SessionJoined("482193"), want: map[string]string{"type": "session-joined", "code": "482193"}},
		{name: "peer-joined", got: PeerJoined(), want: map[string]string{"type": "peer-joined"}},
		{name: "peer-disconnected", got: PeerDisconnected("primary"), want: map[string]string{"type": "peer-disconnected", "role": "primary"}},
		{name: "error", got: Error(ErrTextSessionNotFound), want: map[string]string{"type": "error", "message": ErrTextSessionNotFound}},
		{name: "pong", got: Pong(), want: map[string]string{"type": "pong"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got map[string]string
			if err := json.Unmarshal(tc.got, &got); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.got, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("%s=%q, want %q (frame %s)", k, got[k], v, tc.got)
				}
			}
		})
	}
}
