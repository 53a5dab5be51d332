package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func fixedGenerator(t *testing.T, ttl time.Duration, now time.Time) *Generator {
	t.Helper()
	g, err := NewGenerator(Config{
		SharedSecret:   "shared-secret",
		TTL:            ttl,
		UsernamePrefix: "phonecam",
		Now:            func() time.Time { return now },
		NewID:          func() string { return "conn-1" },
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestIssue_DeterministicWithFixedTime(t *testing.T) {
	g := fixedGenerator(t, time.Hour, time.Unix(1_700_000_000, 0))

	creds, err := g.Issue("session123")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if want := time.Unix(1_700_003_600, 0).UTC(); !creds.Expires.Equal(want) {
		t.Fatalf("Expires: got %v, want %v", creds.Expires, want)
	}
	wantUsername := "1700003600:phonecam:session123"
	if creds.Username != wantUsername {
		t.Fatalf("Username: got %q, want %q", creds.Username, wantUsername)
	}
	if want := expectedCredential([]byte("shared-secret"), wantUsername); creds.Credential != want {
		t.Fatalf("Credential: got %q, want %q", creds.Credential, want)
	}
}

func TestIssue_CredentialIsBase64HMACSHA1(t *testing.T) {
	g := fixedGenerator(t, time.Second, time.Unix(0, 0))

	creds, err := g.IssueRandom()
	if err != nil {
		t.Fatalf("IssueRandom: %v", err)
	}
	if !strings.HasSuffix(creds.Username, ":phonecam:conn-1") {
		t.Fatalf("Username=%q", creds.Username)
	}

	decoded, err := base64.StdEncoding.DecodeString(creds.Credential)
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	if len(decoded) != sha1.Size {
		t.Fatalf("decoded length: got %d, want %d", len(decoded), sha1.Size)
	}
}

func TestIssue_RandomIDsDiffer(t *testing.T) {
	g, err := NewGenerator(Config{SharedSecret: "s", TTL: time.Minute, UsernamePrefix: "p"})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	a, err := g.IssueRandom()
	if err != nil {
		t.Fatalf("IssueRandom: %v", err)
	}
	b, err := g.IssueRandom()
	if err != nil {
		t.Fatalf("IssueRandom: %v", err)
	}
	if a.Username == b.Username {
		t.Fatalf("expected distinct usernames, got %q twice", a.Username)
	}
	if g.TTL() != time.Minute {
		t.Fatalf("TTL=%v", g.TTL())
	}
}

func TestIssue_RejectsBadID(t *testing.T) {
	g := fixedGenerator(t, time.Hour, time.Unix(0, 0))
	for _, id := range []string{"", "a:b"} {
		if _, err := g.Issue(id); !errors.Is(err, ErrBadID) {
			t.Fatalf("Issue(%q) err=%v, want %v", id, err, ErrBadID)
		}
	}
}

func TestNewGenerator_Validation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "no secret", cfg: Config{TTL: time.Hour, UsernamePrefix: "p"}, want: ErrNoSecret},
		{name: "zero ttl", cfg: Config{SharedSecret: "s", UsernamePrefix: "p"}, want: ErrBadTTL},
		{name: "sub-second ttl", cfg: Config{SharedSecret: "s", TTL: time.Millisecond, UsernamePrefix: "p"}, want: ErrBadTTL},
		{name: "empty prefix", cfg: Config{SharedSecret: "s", TTL: time.Hour}, want: ErrBadPrefix},
		{name: "colon prefix", cfg: Config{SharedSecret: "s", TTL: time.Hour, UsernamePrefix: "a:b"}, want: ErrBadPrefix},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewGenerator(tc.cfg); !errors.Is(err, tc.want) {
				t.Fatalf("err=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestApply_OnlyTouchesTURNEntries(t *testing.T) {
	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478?transport=udp", "turns:turn.example.com:5349"}},
	}
	creds := Credentials{Username: "1:p:x", Credential: "c2VjcmV0"}

	got := Apply(servers, creds)
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].Username != "" || got[0].Credential != nil {
		t.Fatalf("stun entry modified: %#v", got[0])
	}
	if got[1].Username != creds.Username || got[1].Credential != creds.Credential {
		t.Fatalf("turn entry not filled: %#v", got[1])
	}
	if servers[1].Username != "" {
		t.Fatalf("input mutated: %#v", servers[1])
	}
}

func expectedCredential(sharedSecret []byte, username string) string {
	mac := hmac.New(sha1.New, sharedSecret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
