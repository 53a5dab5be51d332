// Package turnrest mints coturn-compatible ephemeral TURN credentials
// (the "TURN REST API" scheme):
//
//	username   = <unix_expiry>:<prefix>:<id>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// coturn verifies them with use-auth-secret and the same static-auth-secret.
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

var (
	ErrNoSecret  = errors.New("turnrest: shared secret is required")
	ErrBadTTL    = errors.New("turnrest: TTL must be > 0")
	ErrBadPrefix = errors.New("turnrest: username prefix must be non-empty and contain no ':'")
	ErrBadID     = errors.New("turnrest: id must be non-empty and contain no ':'")
)

type Config struct {
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string

	// Now and NewID default to time.Now and a random UUID.
	Now   func() time.Time
	NewID func() string
}

// Generator issues credentials. It is safe for concurrent use.
type Generator struct {
	secret []byte
	ttl    int64
	prefix string
	now    func() time.Time
	newID  func() string
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, ErrNoSecret
	}
	ttl := int64(cfg.TTL / time.Second)
	if ttl <= 0 {
		return nil, ErrBadTTL
	}
	if cfg.UsernamePrefix == "" || strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, ErrBadPrefix
	}
	g := &Generator{
		secret: []byte(cfg.SharedSecret),
		ttl:    ttl,
		prefix: cfg.UsernamePrefix,
		now:    cfg.Now,
		newID:  cfg.NewID,
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.newID == nil {
		g.newID = uuid.NewString
	}
	return g, nil
}

type Credentials struct {
	Username   string
	Credential string
	Expires    time.Time
}

// Issue mints credentials bound to id.
func (g *Generator) Issue(id string) (Credentials, error) {
	if id == "" || strings.Contains(id, ":") {
		return Credentials{}, ErrBadID
	}
	expiry := g.now().UTC().Unix() + g.ttl
	username := fmt.Sprintf("%d:%s:%s", expiry, g.prefix, id)
	return Credentials{
		Username:   username,
		Credential: Sign(g.secret, username),
		Expires:    time.Unix(expiry, 0).UTC(),
	}, nil
}

// IssueRandom mints credentials under a fresh random id.
func (g *Generator) IssueRandom() (Credentials, error) {
	return g.Issue(g.newID())
}

// TTL returns the credential lifetime.
func (g *Generator) TTL() time.Duration {
	return time.Duration(g.ttl) * time.Second
}

// Sign returns the coturn password for username.
func Sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Apply returns a copy of servers with creds set on every entry that carries
// a turn: or turns: URL. STUN-only entries are returned unchanged.
func Apply(servers []webrtc.ICEServer, creds Credentials) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(servers))
	for i, s := range servers {
		s.URLs = append([]string(nil), s.URLs...)
		if hasTURNURL(s) {
			s.Username = creds.Username
			s.Credential = creds.Credential
		}
		out[i] = s
	}
	return out
}

func hasTURNURL(s webrtc.ICEServer) bool {
	for _, u := range s.URLs {
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}
