// Package origin parses browser Origin headers and decides whether a
// cross-origin request may reach the broker.
package origin

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrEmpty       = errors.New("origin: empty")
	ErrScheme      = errors.New("origin: scheme must be http or https")
	ErrNotAnOrigin = errors.New("origin: must be scheme://host[:port] with no path, query, fragment or userinfo")
	ErrPort        = errors.New("origin: invalid port")
)

// Origin is a normalized serialized origin. The zero Port means the
// scheme's default port. Opaque origins ("null") have only Opaque set.
type Origin struct {
	Scheme   string
	Hostname string
	Port     uint16
	Opaque   bool
}

// Parse validates and normalizes an Origin header value. Scheme and host
// are lower-cased and default ports dropped.
func Parse(raw string) (Origin, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return Origin{}, ErrEmpty
	case "null":
		return Origin{Opaque: true}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Origin{}, fmt.Errorf("%w: %v", ErrNotAnOrigin, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Origin{}, ErrScheme
	}
	if u.Opaque != "" || u.Host == "" || u.User != nil || u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return Origin{}, ErrNotAnOrigin
	}
	if u.Path != "" && u.Path != "/" {
		return Origin{}, ErrNotAnOrigin
	}
	return fromAuthority(scheme, u.Host)
}

func fromAuthority(scheme, authority string) (Origin, error) {
	// url.Parse accepts "::1" as a host; browsers never send unbracketed IPv6.
	if !strings.HasPrefix(authority, "[") && strings.Count(authority, ":") > 1 {
		return Origin{}, ErrNotAnOrigin
	}
	u := url.URL{Host: authority}
	hostname := strings.ToLower(u.Hostname())
	if hostname == "" || strings.ContainsAny(hostname, "/?#@% ") {
		return Origin{}, ErrNotAnOrigin
	}

	o := Origin{Scheme: scheme, Hostname: hostname}
	if p := u.Port(); p != "" || strings.HasSuffix(authority, ":") {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n == 0 {
			return Origin{}, ErrPort
		}
		o.Port = uint16(n)
	}
	if o.Port == defaultPort(scheme) {
		o.Port = 0
	}
	return o, nil
}

func defaultPort(scheme string) uint16 {
	if scheme == "https" {
		return 443
	}
	return 80
}

// Host returns host[:port] with IPv6 literals bracketed.
func (o Origin) Host() string {
	if o.Opaque {
		return ""
	}
	h := o.Hostname
	if strings.Contains(h, ":") {
		h = "[" + h + "]"
	}
	if o.Port != 0 {
		h += ":" + strconv.Itoa(int(o.Port))
	}
	return h
}

func (o Origin) String() string {
	if o.Opaque {
		return "null"
	}
	return o.Scheme + "://" + o.Host()
}

// Policy is an origin allowlist. An empty list means same-host only.
type Policy struct {
	any     bool
	allowed map[string]struct{}
}

// NewPolicy normalizes each entry of allowed. "*" allows every origin and
// "null" allows opaque origins.
func NewPolicy(allowed []string) (*Policy, error) {
	p := &Policy{allowed: make(map[string]struct{}, len(allowed))}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "*" {
			p.any = true
			continue
		}
		o, err := Parse(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed origin %q: %w", entry, err)
		}
		p.allowed[o.String()] = struct{}{}
	}
	return p, nil
}

// Allows reports whether o may access a server addressed as requestHost.
//
// Same-host matching ignores the scheme so that a TLS-terminating proxy in
// front of a plain HTTP listener still matches an https:// origin.
func (p *Policy) Allows(o Origin, requestHost string) bool {
	if p != nil && (p.any || len(p.allowed) > 0) {
		if p.any {
			return true
		}
		_, ok := p.allowed[o.String()]
		return ok
	}
	if o.Opaque {
		return false
	}
	req, err := fromAuthority(o.Scheme, strings.TrimSpace(requestHost))
	if err != nil {
		return false
	}
	return req.Host() == o.Host()
}

// Check applies the policy to r. Requests without an Origin header are
// not browser cross-origin requests and pass with an empty origin. More
// than one Origin header is rejected.
func (p *Policy) Check(r *http.Request) (Origin, bool) {
	values := r.Header.Values("Origin")
	switch len(values) {
	case 0:
		return Origin{}, true
	case 1:
	default:
		return Origin{}, false
	}
	o, err := Parse(values[0])
	if err != nil {
		return Origin{}, false
	}
	return o, p.Allows(o, r.Host)
}
