package origin

import (
	"strings"
	"testing"
)

func FuzzParse(f *testing.F) {
	f.Add("HTTPS://Example.COM:443")
	f.Add("http://010.0.0.1")
	f.Add("http://[::FFFF:192.0.2.1]")
	f.Add("null")

	f.Add("")
	f.Add("   ")
	f.Add("ftp://example.com")
	f.Add("https://example.com/path")
	f.Add("https://example.com?query")
	f.Add("https://example.com#frag")
	f.Add("https://example.com,https://evil.example.com")

	f.Fuzz(func(t *testing.T, raw string) {
		o, err := Parse(raw)
		if err != nil {
			return
		}
		s := o.String()
		if strings.ContainsAny(s, " \t\r\n?#") {
			t.Fatalf("normalized origin %q contains forbidden characters", s)
		}

		// Normalization is idempotent.
		again, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) of normalized %q failed: %v", s, raw, err)
		}
		if again != o {
			t.Fatalf("normalization not idempotent: %#v vs %#v", again, o)
		}

		if !o.Opaque {
			p, _ := NewPolicy(nil)
			if !p.Allows(o, o.Host()) {
				t.Fatalf("origin %q not allowed on its own host %q", s, o.Host())
			}
		}
	})
}
