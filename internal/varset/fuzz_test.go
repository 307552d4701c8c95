package varset

import "testing"

func FuzzFind(f *testing.F) {
	f.Add("[a, [b,c], d]")
	f.Add(`[a\, b] [R: N1]`)
	f.Add(`Foo \[x] [N, tags=[a,b]`)
	f.Add("]][[")

	f.Fuzz(func(t *testing.T, s string) {
		span, ok := Find(s, '[', ']', 0)
		if !ok {
			return
		}
		if s[span.Start] != '[' || IsEscaped(s, span.Start) {
			t.Fatalf("span %+v does not start at an unescaped [ in %q", span, s)
		}
		if span.Closed() && (span.End <= span.Start || s[span.End] != ']') {
			t.Fatalf("span %+v does not end at ] in %q", span, s)
		}
		_ = span.Contents(s)
	})
}

func FuzzEscapeRoundTrip(f *testing.F) {
	f.Add("plain title")
	f.Add(`a [b] (c): d, e = +f -g \h`)

	f.Fuzz(func(t *testing.T, s string) {
		escaped := Escape(s)
		if got := Unescape(escaped); got != s {
			t.Fatalf("Unescape(Escape(%q)) = %q", s, got)
		}
		if _, ok := Find(escaped, '[', ']', 0); ok {
			t.Fatalf("escaped %q still contains a bracket set", escaped)
		}
	})
}
