// Package varset scans bracketed variable sets (option groups) inside a single
// content spec line. Every routine is escape-aware: a delimiter preceded by an
// unescaped backslash is literal text.
package varset

import "strings"

// Escapable lists the characters a backslash may escape in a content spec line.
const Escapable = `[]():,=+-\`

// Span is a delimiter-bounded region of a line. Start and End are byte offsets of
// the opening and closing delimiters. End is -1 when the set is never closed.
type Span struct {
	Start int
	End   int
}

// Closed reports whether the closing delimiter was found.
func (s Span) Closed() bool { return s.End >= 0 }

// Text returns the span including its delimiters. An unclosed span runs to the end of line.
func (s Span) Text(line string) string {
	if !s.Closed() {
		return line[s.Start:]
	}
	return line[s.Start : s.End+1]
}

// Contents returns the text between the delimiters.
func (s Span) Contents(line string) string {
	if !s.Closed() {
		return line[s.Start+1:]
	}
	return line[s.Start+1 : s.End]
}

// IsEscaped reports whether the byte at i is preceded by an odd number of backslashes.
func IsEscaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// Find returns the first balanced span delimited by open/close at or after from.
// Nested spans of the same pair are skipped, so "[a, [b], c]" yields the outer span.
// ok is false when no opening delimiter exists. A span whose closing delimiter is
// missing is returned with End == -1; callers treat that as a soft error.
func Find(s string, open, close byte, from int) (span Span, ok bool) {
	start := -1
	depth := 0
	for i := max(from, 0); i < len(s); i++ {
		c := s[i]
		if c != open && c != close {
			continue
		}
		if IsEscaped(s, i) {
			continue
		}
		if c == open {
			if start < 0 {
				start = i
			}
			depth++
			continue
		}
		if start < 0 {
			// stray closer before any opener
			continue
		}
		depth--
		if depth == 0 {
			return Span{Start: start, End: i}, true
		}
	}
	if start < 0 {
		return Span{}, false
	}
	return Span{Start: start, End: -1}, true
}

// FindAll returns every top-level span in s, in order. Scanning stops at the first
// unclosed span, which is included as the last element.
func FindAll(s string, open, close byte, from int) []Span {
	var spans []Span
	for {
		span, ok := Find(s, open, close, from)
		if !ok {
			return spans
		}
		spans = append(spans, span)
		if !span.Closed() {
			return spans
		}
		from = span.End + 1
	}
}

// IndexUnescaped returns the index of the first unescaped c at or after from that
// sits outside any [] or () group, or -1.
func IndexUnescaped(s string, c byte, from int) int {
	depth := 0
	for i := max(from, 0); i < len(s); i++ {
		if IsEscaped(s, i) {
			continue
		}
		switch s[i] {
		case '[', '(':
			if s[i] != c {
				depth++
				continue
			}
		case ']', ')':
			if s[i] != c {
				if depth > 0 {
					depth--
				}
				continue
			}
		}
		if s[i] == c && depth == 0 {
			return i
		}
	}
	return -1
}

// Split splits s on unescaped sep characters that are not nested inside [] or ()
// groups. Each part is trimmed; empty parts are dropped.
func Split(s string, sep byte) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		if IsEscaped(s, i) {
			continue
		}
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = appendPart(parts, s[last:i])
				last = i + 1
			}
		}
	}
	return appendPart(parts, s[last:])
}

func appendPart(parts []string, p string) []string {
	p = strings.TrimSpace(p)
	if p == "" {
		return parts
	}
	return append(parts, p)
}

// Unescape removes the backslash in front of every escapable character.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte(Escapable, s[i+1]) >= 0 {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Escape backslash-escapes every escapable character in s.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Escapable, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
