// Package lex provides the quote- and angle-bracket-aware lexical helpers
// shared by the header and URI parsers: splitting comma/semicolon lists
// without breaking apart quoted-strings or name-addr URIs, and
// unescaping/escaping quoted-string content.
package lex

import "strings"

// SplitTop splits s on sep, ignoring occurrences of sep nested inside a
// quoted-string ("...", backslash-escaped) or an angle-bracketed URI
// (<...>). Used for comma-separated header value lists and for
// semicolon-separated parameter lists.
func SplitTop(s string, sep byte) []string {
	var out []string
	var depth int
	var inQuotes bool
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuotes:
			if c == '\\' && i+1 < len(s) {
				i++
				continue
			}
			if c == '"' {
				inQuotes = false
			}
		case c == '"':
			inQuotes = true
		case c == '<':
			depth++
		case c == '>':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// TrimLWS trims leading and trailing SIP linear whitespace (SP, HT, CR, LF).
func TrimLWS(s string) string {
	return strings.Trim(s, " \t\r\n")
}

// Unquote removes surrounding double quotes and resolves backslash
// escapes from a SIP quoted-string. If s is not quoted it is returned
// unchanged.
func Unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	b.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}

// Quote escapes and wraps s as a SIP quoted-string if it contains
// characters that require quoting (space, tab, quotes, backslashes,
// commas, semicolons); it
// always quotes when force is true.
func Quote(s string, force bool) string {
	needs := force
	if !needs {
		for i := 0; i < len(s); i++ {
			switch s[i] {
			case ' ', '\t', '"', '\\', ',', ';':
				needs = true
			}
			if needs {
				break
			}
		}
	}
	if !needs {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// IsToken reports whether s is a single RFC 2616 token (no separators or
// control characters).
func IsToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	switch {
	case c <= 32 || c == 127:
		return false
	case strings.IndexByte(`()<>@,;:\"/[]?={} `+"\t", c) >= 0:
		return false
	default:
		return true
	}
}

// SplitFields splits s on runs of SIP linear whitespace, honoring quoted
// strings so a quoted display-name with embedded spaces stays one field.
func SplitFields(s string) []string {
	var out []string
	var cur strings.Builder
	var inQuotes bool
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuotes:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
				continue
			}
			if c == '"' {
				inQuotes = false
			}
		case c == '"':
			inQuotes = true
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return out
}
