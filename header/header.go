// Package header implements the SIP header model: a common [Header]
// interface, the canonical/compact name table, and one Go type per
// parsing "shape" from RFC 3261's per-header grammars (rather than one
// type per header name — most of the ~45 names share an identical wire
// shape, so the shape is what earns a type).
package header

import (
	"fmt"
	"io"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/lex"
	"github.com/new-neon/sippet/params"
)

// Name is a header name as it appears on the wire. Comparisons and the
// canonical/compact mapping are case-insensitive.
type Name string

// Values is the parameter multimap attached to header elements.
type Values = *params.Params

// Header is implemented by every concrete header type. CanonicName
// always returns the long form; CompactName returns the short form
// where RFC 3261 S. 7.3.3 defines one, else the canonical form.
type Header interface {
	CanonicName() Name
	CompactName() Name
	RenderTo(w io.Writer) (int, error)
	RenderValue() string
	Clone() Header
	Equal(other Header) bool
	fmt.Stringer
}

// compactNames maps the canonical long-form name to its single-letter
// short form, per RFC 3261 S. 7.3.3 and S. 20.
var compactNames = map[Name]Name{
	"Call-ID":         "i",
	"Contact":         "m",
	"Content-Encoding": "e",
	"Content-Length":  "l",
	"Content-Type":    "c",
	"From":            "f",
	"Subject":         "s",
	"Supported":       "k",
	"To":              "t",
	"Via":             "v",
}

// canonicalFixups corrects textproto.CanonicalMIMEHeaderKey-style
// title-casing for names whose canonical spelling deviates from simple
// word capitalization.
var canonicalFixups = map[string]Name{
	"call-id":          "Call-ID",
	"cseq":             "CSeq",
	"mime-version":     "MIME-Version",
	"www-authenticate": "WWW-Authenticate",
}

// compactToCanonic is the reverse of compactNames, built once at init.
var compactToCanonic = map[Name]Name{}

func init() {
	for canon, compact := range compactNames {
		compactToCanonic[compact] = canon
	}
}

// Canonic returns the canonical long-form spelling of a header name as
// it would appear on the wire (e.g. "v" or "via" -> "Via").
func Canonic(name string) Name {
	lower := strings.ToLower(name)
	if canon, ok := canonicalFixups[lower]; ok {
		return canon
	}
	if canon, ok := compactToCanonic[Name(lower)]; ok {
		return canon
	}
	if len(lower) == 0 {
		return ""
	}
	parts := strings.Split(lower, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return Name(strings.Join(parts, "-"))
}

// CompactOf returns the compact form for a canonical name, or the
// canonical name itself if RFC 3261 defines none.
func CompactOf(canon Name) Name {
	if c, ok := compactNames[canon]; ok {
		return c
	}
	return canon
}

func (n Name) Equal(other Name) bool { return strings.EqualFold(string(n), string(other)) }

// Headers is an ordered, multi-valued collection of parsed headers,
// indexed by canonical name. Insertion order is preserved both
// globally (for serialization) and per-name (e.g. topmost Via first).
type Headers struct {
	order []Header
	byName map[Name][]Header
}

// NewHeaders returns an empty header list.
func NewHeaders() *Headers {
	return &Headers{byName: make(map[Name][]Header)}
}

// Add appends h, preserving arrival order.
func (h *Headers) Add(hdr Header) {
	if h.byName == nil {
		h.byName = make(map[Name][]Header)
	}
	h.order = append(h.order, hdr)
	name := hdr.CanonicName()
	h.byName[name] = append(h.byName[name], hdr)
}

// All returns every header in wire order.
func (h *Headers) All() []Header {
	if h == nil {
		return nil
	}
	return h.order
}

// Get returns all headers with the given canonical or compact name.
func (h *Headers) Get(name string) []Header {
	if h == nil {
		return nil
	}
	return h.byName[Canonic(name)]
}

// First returns the first header with the given name, if any.
func (h *Headers) First(name string) (Header, bool) {
	vs := h.Get(name)
	if len(vs) == 0 {
		return nil, false
	}
	return vs[0], true
}

// Remove deletes every header with the given name.
func (h *Headers) Remove(name string) {
	if h == nil {
		return
	}
	canon := Canonic(name)
	delete(h.byName, canon)
	out := h.order[:0]
	for _, hdr := range h.order {
		if hdr.CanonicName() != canon {
			out = append(out, hdr)
		}
	}
	h.order = out
}

// Clone deep-copies the header list.
func (h *Headers) Clone() *Headers {
	if h == nil {
		return nil
	}
	h2 := NewHeaders()
	for _, hdr := range h.order {
		h2.Add(hdr.Clone())
	}
	return h2
}

// Len returns the total number of headers.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.order)
}

// RenderTo writes every header, one "Name: value" line per header,
// CRLF-terminated, in wire order, using the canonical long-form name.
func (h *Headers) RenderTo(w io.Writer) (int, error) {
	var total int
	for _, hdr := range h.All() {
		n, err := io.WriteString(w, string(hdr.CanonicName())+": "+hdr.RenderValue()+"\r\n")
		total += n
		if err != nil {
			return total, errtrace.Wrap(err)
		}
	}
	return total, nil
}

// Equal compares two header lists pairwise in wire order, using each
// header's own Header.Equal.
func (h *Headers) Equal(other *Headers) bool {
	if h.Len() != other.Len() {
		return false
	}
	for i, hdr := range h.All() {
		if !hdr.Equal(other.order[i]) {
			return false
		}
	}
	return true
}

// splitElements splits a raw multi-valued header field body into its
// comma-separated elements, honoring quoted strings and angle-addrs.
func splitElements(raw string) []string {
	parts := lex.SplitTop(raw, ',')
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = lex.TrimLWS(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitParams splits a trailing ";name=value" run off an element,
// returning the head and the parsed parameter list.
func splitParams(raw string) (string, *params.Params) {
	parts := lex.SplitTop(raw, ';')
	p := params.New()
	for _, raw := range parts[1:] {
		raw = lex.TrimLWS(raw)
		if raw == "" {
			continue
		}
		if i := strings.IndexByte(raw, '='); i >= 0 {
			p.Set(lex.TrimLWS(raw[:i]), lex.Unquote(lex.TrimLWS(raw[i+1:])))
		} else {
			p.SetFlag(raw)
		}
	}
	return lex.TrimLWS(parts[0]), p
}

func renderParams(b *strings.Builder, p *params.Params) {
	if p == nil {
		return
	}
	for _, name := range p.Names() {
		b.WriteByte(';')
		b.WriteString(name)
		if p.HasValue(name) {
			v, _ := p.Get(name)
			b.WriteByte('=')
			b.WriteString(lex.Quote(v, false))
		}
	}
}

func paramsEqual(a, b *params.Params) bool {
	if a == nil {
		a = params.New()
	}
	if b == nil {
		b = params.New()
	}
	return a.Equal(b)
}
