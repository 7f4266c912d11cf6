package header

import (
	"io"
	"strconv"
	"strings"
	"time"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/lex"
	"github.com/new-neon/sippet/params"
	"github.com/new-neon/sippet/uri"
)

// specialAddrParams are the parameters whose presence/value on either
// side of an Equal comparison must match; other parameters present on
// only one side are ignored (RFC 3261 S. 19.1.4 as applied to
// name-addr elements).
var specialAddrParams = map[string]bool{
	"tag":     true,
	"q":       true,
	"expires": true,
}

// NameAddr is a display-name + URI + parameters element, the shared
// grammar behind From, To, Contact, Record-Route, Route, Reply-To.
type NameAddr struct {
	DisplayName string
	URI         uri.URI
	Params      *params.Params
}

// ParseNameAddr parses one contact-like element. Presence of '<' in
// the tail switches to name-addr form (display-name then <URI>);
// otherwise the URI runs to the first ';' or end of element (the
// addr-spec form), and any trailing params belong to the element
// rather than the URI, per RFC 3261's addr-spec grammar note.
func ParseNameAddr(raw string) (NameAddr, error) {
	raw = lex.TrimLWS(raw)
	var na NameAddr

	if i := strings.IndexByte(raw, '<'); i >= 0 {
		na.DisplayName = lex.Unquote(strings.TrimSpace(raw[:i]))
		rest := raw[i+1:]
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			end = len(rest)
		}
		u, err := uri.Parse(rest[:end])
		if err != nil {
			return NameAddr{}, err
		}
		na.URI = u
		_, na.Params = splitParams(rest[end+1:])
		return na, nil
	}

	// addr-spec form: no angle brackets, so the URI parser takes any
	// ';params' as its own; they belong to the element, so move them.
	u, err := uri.Parse(raw)
	if err != nil {
		return NameAddr{}, err
	}
	na.URI = u
	na.Params = params.New()
	if sip, ok := u.(*uri.SIP); ok {
		na.Params = sip.Params
		sip.Params = params.New()
	}
	return na, nil
}

func (na NameAddr) render(b *strings.Builder) {
	if na.DisplayName != "" {
		b.WriteString(lex.Quote(na.DisplayName, true))
		b.WriteByte(' ')
	}
	b.WriteByte('<')
	if na.URI != nil {
		b.WriteString(na.URI.String())
	}
	b.WriteByte('>')
	renderParams(b, na.Params)
}

func (na NameAddr) String() string {
	var b strings.Builder
	na.render(&b)
	return b.String()
}

func (na NameAddr) Clone() NameAddr {
	var u uri.URI
	if na.URI != nil {
		u = na.URI.Clone()
	}
	return NameAddr{DisplayName: na.DisplayName, URI: u, Params: na.Params.Clone()}
}

func (na NameAddr) equal(other NameAddr) bool {
	if na.URI == nil || other.URI == nil {
		return na.URI == other.URI
	}
	if !na.URI.Equal(other.URI) {
		return false
	}
	for _, name := range na.Params.Names() {
		if !specialAddrParams[strings.ToLower(name)] {
			continue
		}
		v1, _ := na.Params.Get(name)
		v2, ok := other.Params.Get(name)
		if !ok || !strings.EqualFold(v1, v2) {
			return false
		}
	}
	for _, name := range other.Params.Names() {
		if specialAddrParams[strings.ToLower(name)] && !na.Params.Has(name) {
			return false
		}
	}
	return true
}

func (na NameAddr) Tag() (string, bool) { return na.Params.Get("tag") }

func (na NameAddr) Expires() (time.Duration, bool) {
	v, ok := na.Params.Get("expires")
	if !ok {
		return 0, false
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// From is the single-valued From header.
type From struct{ NameAddr }

func ParseFrom(raw string) (*From, error) {
	na, err := ParseNameAddr(raw)
	if err != nil {
		return nil, err
	}
	return &From{NameAddr: na}, nil
}

func (h *From) CanonicName() Name   { return "From" }
func (h *From) CompactName() Name   { return "f" }
func (h *From) RenderValue() string { return h.NameAddr.String() }
func (h *From) String() string      { return h.RenderValue() }
func (h *From) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}
func (h *From) Clone() Header { return &From{NameAddr: h.NameAddr.Clone()} }
func (h *From) Equal(other Header) bool {
	o, ok := other.(*From)
	return ok && o != nil && h.NameAddr.equal(o.NameAddr)
}

// To is the single-valued To header.
type To struct{ NameAddr }

func ParseTo(raw string) (*To, error) {
	na, err := ParseNameAddr(raw)
	if err != nil {
		return nil, err
	}
	return &To{NameAddr: na}, nil
}

func (h *To) CanonicName() Name   { return "To" }
func (h *To) CompactName() Name   { return "t" }
func (h *To) RenderValue() string { return h.NameAddr.String() }
func (h *To) String() string      { return h.RenderValue() }
func (h *To) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}
func (h *To) Clone() Header { return &To{NameAddr: h.NameAddr.Clone()} }
func (h *To) Equal(other Header) bool {
	o, ok := other.(*To)
	return ok && o != nil && h.NameAddr.equal(o.NameAddr)
}

// AddrList is the multi-valued contact-like header shape used by
// Record-Route, Route, Reply-To (single in practice, but the grammar
// is list-shaped), and by Contact when not the "*" wildcard.
type AddrList struct {
	Name Name
	// Star marks the literal Contact: * wildcard (RFC 3261 S. 20.10,
	// used in a REGISTER to remove all bindings). It is represented as
	// a header-level sentinel (empty Elems + Star==true) rather than a
	// special NameAddr, because it replaces the entire list, not one
	// element of it.
	Star  bool
	Elems []NameAddr
}

func ParseAddrList(name Name, raw string) (*AddrList, error) {
	raw = lex.TrimLWS(raw)
	if name == "Contact" && raw == "*" {
		return &AddrList{Name: name, Star: true}, nil
	}
	els := splitElements(raw)
	h := &AddrList{Name: name, Elems: make([]NameAddr, 0, len(els))}
	for _, el := range els {
		na, err := ParseNameAddr(el)
		if err != nil {
			return nil, err
		}
		h.Elems = append(h.Elems, na)
	}
	return h, nil
}

func (h *AddrList) CanonicName() Name { return h.Name }
func (h *AddrList) CompactName() Name { return CompactOf(h.Name) }

func (h *AddrList) RenderValue() string {
	if h.Star {
		return "*"
	}
	var b strings.Builder
	for i, el := range h.Elems {
		if i > 0 {
			b.WriteString(", ")
		}
		el.render(&b)
	}
	return b.String()
}

func (h *AddrList) String() string { return h.RenderValue() }

func (h *AddrList) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *AddrList) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := &AddrList{Name: h.Name, Star: h.Star, Elems: make([]NameAddr, len(h.Elems))}
	for i, el := range h.Elems {
		h2.Elems[i] = el.Clone()
	}
	return h2
}

func (h *AddrList) Equal(other Header) bool {
	o, ok := other.(*AddrList)
	if !ok || o == nil || h.Name != o.Name || h.Star != o.Star || len(h.Elems) != len(o.Elems) {
		return false
	}
	for i := range h.Elems {
		if !h.Elems[i].equal(o.Elems[i]) {
			return false
		}
	}
	return true
}
