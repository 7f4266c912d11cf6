package header

import (
	"io"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
	"github.com/new-neon/sippet/params"
)

// MediaType is a "type/subtype;params" element. The wildcard form
// "*/*" is represented literally (Type == Subtype == "*"), not as a
// separate sentinel: unlike Contact's list-level "*" (which replaces
// the entire header value), Accept's wildcard is only ever one
// component of a type/subtype pair, so the token "*" already captures
// it without needing a parallel representation.
type MediaType struct {
	Type, Subtype string
	Params        *params.Params
}

func parseMediaType(raw string) (MediaType, error) {
	head, p := splitParams(raw)
	i := strings.IndexByte(head, '/')
	if i < 0 {
		return MediaType{}, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "media-type: expected type/subtype: %q", head))
	}
	return MediaType{Type: lex.TrimLWS(head[:i]), Subtype: lex.TrimLWS(head[i+1:]), Params: p}, nil
}

func (m MediaType) render(b *strings.Builder) {
	b.WriteString(m.Type)
	b.WriteByte('/')
	b.WriteString(m.Subtype)
	renderParams(b, m.Params)
}

func (m MediaType) equal(o MediaType) bool {
	return strings.EqualFold(m.Type, o.Type) && strings.EqualFold(m.Subtype, o.Subtype) && paramsEqual(m.Params, o.Params)
}

// ContentType is the single type/subtype+params Content-Type header.
type ContentType struct {
	MediaType
}

func ParseContentType(raw string) (*ContentType, error) {
	mt, err := parseMediaType(raw)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return &ContentType{MediaType: mt}, nil
}

func (h *ContentType) CanonicName() Name { return "Content-Type" }
func (h *ContentType) CompactName() Name { return "c" }

func (h *ContentType) RenderValue() string {
	var b strings.Builder
	h.MediaType.render(&b)
	return b.String()
}

func (h *ContentType) String() string { return h.RenderValue() }

func (h *ContentType) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *ContentType) Clone() Header {
	if h == nil {
		return nil
	}
	return &ContentType{MediaType: MediaType{Type: h.Type, Subtype: h.Subtype, Params: h.Params.Clone()}}
}

func (h *ContentType) Equal(other Header) bool {
	o, ok := other.(*ContentType)
	return ok && o != nil && h.MediaType.equal(o.MediaType)
}

// Accept is the comma-separated multi-valued Accept header.
type Accept struct {
	Elems []MediaType
}

func ParseAccept(raw string) (*Accept, error) {
	els := splitElements(raw)
	h := &Accept{Elems: make([]MediaType, 0, len(els))}
	for _, el := range els {
		mt, err := parseMediaType(el)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		h.Elems = append(h.Elems, mt)
	}
	return h, nil
}

func (h *Accept) CanonicName() Name { return "Accept" }
func (h *Accept) CompactName() Name { return "Accept" }

func (h *Accept) RenderValue() string {
	var b strings.Builder
	for i, el := range h.Elems {
		if i > 0 {
			b.WriteString(", ")
		}
		el.render(&b)
	}
	return b.String()
}

func (h *Accept) String() string { return h.RenderValue() }

func (h *Accept) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *Accept) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := &Accept{Elems: make([]MediaType, len(h.Elems))}
	for i, el := range h.Elems {
		h2.Elems[i] = MediaType{Type: el.Type, Subtype: el.Subtype, Params: el.Params.Clone()}
	}
	return h2
}

func (h *Accept) Equal(other Header) bool {
	o, ok := other.(*Accept)
	if !ok || o == nil || len(h.Elems) != len(o.Elems) {
		return false
	}
	for i := range h.Elems {
		if !h.Elems[i].equal(o.Elems[i]) {
			return false
		}
	}
	return true
}
