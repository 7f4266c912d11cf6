package header

import (
	"io"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
	"github.com/new-neon/sippet/params"
	"github.com/new-neon/sippet/uri"
)

// URIWithParamsElem is one "<URI>;params" element of Alert-Info,
// Call-Info, Error-Info.
type URIWithParamsElem struct {
	URI    uri.URI
	Params *params.Params
}

// URIWithParamsList is the comma-separated list of such elements.
type URIWithParamsList struct {
	Name  Name
	Elems []URIWithParamsElem
}

func ParseURIWithParamsList(name Name, raw string) (*URIWithParamsList, error) {
	els := splitElements(raw)
	h := &URIWithParamsList{Name: name, Elems: make([]URIWithParamsElem, 0, len(els))}
	for _, el := range els {
		el = lex.TrimLWS(el)
		if !strings.HasPrefix(el, "<") {
			return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "%s: expected <URI>: %q", name, el))
		}
		end := strings.IndexByte(el, '>')
		if end < 0 {
			return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "%s: unterminated <URI>: %q", name, el))
		}
		u, err := uri.Parse(el[1:end])
		if err != nil {
			return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "%s: %v", name, err))
		}
		_, p := splitParams(el[end+1:])
		h.Elems = append(h.Elems, URIWithParamsElem{URI: u, Params: p})
	}
	return h, nil
}

func (h *URIWithParamsList) CanonicName() Name { return h.Name }
func (h *URIWithParamsList) CompactName() Name { return CompactOf(h.Name) }

func (h *URIWithParamsList) RenderValue() string {
	var b strings.Builder
	for i, el := range h.Elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('<')
		b.WriteString(el.URI.String())
		b.WriteByte('>')
		renderParams(&b, el.Params)
	}
	return b.String()
}

func (h *URIWithParamsList) String() string { return h.RenderValue() }

func (h *URIWithParamsList) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *URIWithParamsList) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := &URIWithParamsList{Name: h.Name, Elems: make([]URIWithParamsElem, len(h.Elems))}
	for i, el := range h.Elems {
		h2.Elems[i] = URIWithParamsElem{URI: el.URI.Clone(), Params: el.Params.Clone()}
	}
	return h2
}

func (h *URIWithParamsList) Equal(other Header) bool {
	o, ok := other.(*URIWithParamsList)
	if !ok || o == nil || h.Name != o.Name || len(h.Elems) != len(o.Elems) {
		return false
	}
	for i := range h.Elems {
		if !h.Elems[i].URI.Equal(o.Elems[i].URI) || !paramsEqual(h.Elems[i].Params, o.Elems[i].Params) {
			return false
		}
	}
	return true
}
