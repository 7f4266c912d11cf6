package header

import (
	"io"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/params"
)

// tokenParamsElem is one "token;params" element, shared by
// Content-Disposition (single) and Accept-Encoding/Accept-Language
// (comma-separated multi).
type tokenParamsElem struct {
	Token  string
	Params *params.Params
}

func parseTokenParamsElem(raw string) tokenParamsElem {
	head, p := splitParams(raw)
	return tokenParamsElem{Token: head, Params: p}
}

func (e tokenParamsElem) render(b *strings.Builder) {
	b.WriteString(e.Token)
	renderParams(b, e.Params)
}

func (e tokenParamsElem) equal(o tokenParamsElem) bool {
	return strings.EqualFold(e.Token, o.Token) && paramsEqual(e.Params, o.Params)
}

// ContentDisposition is the single token+params Content-Disposition header.
type ContentDisposition struct {
	tokenParamsElem
}

func ParseContentDisposition(raw string) (*ContentDisposition, error) {
	return &ContentDisposition{tokenParamsElem: parseTokenParamsElem(raw)}, nil
}

func (h *ContentDisposition) CanonicName() Name { return "Content-Disposition" }
func (h *ContentDisposition) CompactName() Name { return "Content-Disposition" }

func (h *ContentDisposition) RenderValue() string {
	var b strings.Builder
	h.tokenParamsElem.render(&b)
	return b.String()
}

func (h *ContentDisposition) String() string { return h.RenderValue() }

func (h *ContentDisposition) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *ContentDisposition) Clone() Header {
	if h == nil {
		return nil
	}
	return &ContentDisposition{tokenParamsElem{Token: h.Token, Params: h.Params.Clone()}}
}

func (h *ContentDisposition) Equal(other Header) bool {
	o, ok := other.(*ContentDisposition)
	return ok && o != nil && h.tokenParamsElem.equal(o.tokenParamsElem)
}

// TokenParamsList is the comma-separated multi form: Accept-Encoding,
// Accept-Language.
type TokenParamsList struct {
	Name  Name
	Elems []tokenParamsElem
}

func ParseTokenParamsList(name Name, raw string) (*TokenParamsList, error) {
	els := splitElements(raw)
	h := &TokenParamsList{Name: name, Elems: make([]tokenParamsElem, 0, len(els))}
	for _, el := range els {
		h.Elems = append(h.Elems, parseTokenParamsElem(el))
	}
	return h, nil
}

func (h *TokenParamsList) CanonicName() Name { return h.Name }
func (h *TokenParamsList) CompactName() Name { return CompactOf(h.Name) }

func (h *TokenParamsList) RenderValue() string {
	var b strings.Builder
	for i, el := range h.Elems {
		if i > 0 {
			b.WriteString(", ")
		}
		el.render(&b)
	}
	return b.String()
}

func (h *TokenParamsList) String() string { return h.RenderValue() }

func (h *TokenParamsList) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *TokenParamsList) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := &TokenParamsList{Name: h.Name, Elems: make([]tokenParamsElem, len(h.Elems))}
	for i, el := range h.Elems {
		h2.Elems[i] = tokenParamsElem{Token: el.Token, Params: el.Params.Clone()}
	}
	return h2
}

func (h *TokenParamsList) Equal(other Header) bool {
	o, ok := other.(*TokenParamsList)
	if !ok || o == nil || h.Name != o.Name || len(h.Elems) != len(o.Elems) {
		return false
	}
	for i := range h.Elems {
		if !h.Elems[i].equal(o.Elems[i]) {
			return false
		}
	}
	return true
}
